package domain

import (
	"fmt"
	"strconv"
)

// Parameter identifies one of the meteorological variables tracked per
// ICON-EU model run. The constant order is stable and doubles as the slot
// index into Observation value arrays, so new parameters must only ever be
// appended.
type Parameter int

const (
	// Single-level parameters.
	Albedo Parameter = iota // albedo in %
	NetRadiation            // net short-wave radiation flux at surface in W/m²
	DiffuseRadiationDown    // surface down solar diffuse radiation in W/m²
	DiffuseRadiationUp      // surface up diffuse radiation in W/m²
	DirectRadiation         // direct radiation in W/m²
	Pressure20m             // pressure at 20m above ground in Pa
	Pressure65m             // pressure at 65m above ground in Pa
	Pressure131m            // pressure at 131m above ground in Pa
	RadiationInstant        // net short-wave radiation flux at surface (instantaneous) in W/m²
	GroundTemperature       // ground temperature in K
	Temperature2m           // temperature at 2m above ground in K
	Temperature131m         // temperature at 131m above ground in K
	WindU10m                // zonal wind at 10m above ground in m/s
	WindU20m
	WindU65m
	WindU131m
	WindU216m
	WindV10m // meridional wind at 10m above ground in m/s
	WindV20m
	WindV65m
	WindV131m
	WindV216m
	WindW20m // vertical wind at 20m above ground in m/s
	WindW65m
	WindW131m
	WindW216m
	Roughness // surface roughness length in m

	NumParameters int = iota
)

const (
	filePrefix        = "icon-eu_europe_regular-lat-lon_"
	SingleLevelPrefix = filePrefix + "single-level_"
	ModelLevelPrefix  = filePrefix + "model-level_"
)

// levelHeights maps ICON model levels (used as bottomLevel in decoder
// invocations) to their approximate height above ground in meters.
// Level 57 = 216.516m, 58 = 131.880m, 59 = 65.677m, 60 = 20m.
var levelHeights = map[int]int{
	57: 216,
	58: 131,
	59: 65,
	60: 20,
}

type parameterSpec struct {
	source string // short name in the published GRIB2 files
	level  int    // ICON model level, 0 for single-level parameters
	column string // store column holding this parameter's values
}

var parameterSpecs = [NumParameters]parameterSpec{
	Albedo:               {source: "ALB_RAD", level: 0, column: "alb_rad"},
	NetRadiation:         {source: "ASOB_S", level: 0, column: "asob_s"},
	DiffuseRadiationDown: {source: "ASWDIFD_S", level: 0, column: "aswdifd_s"},
	DiffuseRadiationUp:   {source: "ASWDIFU_S", level: 0, column: "aswdifu_s"},
	DirectRadiation:      {source: "ASWDIR_S", level: 0, column: "aswdir_s"},
	Pressure20m:          {source: "P", level: 60, column: "p_20m"},
	Pressure65m:          {source: "P", level: 59, column: "p_65m"},
	Pressure131m:         {source: "P", level: 58, column: "p_131m"},
	RadiationInstant:     {source: "SOBS_RAD", level: 0, column: "sobs_rad"},
	GroundTemperature:    {source: "T_G", level: 0, column: "t_g"},
	Temperature2m:        {source: "T_2M", level: 0, column: "t_2m"},
	Temperature131m:      {source: "T", level: 58, column: "t_131m"},
	WindU10m:             {source: "U_10M", level: 0, column: "u_10m"},
	WindU20m:             {source: "U", level: 60, column: "u_20m"},
	WindU65m:             {source: "U", level: 59, column: "u_65m"},
	WindU131m:            {source: "U", level: 58, column: "u_131m"},
	WindU216m:            {source: "U", level: 57, column: "u_216m"},
	WindV10m:             {source: "V_10M", level: 0, column: "v_10m"},
	WindV20m:             {source: "V", level: 60, column: "v_20m"},
	WindV65m:             {source: "V", level: 59, column: "v_65m"},
	WindV131m:            {source: "V", level: 58, column: "v_131m"},
	WindV216m:            {source: "V", level: 57, column: "v_216m"},
	WindW20m:             {source: "W", level: 60, column: "w_20m"},
	WindW65m:             {source: "W", level: 59, column: "w_65m"},
	WindW131m:            {source: "W", level: 58, column: "w_131m"},
	WindW216m:            {source: "W", level: 57, column: "w_216m"},
	Roughness:            {source: "Z0", level: 0, column: "z0"},
}

// Parameters returns all tracked parameters in slot order.
func Parameters() []Parameter {
	ps := make([]Parameter, NumParameters)
	for i := range ps {
		ps[i] = Parameter(i)
	}
	return ps
}

// SourceName is the parameter's short name as published upstream,
// e.g. "ALB_RAD" or "P".
func (p Parameter) SourceName() string { return parameterSpecs[p].source }

// Level is the ICON model level for multi-level parameters, 0 otherwise.
func (p Parameter) Level() int { return parameterSpecs[p].level }

// Column is the store column name, e.g. "t_2m".
func (p Parameter) Column() string { return parameterSpecs[p].column }

// SingleLevel reports whether the parameter has no vertical level.
func (p Parameter) SingleLevel() bool { return parameterSpecs[p].level == 0 }

// HeightMeters returns the approximate height above ground for multi-level
// parameters, 0 for single-level ones.
func (p Parameter) HeightMeters() int { return levelHeights[parameterSpecs[p].level] }

// FileToken is the parameter part of a published file name,
// e.g. "ASWDIFD_S" or "60_P".
func (p Parameter) FileToken() string {
	if p.SingleLevel() {
		return parameterSpecs[p].source
	}
	return strconv.Itoa(parameterSpecs[p].level) + "_" + parameterSpecs[p].source
}

// FilePrefix is the published file name prefix for the parameter's level kind.
func (p Parameter) FilePrefix() string {
	if p.SingleLevel() {
		return SingleLevelPrefix
	}
	return ModelLevelPrefix
}

// String renders a human-readable name like "ALB_RAD" or "P_20M".
func (p Parameter) String() string {
	if p.SingleLevel() {
		return parameterSpecs[p].source
	}
	return fmt.Sprintf("%s_%dM", parameterSpecs[p].source, p.HeightMeters())
}

var columnToParameter = func() map[string]Parameter {
	m := make(map[string]Parameter, NumParameters)
	for _, p := range Parameters() {
		m[p.Column()] = p
	}
	return m
}()

// ParseParameter resolves a store column name back to its parameter.
func ParseParameter(column string) (Parameter, error) {
	p, ok := columnToParameter[column]
	if !ok {
		return 0, fmt.Errorf("unknown parameter column %q", column)
	}
	return p, nil
}
