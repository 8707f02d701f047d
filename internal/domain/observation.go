package domain

import "time"

// Observation holds the values of all tracked parameters for one coordinate
// at one absolute timestamp (model run + timestep hours). Slots are nullable:
// a nil entry means the parameter was never extracted for this point in time.
type Observation struct {
	Time       time.Time
	Coordinate Coordinate
	Values     [NumParameters]*float64
}

// NewObservation creates an empty observation for a coordinate and timestamp.
func NewObservation(at time.Time, c Coordinate) *Observation {
	return &Observation{Time: at, Coordinate: c}
}

// Get returns the value slot for the parameter, nil if unset.
func (o *Observation) Get(p Parameter) *float64 {
	return o.Values[p]
}

// Set assigns a parameter slot. Nil values are ignored so an already
// extracted value is never clobbered by a missing one.
func (o *Observation) Set(p Parameter, v *float64) {
	if v == nil {
		return
	}
	o.Values[p] = v
}

// Interpolate merges a newer observation INTO this one, slot by slot, using
// the configured interpolation weight. The receiver keeps its identity so a
// previously persisted row survives the merge.
func (o *Observation) Interpolate(newer *Observation, ratio float64) {
	for i := range o.Values {
		o.Values[i] = InterpolateValue(o.Values[i], newer.Values[i], ratio)
	}
}

// InterpolateValue applies the weighted merge rule for a single slot:
// the newer value wins entirely at ratio 1, a nil newer value keeps the
// earlier one, and a nil earlier value takes the newer one as-is.
func InterpolateValue(earlier, newer *float64, ratio float64) *float64 {
	switch {
	case newer == nil:
		return earlier
	case earlier == nil:
		return newer
	default:
		v := *earlier*(1-ratio) + *newer*ratio
		return &v
	}
}

// AverageObservations combines several observations into a new one holding
// the per-slot mean of all non-nil values. Coordinate and timestamp are left
// unset; callers assign them when the average stands in for a real record.
func AverageObservations(obs ...*Observation) *Observation {
	avg := &Observation{}
	for i := range avg.Values {
		var sum float64
		var n int
		for _, o := range obs {
			if v := o.Values[i]; v != nil {
				sum += *v
				n++
			}
		}
		if n > 0 {
			v := sum / float64(n)
			avg.Values[i] = &v
		}
	}
	return avg
}

// ExtractionResult is the outcome of running the decoder on one file: the
// per-catalog-coordinate values, whether the file produced usable output, and
// how many catalog coordinates the decoder did not cover.
type ExtractionResult struct {
	Parameter Parameter
	Values    map[Coordinate]*float64
	Valid     bool
	Missing   int
}
