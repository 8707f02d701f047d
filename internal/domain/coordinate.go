package domain

// CoordinateKind tags the grid a coordinate belongs to.
type CoordinateKind string

const (
	KindICON      CoordinateKind = "ICON"
	KindCOSMO     CoordinateKind = "COSMO"
	KindUndefined CoordinateKind = "UNDEFINED"
)

// Coordinate is a grid point from the coordinate catalog. The surrogate ID is
// assigned by the catalog and stable across runs; decoder output carries only
// lat/lon, so value equality is defined on the grid position (see GridPoint).
type Coordinate struct {
	ID        int
	Latitude  float64
	Longitude float64
	Kind      CoordinateKind
}

// GridPoint is the position-only identity of a coordinate, used to reconcile
// decoder output (no IDs) against the catalog (with IDs).
type GridPoint struct {
	Latitude  float64
	Longitude float64
}

// Point strips the catalog ID, leaving the position value key.
func (c Coordinate) Point() GridPoint {
	return GridPoint{Latitude: c.Latitude, Longitude: c.Longitude}
}

// Rect is a lat/lon bounding box for catalog loading.
type Rect struct {
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64
}

// DefaultRect covers the region the converter is operated for.
var DefaultRect = Rect{
	MinLatitude:  45.71457,
	MaxLatitude:  57.65129,
	MinLongitude: 4.29694,
	MaxLongitude: 18.98635,
}

// Contains reports whether the point lies within the rectangle (inclusive).
func (r Rect) Contains(p GridPoint) bool {
	return p.Latitude >= r.MinLatitude && p.Latitude <= r.MaxLatitude &&
		p.Longitude >= r.MinLongitude && p.Longitude <= r.MaxLongitude
}
