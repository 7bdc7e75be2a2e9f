package cache

import "fmt"

// CoordKey identifies a full enrichment result. Coordinates are compared
// exactly, no rounding.
type CoordKey struct {
	Lat         float64
	Lon         float64
	RadiusMiles float64
}

func (k CoordKey) String() string {
	return fmt.Sprintf("%v_%v_%v", k.Lat, k.Lon, k.RadiusMiles)
}

// CountyKey identifies county statistics.
type CountyKey struct {
	StateFIPS  string
	CountyFIPS string
}

func (k CountyKey) String() string {
	return "county_" + k.StateFIPS + "_" + k.CountyFIPS
}
