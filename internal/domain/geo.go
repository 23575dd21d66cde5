package domain

import "math"

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// Location represents a WGS-84 latitude/longitude coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BoundingBox is an inclusive lat/lon rectangle.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// IndianCoastalRegion is the deployed coastal region used by geospatial scoring.
var IndianCoastalRegion = BoundingBox{MinLat: 8, MaxLat: 37, MinLon: 68, MaxLon: 97}

// Contains reports whether loc lies inside the box, edges included.
func (b BoundingBox) Contains(loc Location) bool {
	return loc.Lat >= b.MinLat && loc.Lat <= b.MaxLat &&
		loc.Lon >= b.MinLon && loc.Lon <= b.MaxLon
}

// DistanceKm returns the haversine great-circle distance between a and b.
func DistanceKm(a, b Location) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Clamp01 limits v to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
