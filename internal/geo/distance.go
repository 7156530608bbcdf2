// Package geo holds the distance, bearing and area primitives used by the
// report filters and the runway classifier.
package geo

import (
	"fmt"
	"math"

	"github.com/tidwall/geodesic"
)

// EarthRadiusMeters is the sphere radius used by the haversine metric
const EarthRadiusMeters = 6371000.0

// Metric selects how the distance between two fixes is measured. A run uses a
// single metric throughout since plausibility thresholds are calibrated against it.
type Metric int

const (
	// Haversine is great-circle distance on a sphere of EarthRadiusMeters
	Haversine Metric = iota
	// Geodesic is the WGS84 ellipsoidal inverse solution
	Geodesic
)

// ParseMetric converts a configuration value into a Metric
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "haversine", "":
		return Haversine, nil
	case "geodesic", "wgs84":
		return Geodesic, nil
	default:
		return Haversine, fmt.Errorf("unknown distance metric: %s", s)
	}
}

func (m Metric) String() string {
	switch m {
	case Haversine:
		return "haversine"
	case Geodesic:
		return "geodesic"
	default:
		return "unknown"
	}
}

// DistanceMeters returns the distance between two lat/lon points in metres
func (m Metric) DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	if m == Geodesic {
		return GeodesicMeters(lat1, lon1, lat2, lon2)
	}
	return HaversineMeters(lat1, lon1, lat2, lon2)
}

// HaversineMeters calculates the great-circle distance between two points in metres
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push a fractionally above 1 for antipodal points
	a = math.Min(1, a)
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(a))
}

// GeodesicMeters calculates the WGS84 ellipsoidal distance between two points in metres
func GeodesicMeters(lat1, lon1, lat2, lon2 float64) float64 {
	var s12 float64
	geodesic.WGS84.Inverse(lat1, lon1, lat2, lon2, &s12, nil, nil)
	return math.Abs(s12)
}
