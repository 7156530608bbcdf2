package geo

import "github.com/tidwall/geodesic"

// InitialBearing returns the WGS84 forward azimuth from the first point to the
// second, normalized to [0, 360)
func InitialBearing(lat1, lon1, lat2, lon2 float64) float64 {
	var azi1 float64
	geodesic.WGS84.Inverse(lat1, lon1, lat2, lon2, nil, &azi1, nil)
	return NormalizeDegrees(azi1)
}

// Destination travels distance metres from a point along an azimuth on the
// WGS84 ellipsoid
func Destination(lat, lon, bearing, distance float64) LatLon {
	var lat2, lon2 float64
	geodesic.WGS84.Direct(lat, lon, bearing, distance, &lat2, &lon2, nil)
	return LatLon{Lat: lat2, Lon: lon2}
}

// Midpoint returns the point halfway along the geodesic between two points
func Midpoint(lat1, lon1, lat2, lon2 float64) LatLon {
	var s12, azi1 float64
	geodesic.WGS84.Inverse(lat1, lon1, lat2, lon2, &s12, &azi1, nil)
	return Destination(lat1, lon1, azi1, s12/2)
}

// StripArea builds the rectangle of the given width centred on the line between
// two ends, the shape of a runway surface
func StripArea(end1, end2 LatLon, widthMeters float64) (*Area, error) {
	bearing := InitialBearing(end1.Lat, end1.Lon, end2.Lat, end2.Lon)
	left := NormalizeDegrees(bearing - 90)
	right := NormalizeDegrees(bearing + 90)
	half := widthMeters / 2

	return NewArea([]LatLon{
		Destination(end1.Lat, end1.Lon, right, half),
		Destination(end1.Lat, end1.Lon, left, half),
		Destination(end2.Lat, end2.Lon, left, half),
		Destination(end2.Lat, end2.Lon, right, half),
	})
}
