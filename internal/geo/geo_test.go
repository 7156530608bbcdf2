package geo

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearingWithinTolerance(t *testing.T) {
	for _, tc := range []struct {
		a, b, tol float64
		want      bool
	}{
		{358, 2, 4, true},
		{2, 358, 4, true},
		{10, 20, 4, false},
		{90, 94, 4, true},
		{90, 94.1, 4, false},
		{0, 360, 0, true},
		{180, 0, 4, false},
		{-2, 2, 4, true},
	} {
		assert.Equal(t, tc.want, BearingWithinTolerance(tc.a, tc.b, tc.tol), "%v vs %v", tc.a, tc.b)
	}
}

func TestReciprocal(t *testing.T) {
	assert.Equal(t, 270.0, Reciprocal(90))
	assert.Equal(t, 90.0, Reciprocal(270))
	assert.Equal(t, 0.0, Reciprocal(180))
	assert.InDelta(t, 182.0, Reciprocal(2), 1e-9)
}

func TestHaversineMeters(t *testing.T) {
	assert.Equal(t, 0.0, HaversineMeters(51.5, -0.1, 51.5, -0.1))

	// One degree of latitude on the 6371 km sphere
	oneDeg := 2 * math.Pi * EarthRadiusMeters / 360
	assert.InDelta(t, oneDeg, HaversineMeters(0, 0, 1, 0), 1e-6)
	assert.InDelta(t, oneDeg, HaversineMeters(0, 0, 0, 1), 1e-6)

	// Symmetric
	d1 := HaversineMeters(53.35, -6.26, 51.47, -0.45)
	d2 := HaversineMeters(51.47, -0.45, 53.35, -6.26)
	assert.InDelta(t, d1, d2, 1e-6)
}

func TestGeodesicCloseToHaversine(t *testing.T) {
	h := HaversineMeters(53.35, -6.26, 51.47, -0.45)
	g := GeodesicMeters(53.35, -6.26, 51.47, -0.45)

	// The two models agree to within half a percent over a few hundred km
	assert.InEpsilon(t, h, g, 0.005)
	assert.Equal(t, 0.0, GeodesicMeters(10, 10, 10, 10))
}

func TestMetric(t *testing.T) {
	m, err := ParseMetric("geodesic")
	require.NoError(t, err)
	assert.Equal(t, Geodesic, m)
	assert.Equal(t, "geodesic", m.String())

	m, err = ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, Haversine, m)

	_, err = ParseMetric("manhattan")
	assert.Error(t, err)

	assert.Equal(t, HaversineMeters(1, 1, 2, 2), Haversine.DistanceMeters(1, 1, 2, 2))
	assert.Equal(t, GeodesicMeters(1, 1, 2, 2), Geodesic.DistanceMeters(1, 1, 2, 2))
}

func TestArea(t *testing.T) {
	_, err := NewArea([]LatLon{{0, 0}, {1, 1}})
	assert.Error(t, err)

	area, err := NewArea([]LatLon{
		{Lat: 53.40, Lon: -6.30},
		{Lat: 53.40, Lon: -6.20},
		{Lat: 53.44, Lon: -6.20},
		{Lat: 53.44, Lon: -6.30},
	})
	require.NoError(t, err)

	assert.True(t, area.Contains(53.42, -6.25))
	assert.False(t, area.Contains(53.50, -6.25))
	assert.False(t, area.Contains(53.42, -6.10))

	c := area.Centroid()
	assert.InDelta(t, 53.42, c.Lat, 1e-9)
	assert.InDelta(t, -6.25, c.Lon, 1e-9)

	// Closed automatically
	v := area.Vertices()
	assert.Len(t, v, 5)
	assert.Equal(t, v[0], v[4])

	var nilArea *Area
	assert.False(t, nilArea.Contains(0, 0))
}

func TestMagneticToTrue(t *testing.T) {
	assert.InDelta(t, 85.0, MagneticToTrue(90, -5), 1e-9)
	assert.InDelta(t, 2.0, MagneticToTrue(358, 4), 1e-9)

	decl, err := MagneticDeclination(53.42, -6.27, 0, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	// Western Europe has a small westerly declination
	assert.True(t, decl < 0 && decl > -10, "declination %v", decl)
}

func TestGeodesicHelpers(t *testing.T) {
	east := InitialBearing(53.42, -6.30, 53.42, -6.25)
	assert.InDelta(t, 90.0, east, 0.1)
	assert.InDelta(t, 0.0, InitialBearing(53.0, -6.0, 54.0, -6.0), 1e-9)

	p := Destination(53.42, -6.27, 0, 1000)
	assert.InDelta(t, 1000.0, GeodesicMeters(53.42, -6.27, p.Lat, p.Lon), 1e-3)
	assert.InDelta(t, -6.27, p.Lon, 1e-9)

	mid := Midpoint(53.42, -6.30, 53.42, -6.25)
	assert.InDelta(t, -6.275, mid.Lon, 1e-6)
	assert.InDelta(t, 53.42, mid.Lat, 1e-3)
}

func TestStripArea(t *testing.T) {
	strip, err := StripArea(LatLon{Lat: 53.42, Lon: -6.30}, LatLon{Lat: 53.42, Lon: -6.25}, 60)
	require.NoError(t, err)

	assert.True(t, strip.Contains(53.42, -6.275))
	assert.True(t, strip.Contains(53.4201, -6.29))
	// 110 m north of the centreline is off a 60 m wide surface
	assert.False(t, strip.Contains(53.421, -6.275))
	assert.False(t, strip.Contains(53.42, -6.24))
	assert.Len(t, strip.Vertices(), 5)
}
