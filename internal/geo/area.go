package geo

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// LatLon is a single vertex of an area ring
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Area is a closed lat/lon polygon used for spatial containment tests
type Area struct {
	ring orb.Ring
}

// NewArea builds an Area from at least three vertices. The ring is closed if
// the caller did not repeat the first vertex.
func NewArea(points []LatLon) (*Area, error) {
	if len(points) < 3 {
		return nil, errors.New("area needs at least three vertices")
	}

	ring := make(orb.Ring, 0, len(points)+1)
	for _, p := range points {
		ring = append(ring, orb.Point{p.Lon, p.Lat})
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return &Area{ring: ring}, nil
}

// Contains reports whether the point lies inside the area (boundary included)
func (a *Area) Contains(lat, lon float64) bool {
	if a == nil {
		return false
	}
	return planar.RingContains(a.ring, orb.Point{lon, lat})
}

// Centroid returns the area-weighted centre of the polygon
func (a *Area) Centroid() LatLon {
	c, _ := planar.CentroidArea(orb.Polygon{a.ring})
	return LatLon{Lat: c.Lat(), Lon: c.Lon()}
}

// Vertices returns the ring as lat/lon pairs, closing vertex included
func (a *Area) Vertices() []LatLon {
	out := make([]LatLon, 0, len(a.ring))
	for _, p := range a.ring {
		out = append(out, LatLon{Lat: p.Lat(), Lon: p.Lon()})
	}
	return out
}
