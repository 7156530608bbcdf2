// Package runway holds airport reference data and classifies visits into
// runway events.
package runway

import (
	"github.com/yegors/planereports/internal/geo"
	"github.com/yegors/planereports/internal/report"
)

const (
	// DefaultFloorMargin is how far below field elevation reports are still
	// considered part of the airport
	DefaultFloorMargin = 150.0
	// DefaultCommittedHeight is the height above field elevation below which an
	// aircraft is committed to the runway
	DefaultCommittedHeight = 200.0
)

// Runway is one runway of an airport. Headings are true.
type Runway struct {
	AirportID      string    `json:"airport"`
	Name           string    `json:"name"`
	HeadingDegrees float64   `json:"heading"`
	Area           *geo.Area `json:"-"`
	RefLatitude    float64   `json:"lat"`
	RefLongitude   float64   `json:"lon"`
}

// ReciprocalDegrees returns the heading of the opposite runway end
func (r *Runway) ReciprocalDegrees() float64 {
	return geo.Reciprocal(r.HeadingDegrees)
}

// Aligned reports whether a track matches either runway direction
func (r *Runway) Aligned(track, tolerance float64) bool {
	return geo.BearingWithinTolerance(track, r.HeadingDegrees, tolerance) ||
		geo.BearingWithinTolerance(track, r.ReciprocalDegrees(), tolerance)
}

// Restrict returns the reports inside the runway area. Without an area every
// report is returned.
func (r *Runway) Restrict(reports []report.PositionReport) []report.PositionReport {
	if r.Area == nil {
		return reports
	}
	var inside []report.PositionReport
	for _, rep := range reports {
		if r.Area.Contains(rep.Latitude, rep.Longitude) {
			inside = append(inside, rep)
		}
	}
	return inside
}

// Airport is the reference description of an airfield
type Airport struct {
	ICAO           string   `json:"icao"`
	IATA           string   `json:"iata"`
	Name           string   `json:"name"`
	City           string   `json:"city"`
	Country        string   `json:"country"`
	AltitudeMeters float64  `json:"altitude"`
	Latitude       float64  `json:"lat"`
	Longitude      float64  `json:"lon"`
	Runways        []Runway `json:"runways"`
}

// Band is an inclusive altitude range in metres
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether the altitude lies in the band
func (b Band) Contains(alt float64) bool {
	return alt >= b.Min && alt <= b.Max
}

// ApproachBand returns the altitudes at which an aircraft is considered to be
// using the airport
func (a *Airport) ApproachBand(floorMargin, committedHeight float64) Band {
	return Band{
		Min: a.AltitudeMeters - floorMargin,
		Max: a.AltitudeMeters + committedHeight,
	}
}

// Runway returns the runway with the given name
func (a *Airport) Runway(name string) (*Runway, bool) {
	for i := range a.Runways {
		if a.Runways[i].Name == name {
			return &a.Runways[i], true
		}
	}
	return nil, false
}
