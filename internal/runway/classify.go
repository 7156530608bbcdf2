package runway

import (
	"github.com/yegors/planereports/internal/report"
	"github.com/yegors/planereports/internal/visit"
)

// DefaultBearingTolerance is how far, in degrees, a track may differ from a
// runway heading and still use that runway
const DefaultBearingTolerance = 4.0

// EventKind is what an aircraft did on a runway
type EventKind string

const (
	Landed        EventKind = "landed"
	TookOff       EventKind = "took_off"
	BumpAndGo     EventKind = "bump_and_go"
	Indeterminate EventKind = "indeterminate"
)

// Event is a classified runway movement
type Event struct {
	AirportID    string    `json:"airport"`
	RunwayName   string    `json:"runway"`
	AircraftID   string    `json:"hex"`
	FlightLabel  string    `json:"flight"`
	EpochSeconds int64     `json:"time"` // Time of the last report of the visit
	Kind         EventKind `json:"kind"`
}

// Classifier turns visits into runway events
type Classifier struct {
	BearingTolerance float64
}

// NewClassifier creates a classifier with the given bearing tolerance
func NewClassifier(bearingTolerance float64) *Classifier {
	return &Classifier{BearingTolerance: bearingTolerance}
}

// Classify restricts the visit to the runway area and classifies what is left.
// The second result is false when the runway does not apply.
func (c *Classifier) Classify(v visit.Visit, rw *Runway) (Event, bool) {
	return c.ClassifyVisit(visit.Visit{Reports: rw.Restrict(v.Reports)}, rw)
}

// ClassifyVisit classifies a visit already restricted to the runway area
func (c *Classifier) ClassifyVisit(v visit.Visit, rw *Runway) (Event, bool) {
	reports := v.Reports
	if len(reports) == 0 {
		return Event{}, false
	}

	if !rw.Aligned(v.Middle().TrackDegrees, c.BearingTolerance) {
		return Event{}, false
	}

	last := v.Last()
	return Event{
		AirportID:    rw.AirportID,
		RunwayName:   rw.Name,
		AircraftID:   last.AircraftID,
		FlightLabel:  last.Flight(),
		EpochSeconds: last.EpochSeconds,
		Kind:         KindOf(reports),
	}, true
}

// KindOf compares the first and last altitude of a run of reports. A climb that
// touched the ground on the way is a bump and go.
func KindOf(reports []report.PositionReport) EventKind {
	if len(reports) == 0 {
		return Indeterminate
	}
	first := reports[0].AltitudeMeters
	last := reports[len(reports)-1].AltitudeMeters

	touchedGround := false
	for i := range reports {
		if reports[i].OnGround {
			touchedGround = true
			break
		}
	}

	switch {
	case first >= last:
		return Landed
	case first < last && touchedGround:
		return BumpAndGo
	case first < last:
		return TookOff
	default:
		// Only reachable when an altitude is not comparable
		return Indeterminate
	}
}
