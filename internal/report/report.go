// Package report defines the canonical position report that every feed
// adapter produces and every filter consumes.
package report

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/yegors/planereports/internal/geo"
)

// ErrInvalidReport marks a report that is missing required data or breaks the
// time ordering of its stream
var ErrInvalidReport = errors.New("invalid report")

// PositionReport is one observation of an aircraft at an instant. All units
// are metric: metres, km/h and metres per minute.
type PositionReport struct {
	RecordID                 int64   `json:"record_id,omitempty"` // Storage row id, 0 when not backed by storage
	AircraftID               string  `json:"hex"`                 // ICAO24 hex
	FlightLabel              string  `json:"flight"`              // Callsign, may be blank or padded
	EpochSeconds             int64   `json:"time"`
	Latitude                 float64 `json:"lat"`
	Longitude                float64 `json:"lon"`
	AltitudeMeters           float64 `json:"altitude"`
	SpeedKph                 float64 `json:"speed"`
	TrackDegrees             float64 `json:"track"`
	VerticalRateMetersPerMin float64 `json:"vert_rate"`
	OnGround                 bool    `json:"is_gnd"`
	ReporterID               string  `json:"reporter"`
}

// Key identifies the underlying record of a report for deletion or auditing
type Key struct {
	RecordID     int64  `json:"record_id,omitempty"`
	AircraftID   string `json:"hex"`
	EpochSeconds int64  `json:"time"`
	ReporterID   string `json:"reporter"`
}

// Key returns the identity of the report
func (r *PositionReport) Key() Key {
	return Key{
		RecordID:     r.RecordID,
		AircraftID:   r.AircraftID,
		EpochSeconds: r.EpochSeconds,
		ReporterID:   r.ReporterID,
	}
}

// Flight returns the flight label with feed padding removed
func (r *PositionReport) Flight() string {
	return strings.TrimSpace(r.FlightLabel)
}

// DistanceTo returns the distance to another report under the given metric
func (r *PositionReport) DistanceTo(other *PositionReport, metric geo.Metric) float64 {
	return metric.DistanceMeters(r.Latitude, r.Longitude, other.Latitude, other.Longitude)
}

// Validate checks that the fields the engine relies on are present and sane
func (r *PositionReport) Validate() error {
	if strings.TrimSpace(r.AircraftID) == "" {
		return fmt.Errorf("%w: missing aircraft id at %d", ErrInvalidReport, r.EpochSeconds)
	}
	if r.EpochSeconds < 0 {
		return fmt.Errorf("%w: aircraft %s has a negative timestamp %d", ErrInvalidReport, r.AircraftID, r.EpochSeconds)
	}

	for name, v := range map[string]float64{
		"latitude":  r.Latitude,
		"longitude": r.Longitude,
		"altitude":  r.AltitudeMeters,
		"speed":     r.SpeedKph,
		"track":     r.TrackDegrees,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: aircraft %s at %d has no %s", ErrInvalidReport, r.AircraftID, r.EpochSeconds, name)
		}
	}

	if r.Latitude < -90 || r.Latitude > 90 {
		return fmt.Errorf("%w: aircraft %s at %d has latitude %f", ErrInvalidReport, r.AircraftID, r.EpochSeconds, r.Latitude)
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return fmt.Errorf("%w: aircraft %s at %d has longitude %f", ErrInvalidReport, r.AircraftID, r.EpochSeconds, r.Longitude)
	}
	if r.SpeedKph < 0 {
		return fmt.Errorf("%w: aircraft %s at %d has negative speed", ErrInvalidReport, r.AircraftID, r.EpochSeconds)
	}
	if r.TrackDegrees < 0 || r.TrackDegrees > 360 {
		return fmt.Errorf("%w: aircraft %s at %d has track %f", ErrInvalidReport, r.AircraftID, r.EpochSeconds, r.TrackDegrees)
	}
	return nil
}

// CheckOrder verifies that next may follow prev in one aircraft's stream
func CheckOrder(prev, next *PositionReport) error {
	if prev == nil {
		return nil
	}
	if prev.AircraftID != next.AircraftID {
		return nil
	}
	if next.EpochSeconds < prev.EpochSeconds {
		return fmt.Errorf("%w: aircraft %s went back in time from %d to %d",
			ErrInvalidReport, next.AircraftID, prev.EpochSeconds, next.EpochSeconds)
	}
	return nil
}
