package websocket

import (
	"github.com/yegors/planereports/internal/runway"
)

// EventMessage wraps a runway event for broadcasting
func EventMessage(ev runway.Event) *Message {
	return &Message{
		Type: MessageTypeRunwayEvent,
		Data: map[string]any{
			"airport": ev.AirportID,
			"runway":  ev.RunwayName,
			"hex":     ev.AircraftID,
			"flight":  ev.FlightLabel,
			"time":    ev.EpochSeconds,
			"kind":    string(ev.Kind),
		},
	}
}

// RunCompletedMessage summarises a processing run
func RunCompletedMessage(runID string, reports, events, duplicates, outliers, failures int) *Message {
	return &Message{
		Type: MessageTypeRunCompleted,
		Data: map[string]any{
			"run_id":     runID,
			"reports":    reports,
			"events":     events,
			"duplicates": duplicates,
			"outliers":   outliers,
			"failures":   failures,
		},
	}
}
