package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yegors/planereports/internal/engine"
	"github.com/yegors/planereports/internal/runway"
	"github.com/yegors/planereports/pkg/logger"
)

// InsertEvents stores runway events. Events already stored are skipped, so a
// window may be processed again. It returns how many rows were new.
func (s *Store) InsertEvents(ctx context.Context, events []runway.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO airport_daily_events (airport, runway, hex, flight, event_epoch, event_type)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare event insert statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, ev := range events {
		res, err := stmt.ExecContext(ctx, ev.AirportID, ev.RunwayName, ev.AircraftID, ev.FlightLabel, ev.EpochSeconds, string(ev.Kind))
		if err != nil {
			return 0, fmt.Errorf("failed to insert event for %s: %w", ev.AircraftID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit events batch: %w", err)
	}

	s.logger.Debug("Inserted events batch",
		logger.Int("count", len(events)),
		logger.Int("new", inserted))
	return inserted, nil
}

// ListEvents returns an airport's events in [start, end), oldest first
func (s *Store) ListEvents(ctx context.Context, icao string, start, end int64) ([]runway.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT airport, runway, hex, flight, event_epoch, event_type
		FROM airport_daily_events
		WHERE airport = ? AND event_epoch >= ? AND event_epoch < ?
		ORDER BY event_epoch, id
	`, icao, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []runway.Event
	for rows.Next() {
		var ev runway.Event
		var kind string
		if err := rows.Scan(&ev.AirportID, &ev.RunwayName, &ev.AircraftID, &ev.FlightLabel, &ev.EpochSeconds, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		ev.Kind = runway.EventKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// Day returns the UTC calendar day of an epoch, the key of daily tables
func Day(epoch int64) string {
	return time.Unix(epoch, 0).UTC().Format(time.DateOnly)
}

// InsertSightings records the aircraft seen by a run, keyed by the day they
// were first seen. Sightings already stored are widened, never narrowed.
func (s *Store) InsertSightings(ctx context.Context, sightings []engine.Sighting) error {
	if len(sightings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_planes_seen (day, hex, reporter, first_seen, last_seen, flights, reports)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day, hex, reporter) DO UPDATE SET
			first_seen = MIN(first_seen, excluded.first_seen),
			last_seen = MAX(last_seen, excluded.last_seen),
			flights = excluded.flights,
			reports = MAX(reports, excluded.reports)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare sighting statement: %w", err)
	}
	defer stmt.Close()

	for _, sg := range sightings {
		flights, err := json.Marshal(sg.Flights)
		if err != nil {
			return fmt.Errorf("failed to encode flights of %s: %w", sg.AircraftID, err)
		}
		if sg.Flights == nil {
			flights = []byte("[]")
		}
		_, err = stmt.ExecContext(ctx, Day(sg.FirstSeen), sg.AircraftID, sg.ReporterID, sg.FirstSeen, sg.LastSeen, string(flights), sg.Reports)
		if err != nil {
			return fmt.Errorf("failed to record sighting of %s: %w", sg.AircraftID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sightings: %w", err)
	}

	s.logger.Debug("Recorded sightings",
		logger.Int("count", len(sightings)))
	return nil
}

// ListSightings returns the aircraft seen on a day
func (s *Store) ListSightings(ctx context.Context, day string) ([]engine.Sighting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hex, reporter, first_seen, last_seen, flights, reports
		FROM daily_planes_seen
		WHERE day = ?
		ORDER BY first_seen, hex
	`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query sightings: %w", err)
	}
	defer rows.Close()

	var sightings []engine.Sighting
	for rows.Next() {
		var sg engine.Sighting
		var flights string
		if err := rows.Scan(&sg.AircraftID, &sg.ReporterID, &sg.FirstSeen, &sg.LastSeen, &flights, &sg.Reports); err != nil {
			return nil, fmt.Errorf("failed to scan sighting row: %w", err)
		}
		if err := json.Unmarshal([]byte(flights), &sg.Flights); err != nil {
			return nil, fmt.Errorf("failed to decode flights of %s: %w", sg.AircraftID, err)
		}
		sightings = append(sightings, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sightings: %w", err)
	}
	return sightings, nil
}
