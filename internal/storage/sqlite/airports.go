package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yegors/planereports/internal/geo"
	"github.com/yegors/planereports/internal/runway"
	"github.com/yegors/planereports/pkg/logger"
)

// SaveAirport inserts or replaces an airport and all of its runways
func (s *Store) SaveAirport(ctx context.Context, a *runway.Airport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO airports (icao, iata, name, city, country, altitude, lat, lon)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(icao) DO UPDATE SET
			iata = excluded.iata,
			name = excluded.name,
			city = excluded.city,
			country = excluded.country,
			altitude = excluded.altitude,
			lat = excluded.lat,
			lon = excluded.lon
	`, a.ICAO, a.IATA, a.Name, a.City, a.Country, a.AltitudeMeters, a.Latitude, a.Longitude)
	if err != nil {
		return fmt.Errorf("failed to save airport %s: %w", a.ICAO, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM runways WHERE airport = ?`, a.ICAO); err != nil {
		return fmt.Errorf("failed to clear runways of %s: %w", a.ICAO, err)
	}

	for i := range a.Runways {
		rw := &a.Runways[i]

		var area sql.NullString
		if rw.Area != nil {
			data, err := json.Marshal(rw.Area.Vertices())
			if err != nil {
				return fmt.Errorf("failed to encode area of runway %s: %w", rw.Name, err)
			}
			area = sql.NullString{String: string(data), Valid: true}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO runways (airport, name, heading, lat, lon, area)
			VALUES (?, ?, ?, ?, ?, ?)
		`, a.ICAO, rw.Name, rw.HeadingDegrees, rw.RefLatitude, rw.RefLongitude, area)
		if err != nil {
			return fmt.Errorf("failed to save runway %s of %s: %w", rw.Name, a.ICAO, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit airport %s: %w", a.ICAO, err)
	}

	s.logger.Info("Saved airport",
		logger.String("icao", a.ICAO),
		logger.Int("runways", len(a.Runways)))
	return nil
}

// LoadAirport reads an airport and its runways
func (s *Store) LoadAirport(ctx context.Context, icao string) (*runway.Airport, error) {
	a := &runway.Airport{}
	err := s.db.QueryRowContext(ctx, `
		SELECT icao, iata, name, city, country, altitude, lat, lon
		FROM airports WHERE icao = ?
	`, icao).Scan(&a.ICAO, &a.IATA, &a.Name, &a.City, &a.Country, &a.AltitudeMeters, &a.Latitude, &a.Longitude)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("airport %s: %w", icao, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load airport %s: %w", icao, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, heading, lat, lon, area
		FROM runways WHERE airport = ?
		ORDER BY name
	`, icao)
	if err != nil {
		return nil, fmt.Errorf("failed to query runways of %s: %w", icao, err)
	}
	defer rows.Close()

	for rows.Next() {
		rw := runway.Runway{AirportID: a.ICAO}
		var area sql.NullString
		if err := rows.Scan(&rw.Name, &rw.HeadingDegrees, &rw.RefLatitude, &rw.RefLongitude, &area); err != nil {
			return nil, fmt.Errorf("failed to scan runway row: %w", err)
		}

		if area.Valid {
			var vertices []geo.LatLon
			if err := json.Unmarshal([]byte(area.String), &vertices); err != nil {
				return nil, fmt.Errorf("failed to decode area of runway %s: %w", rw.Name, err)
			}
			if rw.Area, err = geo.NewArea(vertices); err != nil {
				return nil, fmt.Errorf("runway %s of %s: %w", rw.Name, icao, err)
			}
		}
		a.Runways = append(a.Runways, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runways of %s: %w", icao, err)
	}
	return a, nil
}

// ListAirports returns the ICAO codes of every stored airport
func (s *Store) ListAirports(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT icao FROM airports ORDER BY icao`)
	if err != nil {
		return nil, fmt.Errorf("failed to query airports: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var icao string
		if err := rows.Scan(&icao); err != nil {
			return nil, fmt.Errorf("failed to scan airport row: %w", err)
		}
		codes = append(codes, icao)
	}
	return codes, rows.Err()
}
