package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/yegors/planereports/internal/geo"
	"github.com/yegors/planereports/internal/report"
	"github.com/yegors/planereports/pkg/logger"
)

// ReportFilter selects stored reports. Zero values match everything.
type ReportFilter struct {
	Start      int64  // Inclusive epoch seconds
	End        int64  // Exclusive epoch seconds
	ReporterID string
	AircraftID string
	Near       *Proximity // Applied to each row after the query
}

// Proximity bounds how far a report may be from a fixed point, normally the
// receiver. A zero bound is open.
type Proximity struct {
	Center    geo.LatLon
	MinMeters float64
	MaxMeters float64
	Metric    geo.Metric
}

// Contains reports whether r lies within the bounds
func (p *Proximity) Contains(r *report.PositionReport) bool {
	d := p.Metric.DistanceMeters(p.Center.Lat, p.Center.Lon, r.Latitude, r.Longitude)
	return d >= p.MinMeters && (p.MaxMeters == 0 || d <= p.MaxMeters)
}

// InsertReports stores reports in a single transaction and returns how many
// were written
func (s *Store) InsertReports(ctx context.Context, reports []report.PositionReport) (int, error) {
	if len(reports) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reports (hex, flight, report_epoch, lat, lon, altitude, speed, track, vert_rate, is_gnd, reporter)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare report insert statement: %w", err)
	}
	defer stmt.Close()

	for i := range reports {
		r := &reports[i]
		_, err := stmt.ExecContext(ctx,
			r.AircraftID,
			r.FlightLabel,
			r.EpochSeconds,
			r.Latitude,
			r.Longitude,
			r.AltitudeMeters,
			r.SpeedKph,
			r.TrackDegrees,
			r.VerticalRateMetersPerMin,
			boolToInt(r.OnGround),
			r.ReporterID,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert report for %s: %w", r.AircraftID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit reports batch: %w", err)
	}

	s.logger.Debug("Inserted reports batch",
		logger.Int("count", len(reports)))

	return len(reports), nil
}

// CountReports counts the reports matching the filter
func (s *Store) CountReports(ctx context.Context, f ReportFilter) (int, error) {
	if f.Near != nil {
		all, err := s.LoadReports(ctx, f)
		return len(all), err
	}

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reports
		WHERE report_epoch >= ?
		  AND (? = 0 OR report_epoch < ?)
		  AND (? = '' OR reporter = ?)
		  AND (? = '' OR hex = ?)
	`, f.Start, f.End, f.End, f.ReporterID, f.ReporterID, f.AircraftID, f.AircraftID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return n, nil
}

// DeleteReports removes the given reports in one transaction. Keys carrying a
// record id are deleted by id, others by aircraft, time and reporter.
func (s *Store) DeleteReports(ctx context.Context, keys []report.Key) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	byID, err := tx.PrepareContext(ctx, `DELETE FROM reports WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer byID.Close()

	byKey, err := tx.PrepareContext(ctx, `DELETE FROM reports WHERE hex = ? AND report_epoch = ? AND reporter = ?`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer byKey.Close()

	var deleted int64
	for _, k := range keys {
		var res sql.Result
		if k.RecordID != 0 {
			res, err = byID.ExecContext(ctx, k.RecordID)
		} else {
			res, err = byKey.ExecContext(ctx, k.AircraftID, k.EpochSeconds, k.ReporterID)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to delete report %s at %d: %w", k.AircraftID, k.EpochSeconds, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to count deleted rows: %w", err)
		}
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit deletions: %w", err)
	}

	s.logger.Info("Deleted reports",
		logger.Int("requested", len(keys)),
		logger.Int64("deleted", deleted))

	return deleted, nil
}

// ReportPager walks the matching reports ordered by aircraft, time and id. Each
// page is a separate keyset query, so no cursor is held open between pages and
// the pages may be interleaved with writes.
type ReportPager struct {
	s      *Store
	filter ReportFilter
	size   int

	lastHex   string
	lastEpoch int64
	lastID    int64
	done      bool
}

// NewReportPager creates a pager returning up to pageSize reports per call
func (s *Store) NewReportPager(f ReportFilter, pageSize int) *ReportPager {
	if pageSize < 1 {
		pageSize = 1000
	}
	return &ReportPager{s: s, filter: f, size: pageSize}
}

// Next returns the next page, or an empty page when the reports are exhausted.
// With a proximity bound a page may be shorter than the page size; it is only
// empty at the end.
func (p *ReportPager) Next(ctx context.Context) ([]report.PositionReport, error) {
	for !p.done {
		page, err := p.fetch(ctx)
		if err != nil {
			return nil, err
		}
		if near := p.filter.Near; near != nil {
			page = slices.DeleteFunc(page, func(r report.PositionReport) bool { return !near.Contains(&r) })
		}
		if len(page) > 0 {
			return page, nil
		}
	}
	return nil, nil
}

func (p *ReportPager) fetch(ctx context.Context) ([]report.PositionReport, error) {
	f := p.filter
	rows, err := p.s.db.QueryContext(ctx, `
		SELECT id, hex, flight, report_epoch, lat, lon, altitude, speed, track, vert_rate, is_gnd, reporter
		FROM reports
		WHERE report_epoch >= ?
		  AND (? = 0 OR report_epoch < ?)
		  AND (? = '' OR reporter = ?)
		  AND (? = '' OR hex = ?)
		  AND (hex, report_epoch, id) > (?, ?, ?)
		ORDER BY hex, report_epoch, id
		LIMIT ?
	`, f.Start, f.End, f.End, f.ReporterID, f.ReporterID, f.AircraftID, f.AircraftID,
		p.lastHex, p.lastEpoch, p.lastID, p.size)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	page := make([]report.PositionReport, 0, p.size)
	for rows.Next() {
		var r report.PositionReport
		var isGnd int
		if err := rows.Scan(&r.RecordID, &r.AircraftID, &r.FlightLabel, &r.EpochSeconds,
			&r.Latitude, &r.Longitude, &r.AltitudeMeters, &r.SpeedKph, &r.TrackDegrees,
			&r.VerticalRateMetersPerMin, &isGnd, &r.ReporterID); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		r.OnGround = isGnd != 0
		page = append(page, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reports: %w", err)
	}

	if len(page) < p.size {
		p.done = true
	}
	if len(page) > 0 {
		last := page[len(page)-1]
		p.lastHex, p.lastEpoch, p.lastID = last.AircraftID, last.EpochSeconds, last.RecordID
	}
	return page, nil
}

// LoadReports reads every matching report in stream order
func (s *Store) LoadReports(ctx context.Context, f ReportFilter) ([]report.PositionReport, error) {
	pager := s.NewReportPager(f, 5000)
	var all []report.PositionReport
	for {
		page, err := pager.Next(ctx)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return all, nil
		}
		all = append(all, page...)
	}
}
