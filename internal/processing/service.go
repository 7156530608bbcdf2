// Package processing runs the report engine against stored reports and applies
// its decisions: duplicate and outlier deletion, runway events and daily
// sightings.
package processing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yegors/planereports/internal/adsb"
	"github.com/yegors/planereports/internal/engine"
	"github.com/yegors/planereports/internal/geo"
	"github.com/yegors/planereports/internal/runway"
	"github.com/yegors/planereports/internal/storage/sqlite"
	"github.com/yegors/planereports/pkg/logger"
)

// ErrAirportNotLoaded is returned when a configured airport is missing from
// storage
var ErrAirportNotLoaded = errors.New("airport not loaded")

// ErrInvalidWindow is returned when a request ends before it starts or its
// distance bounds are reversed
var ErrInvalidWindow = errors.New("invalid window")

// ErrNoReceiver is returned when a request bounds the distance from the
// receiver but no receiver position is known
var ErrNoReceiver = errors.New("receiver position not configured")

// Request selects the reports a run covers and what it does with them
type Request struct {
	Start       int64        `json:"start"`                  // Inclusive epoch seconds
	End         int64        `json:"end"`                    // Exclusive epoch seconds, 0 means open
	ReporterID  string       `json:"reporter"`               // Empty means every reporter
	MinDistance float64      `json:"min_distance,omitempty"` // Metres from the receiver
	MaxDistance float64      `json:"max_distance,omitempty"` // Metres from the receiver, 0 means open
	Stages      engine.Stage `json:"-"`                      // Zero means every stage
	ListOnly    bool         `json:"list_only"`
}

// Run is a finished processing run
type Run struct {
	ID           string         `json:"id"`
	Request      Request        `json:"request"`
	Airports     []string       `json:"airports"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Deleted      int64          `json:"deleted"`
	EventsStored int            `json:"events_stored"`
	Result       *engine.Result `json:"result"`
}

// Service owns the stored reports and the engine settings
type Service struct {
	store    *sqlite.Store
	cfg      engine.Config
	airports []string
	pageSize int
	receiver *geo.LatLon
	logger   *logger.Logger

	seq    atomic.Int64
	mu     sync.RWMutex
	latest *Run
}

// NewService creates a processing service for the given airports
func NewService(store *sqlite.Store, cfg engine.Config, airports []string, pageSize int, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		cfg:      cfg,
		airports: airports,
		pageSize: pageSize,
		logger:   log.Named("processing"),
	}
}

// SetReceiver sets the position distance bounds are measured from
func (s *Service) SetReceiver(lat, lon float64) {
	s.receiver = &geo.LatLon{Lat: lat, Lon: lon}
}

// filter translates a request into a storage filter
func (s *Service) filter(req Request) (sqlite.ReportFilter, error) {
	f := sqlite.ReportFilter{
		Start:      req.Start,
		End:        req.End,
		ReporterID: req.ReporterID,
	}
	if req.End != 0 && req.End <= req.Start {
		return f, fmt.Errorf("%w: end %d is not after start %d", ErrInvalidWindow, req.End, req.Start)
	}
	if req.MinDistance == 0 && req.MaxDistance == 0 {
		return f, nil
	}

	if req.MinDistance < 0 || req.MaxDistance < 0 || (req.MaxDistance != 0 && req.MaxDistance < req.MinDistance) {
		return f, fmt.Errorf("%w: distance bounds %.0f to %.0f", ErrInvalidWindow, req.MinDistance, req.MaxDistance)
	}
	if s.receiver == nil {
		return f, ErrNoReceiver
	}
	f.Near = &sqlite.Proximity{
		Center:    *s.receiver,
		MinMeters: req.MinDistance,
		MaxMeters: req.MaxDistance,
		Metric:    s.cfg.Metric,
	}
	return f, nil
}

// Store returns the underlying storage
func (s *Service) Store() *sqlite.Store {
	return s.store
}

// loadAirports reads the configured airports from storage
func (s *Service) loadAirports(ctx context.Context) ([]runway.Airport, error) {
	airports := make([]runway.Airport, 0, len(s.airports))
	for _, icao := range s.airports {
		a, err := s.store.LoadAirport(ctx, icao)
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAirportNotLoaded, icao)
		}
		if err != nil {
			return nil, err
		}
		airports = append(airports, *a)
	}
	return airports, nil
}

// Execute processes the requested window and, unless the request is list
// only, applies the decisions to storage
func (s *Service) Execute(ctx context.Context, req Request) (*Run, error) {
	if req.Stages == 0 {
		req.Stages = engine.AllStages
	}
	filter, err := s.filter(req)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:        fmt.Sprintf("run-%d-%d", time.Now().UTC().Unix(), s.seq.Add(1)),
		Request:   req,
		Airports:  s.airports,
		StartedAt: time.Now().UTC(),
	}
	log := s.logger.With(logger.String("run", run.ID))

	var airports []runway.Airport
	if req.Stages.Has(engine.StageEvents) {
		var err error
		if airports, err = s.loadAirports(ctx); err != nil {
			return nil, err
		}
		if len(airports) == 0 {
			log.Warn("No airports configured, no runway events will be detected")
		}
	}

	cfg := s.cfg
	cfg.Stages = req.Stages
	eng := engine.New(cfg, airports, log)

	res, err := eng.RunPager(ctx, s.store.NewReportPager(filter, s.pageSize))
	if err != nil {
		return nil, err
	}
	run.Result = res

	for _, f := range res.Failures {
		log.Warn("Aircraft rejected", logger.String("hex", f.AircraftID), logger.String("error", f.Error))
	}

	if !req.ListOnly {
		if err := s.apply(ctx, run); err != nil {
			return nil, err
		}
	}

	run.FinishedAt = time.Now().UTC()
	log.Info("Run finished",
		logger.Bool("list_only", req.ListOnly),
		logger.Int("reports", res.Reports),
		logger.Int("events", len(res.Events)),
		logger.Int64("deleted", run.Deleted),
		logger.Duration("duration", run.FinishedAt.Sub(run.StartedAt)))

	s.mu.Lock()
	s.latest = run
	s.mu.Unlock()
	return run, nil
}

// apply writes a run's decisions to storage
func (s *Service) apply(ctx context.Context, run *Run) error {
	res := run.Result

	deleted, err := s.store.DeleteReports(ctx, res.DeletionKeys())
	if err != nil {
		return fmt.Errorf("failed to delete rejected reports: %w", err)
	}
	run.Deleted = deleted

	if run.Request.Stages.Has(engine.StageEvents) {
		stored, err := s.store.InsertEvents(ctx, res.Events)
		if err != nil {
			return fmt.Errorf("failed to store events: %w", err)
		}
		run.EventsStored = stored
	}

	if err := s.store.InsertSightings(ctx, res.Sightings); err != nil {
		return fmt.Errorf("failed to store sightings: %w", err)
	}
	return nil
}

// Latest returns the most recent run, if any
func (s *Service) Latest() (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest != nil
}

// Events returns the stored events of an airport on a UTC day
func (s *Service) Events(ctx context.Context, icao string, day time.Time) ([]runway.Event, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return s.store.ListEvents(ctx, icao, start.Unix(), start.AddDate(0, 0, 1).Unix())
}

// ImportStats describes a finished archive import
type ImportStats struct {
	Documents int `json:"documents"`
	Reports   int `json:"reports"`
	Skipped   int `json:"skipped"`
}

// ImportArchive loads every report of a recorded feed archive
func (s *Service) ImportArchive(ctx context.Context, path string, opts adsb.Options) (ImportStats, error) {
	archive, err := adsb.OpenArchive(path, opts)
	if err != nil {
		return ImportStats{}, err
	}
	defer archive.Close()

	var stats ImportStats
	for {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("import interrupted: %w", err)
		}
		batch, err := archive.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, err
		}
		stats.Documents++
		stats.Skipped += batch.Skipped
		if len(batch.Reports) == 0 {
			continue
		}
		n, err := s.store.InsertReports(ctx, batch.Reports)
		if err != nil {
			return stats, err
		}
		stats.Reports += n
	}

	s.logger.Info("Imported archive",
		logger.String("path", path),
		logger.Int("documents", stats.Documents),
		logger.Int("reports", stats.Reports),
		logger.Int("skipped", stats.Skipped))
	return stats, nil
}

// ImportAirports converts reference data and stores every airport in it
func (s *Service) ImportAirports(ctx context.Context, path string, opts runway.LoadOptions) ([]runway.Airport, error) {
	airports, err := runway.LoadFile(path, opts)
	if err != nil {
		return nil, err
	}
	for i := range airports {
		if err := s.store.SaveAirport(ctx, &airports[i]); err != nil {
			return nil, err
		}
		s.logger.Info("Stored airport",
			logger.String("icao", airports[i].ICAO),
			logger.Int("runways", len(airports[i].Runways)))
	}
	return airports, nil
}

// Export writes the reports of a window to a feed archive
func (s *Service) Export(ctx context.Context, path string, req Request) (int, error) {
	filter, err := s.filter(req)
	if err != nil {
		return 0, err
	}

	w, err := adsb.CreateArchive(path)
	if err != nil {
		return 0, err
	}

	pager := s.store.NewReportPager(filter, s.pageSize)

	written := 0
	for {
		page, err := pager.Next(ctx)
		if err != nil {
			w.Close()
			return written, err
		}
		if len(page) == 0 {
			break
		}
		if err := w.Write(page); err != nil {
			w.Close()
			return written, err
		}
		written += len(page)
	}
	if err := w.Close(); err != nil {
		return written, fmt.Errorf("failed to close archive: %w", err)
	}
	return written, nil
}
