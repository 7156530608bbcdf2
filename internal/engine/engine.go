// Package engine runs position reports through duplicate suppression, outlier
// removal, visit segmentation and runway classification.
package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yegors/planereports/internal/outlier"
	"github.com/yegors/planereports/internal/report"
	"github.com/yegors/planereports/internal/runway"
	"github.com/yegors/planereports/pkg/logger"
)

// Engine holds the read-only configuration and reference data shared by every
// aircraft of a run
type Engine struct {
	cfg          Config
	airports     []runway.Airport
	classifier   *runway.Classifier
	plausibility outlier.Plausibility
	logger       *logger.Logger
}

// Option customises an engine
type Option func(*Engine)

// WithPlausibility replaces the distance/speed/time outlier check
func WithPlausibility(check outlier.Plausibility) Option {
	return func(e *Engine) {
		e.plausibility = check
	}
}

// New creates an engine for the given airports
func New(cfg Config, airports []runway.Airport, log *logger.Logger, opts ...Option) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Stages == 0 {
		cfg.Stages = AllStages
	}

	e := &Engine{
		cfg:          cfg,
		airports:     airports,
		classifier:   runway.NewClassifier(cfg.BearingToleranceDegrees),
		plausibility: outlier.DistanceBound{Metric: cfg.Metric, FudgeMeters: cfg.DistanceFudgeMeters},
		logger:       log.Named("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Airports returns the reference airports
func (e *Engine) Airports() []runway.Airport {
	return e.airports
}

// Process runs one aircraft's complete stream
func (e *Engine) Process(reports []report.PositionReport) (AircraftResult, error) {
	if len(reports) == 0 {
		return AircraftResult{}, nil
	}
	p := e.NewPipeline(reports[0].AircraftID)
	if err := p.Push(reports); err != nil {
		return AircraftResult{}, err
	}
	return p.Finish()
}

// Run processes many aircraft concurrently. Reports are grouped by aircraft in
// order of first appearance and must be time ordered within each aircraft.
// Cancellation is honoured between aircraft; the returned result then covers
// only the aircraft that completed.
func (e *Engine) Run(ctx context.Context, reports []report.PositionReport) (*Result, error) {
	start := time.Now()
	groups := groupByAircraft(reports)

	results := make([]*AircraftResult, len(groups))
	errs := make([]error, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for i, group := range groups {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.Process(group)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	waitErr := g.Wait()

	out := newResult()
	for i, group := range groups {
		switch {
		case errs[i] != nil:
			e.logger.Warn("Discarding aircraft stream",
				logger.String("hex", group[0].AircraftID),
				logger.Error(errs[i]))
			out.fail(group[0].AircraftID, errs[i])
		case results[i] != nil:
			out.add(*results[i])
		}
	}

	e.logSummary(out, time.Since(start))

	if waitErr == nil {
		waitErr = ctx.Err()
	}
	if waitErr != nil {
		return out, fmt.Errorf("run interrupted: %w", waitErr)
	}
	return out, nil
}

func groupByAircraft(reports []report.PositionReport) [][]report.PositionReport {
	index := make(map[string]int)
	var groups [][]report.PositionReport
	for _, r := range reports {
		i, ok := index[r.AircraftID]
		if !ok {
			i = len(groups)
			index[r.AircraftID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}
	return groups
}

func (e *Engine) logSummary(res *Result, elapsed time.Duration) {
	e.logger.Info("Run complete",
		logger.Int("aircraft", res.Aircraft),
		logger.Int("reports", res.Reports),
		logger.Int("retained", res.Retained),
		logger.Int("duplicates", len(res.Duplicates)),
		logger.Int("outliers", len(res.Outliers)),
		logger.Int("events", len(res.Events)),
		logger.Int("failed_aircraft", len(res.Failures)),
		logger.Duration("elapsed", elapsed),
	)
}
