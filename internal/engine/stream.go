package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/yegors/planereports/internal/report"
	"github.com/yegors/planereports/pkg/logger"
)

// Pager yields reports sorted by aircraft then time, one page per call. An
// empty page marks the end of the data.
type Pager interface {
	Next(ctx context.Context) ([]report.PositionReport, error)
}

// Stream consumes pages sorted by aircraft. Aircraft may span page boundaries;
// only the aircraft currently open is held in memory.
//
// An aircraft seen again after its pipeline finished means the input is not
// grouped. Its whole contribution is withdrawn and it is reported once as a
// failure.
type Stream struct {
	e       *Engine
	current *Pipeline
	// finished maps each closed aircraft to its result, or nil once failed
	finished map[string]*AircraftResult
	result   *Result
}

// NewStream starts a streaming run
func (e *Engine) NewStream() *Stream {
	return &Stream{
		e:        e,
		finished: make(map[string]*AircraftResult),
		result:   newResult(),
	}
}

// Push feeds the next page
func (s *Stream) Push(page []report.PositionReport) {
	for start := 0; start < len(page); {
		id := page[start].AircraftID
		end := start + 1
		for end < len(page) && page[end].AircraftID == id {
			end++
		}
		s.pushRun(id, page[start:end])
		start = end
	}
}

func (s *Stream) pushRun(id string, run []report.PositionReport) {
	if s.current != nil && s.current.AircraftID() != id {
		s.finishCurrent()
	}

	if s.current == nil {
		if prev, seen := s.finished[id]; seen {
			if prev != nil {
				s.e.logger.Warn("Aircraft reappeared in stream", logger.String("hex", id))
				s.result.remove(*prev)
				s.result.fail(id, fmt.Errorf("%w: stream is not grouped by aircraft at %s", report.ErrInvalidReport, id))
				s.finished[id] = nil
			}
			return
		}
		s.current = s.e.NewPipeline(id)
	}

	// Errors are kept by the pipeline and surface when it finishes
	_ = s.current.Push(run)
}

func (s *Stream) finishCurrent() {
	p := s.current
	s.current = nil

	res, err := p.Finish()
	if err != nil {
		s.e.logger.Warn("Discarding aircraft stream",
			logger.String("hex", p.AircraftID()),
			logger.Error(err))
		s.result.fail(p.AircraftID(), err)
		s.finished[p.AircraftID()] = nil
		return
	}
	s.result.add(res)
	s.finished[p.AircraftID()] = &res
}

// Close finishes the open aircraft and returns the run result
func (s *Stream) Close() *Result {
	if s.current != nil {
		s.finishCurrent()
	}
	return s.result
}

// Abort drops the open aircraft without reporting it and returns the result of
// the aircraft already finished
func (s *Stream) Abort() *Result {
	s.current = nil
	return s.result
}

// RunPager streams every page of the pager through the engine. Cancellation is
// checked between pages; an interrupted aircraft is dropped whole.
func (e *Engine) RunPager(ctx context.Context, pager Pager) (*Result, error) {
	start := time.Now()
	s := e.NewStream()

	for {
		if err := ctx.Err(); err != nil {
			return s.Abort(), fmt.Errorf("run interrupted: %w", err)
		}

		page, err := pager.Next(ctx)
		if err != nil {
			return s.Abort(), fmt.Errorf("failed to read reports: %w", err)
		}
		if len(page) == 0 {
			break
		}
		s.Push(page)
	}

	res := s.Close()
	e.logSummary(res, time.Since(start))
	return res, nil
}
