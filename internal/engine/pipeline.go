package engine

import (
	"fmt"

	"github.com/yegors/planereports/internal/dedup"
	"github.com/yegors/planereports/internal/outlier"
	"github.com/yegors/planereports/internal/report"
	"github.com/yegors/planereports/internal/runway"
	"github.com/yegors/planereports/internal/visit"
)

// airportTrack holds one aircraft's open visits at one airport
type airportTrack struct {
	airport *runway.Airport
	band    runway.Band
	runways []*runwayTrack
}

// runwayTrack segments the reports inside one runway's area. Reports off the
// runway never join or extend a visit.
type runwayTrack struct {
	runway *runway.Runway
	seg    *visit.Segmenter
}

// Pipeline processes a single aircraft's stream, one page at a time. It holds
// only the state needed to continue across pages: the last retained report for
// the duplicate filter, the outlier window and the open visit per runway.
type Pipeline struct {
	e          *Engine
	aircraftID string
	last       *report.PositionReport
	dedup      *dedup.Filter
	outlier    *outlier.Filter
	tracks     []*airportTrack
	result     AircraftResult
	err        error
}

// NewPipeline starts processing the given aircraft
func (e *Engine) NewPipeline(aircraftID string) *Pipeline {
	p := &Pipeline{
		e:          e,
		aircraftID: aircraftID,
		dedup:      dedup.New(e.cfg.dedupConfig()),
		outlier:    outlier.New(e.plausibility),
		result:     AircraftResult{AircraftID: aircraftID},
	}

	for i := range e.airports {
		a := &e.airports[i]
		t := &airportTrack{
			airport: a,
			band:    a.ApproachBand(e.cfg.FloorMarginMeters, e.cfg.CommittedHeightMeters),
		}
		for j := range a.Runways {
			t.runways = append(t.runways, &runwayTrack{
				runway: &a.Runways[j],
				seg:    visit.NewSegmenter(e.cfg.MinTurnaroundSeconds, e.cfg.Segmentation),
			})
		}
		p.tracks = append(p.tracks, t)
	}
	return p
}

// AircraftID returns the aircraft this pipeline belongs to
func (p *Pipeline) AircraftID() string {
	return p.aircraftID
}

// Push feeds the next page of reports. An invalid report fails the whole
// aircraft; later pushes return the same error.
func (p *Pipeline) Push(page []report.PositionReport) error {
	if p.err != nil {
		return p.err
	}

	for i := range page {
		if err := p.accept(&page[i]); err != nil {
			p.err = err
			return err
		}
	}

	kept := page
	if p.e.cfg.Stages.Has(StageDedup) {
		var decisions []dedup.Decision
		kept, decisions = p.dedup.Push(kept)
		for _, d := range decisions {
			if d.Duplicate {
				p.result.Duplicates = append(p.result.Duplicates, d)
			}
		}
	}

	if p.e.cfg.Stages.Has(StageOutlier) {
		final, removed := p.outlier.Push(kept)
		for i := range removed {
			p.result.Outliers = append(p.result.Outliers, removed[i].Key())
		}
		kept = final
	}

	p.segment(kept)
	return nil
}

func (p *Pipeline) accept(r *report.PositionReport) error {
	if r.AircraftID != p.aircraftID {
		return fmt.Errorf("%w: report for %s in the stream of %s", report.ErrInvalidReport, r.AircraftID, p.aircraftID)
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if err := report.CheckOrder(p.last, r); err != nil {
		return err
	}

	last := *r
	p.last = &last
	p.result.Sighting.observe(r)
	return nil
}

func (p *Pipeline) segment(reports []report.PositionReport) {
	p.result.Retained += len(reports)
	if !p.e.cfg.Stages.Has(StageEvents) || len(reports) == 0 {
		return
	}

	for _, t := range p.tracks {
		near := p.nearAirport(t, reports)
		for _, rt := range t.runways {
			p.classify(rt, rt.seg.Push(rt.runway.Restrict(near)))
		}
	}
}

func (p *Pipeline) nearAirport(t *airportTrack, reports []report.PositionReport) []report.PositionReport {
	if !p.e.cfg.PrefilterApproachBand {
		return reports
	}
	var near []report.PositionReport
	for _, r := range reports {
		if t.band.Contains(r.AltitudeMeters) {
			near = append(near, r)
		}
	}
	return near
}

func (p *Pipeline) classify(rt *runwayTrack, visits []visit.Visit) {
	for _, v := range visits {
		if ev, ok := p.e.classifier.ClassifyVisit(v, rt.runway); ok {
			p.result.Events = append(p.result.Events, ev)
		}
	}
}

// Finish drains the held back reports and returns the aircraft's result
func (p *Pipeline) Finish() (AircraftResult, error) {
	if p.err != nil {
		return AircraftResult{}, p.err
	}

	if p.e.cfg.Stages.Has(StageOutlier) {
		p.segment(p.outlier.Flush())
	}
	if p.e.cfg.Stages.Has(StageEvents) {
		for _, t := range p.tracks {
			for _, rt := range t.runways {
				p.classify(rt, rt.seg.Flush())
			}
		}
	}
	if p.e.cfg.Stages.Has(StageDedup) {
		p.result.Reasons = p.dedup.Stats().Reasons
	}
	return p.result, nil
}
