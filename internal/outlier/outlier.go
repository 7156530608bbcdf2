// Package outlier removes single physically implausible reports from an
// aircraft's stream.
//
// Usually only one position report gets munged at a time, so a sliding window
// of three surviving reports is enough to tell which one is the odd one out:
//
//	A-B bad, B-C good             -> A is the dud
//	A-B bad, B-C bad, A-C good    -> B is the dud
//	A-B bad, B-C good, A-C good   -> B is the dud
//	A-B good, B-C bad             -> C is the dud
//
// After a removal the window stays where it is and is evaluated again with the
// next surviving report, so overlapping anomalies are resolved in one pass.
package outlier

import (
	"github.com/yegors/planereports/internal/geo"
	"github.com/yegors/planereports/internal/report"
)

// kmhToMps divides a km/h speed into metres per second
const kmhToMps = 3.6

// DefaultFudgeMeters compensates for the pieces of a report being assembled at
// different times
const DefaultFudgeMeters = 50000.0

// Plausibility decides whether two reports of the same aircraft can both be
// genuine. Altitude or speed based checks plug in here.
type Plausibility interface {
	Plausible(a, b *report.PositionReport) bool
}

// PlausibilityFunc adapts a function to Plausibility
type PlausibilityFunc func(a, b *report.PositionReport) bool

// Plausible calls f(a, b)
func (f PlausibilityFunc) Plausible(a, b *report.PositionReport) bool {
	return f(a, b)
}

// DistanceBound judges two reports by whether the distance between them could
// have been covered at the faster of their two speeds
type DistanceBound struct {
	Metric      geo.Metric
	FudgeMeters float64
}

// Bound returns the furthest plausible distance in metres between a and b
func (d DistanceBound) Bound(a, b *report.PositionReport) float64 {
	elapsed := float64(b.EpochSeconds - a.EpochSeconds)
	if elapsed < 0 {
		elapsed = -elapsed
	}
	speed := max(a.SpeedKph, b.SpeedKph)
	return elapsed*speed/kmhToMps + d.FudgeMeters
}

// Plausible reports whether a and b are no further apart than the bound
func (d DistanceBound) Plausible(a, b *report.PositionReport) bool {
	return a.DistanceTo(b, d.Metric) <= d.Bound(a, b)
}

// Position identifies which member of a window is anomalous
type Position int

const (
	None Position = iota
	First
	Middle
	Last
)

// Judge inspects a window of three consecutive surviving reports
func Judge(check Plausibility, a, b, c *report.PositionReport) Position {
	okAB := check.Plausible(a, b)
	okBC := check.Plausible(b, c)

	if !okBC && okAB {
		return Last
	}
	if okAB {
		return None
	}

	switch {
	case check.Plausible(a, c):
		return Middle
	case okBC:
		return First
	default:
		return None
	}
}

// Decision records whether a report was discarded as an outlier
type Decision struct {
	Key     report.Key `json:"key"`
	Outlier bool       `json:"outlier"`
}

type entry struct {
	report report.PositionReport
	seq    int
}

// Filter is a stateful sliding-window anomaly remover. Reports are held back
// until no later window can remove them, which is at most the last two
// survivors plus the current window start.
type Filter struct {
	check   Plausibility
	pending []entry
	seq     int
}

// New creates a filter using the given plausibility check
func New(check Plausibility) *Filter {
	return &Filter{check: check}
}

// NewDistanceFilter creates a filter with the distance/speed/time bound
func NewDistanceFilter(metric geo.Metric, fudgeMeters float64) *Filter {
	return New(DistanceBound{Metric: metric, FudgeMeters: fudgeMeters})
}

// Push adds the next page of one aircraft's stream. It returns the reports that
// are now final, in order, and the reports removed as outliers.
func (f *Filter) Push(page []report.PositionReport) (final, removed []report.PositionReport) {
	finalEntries, removedEntries := f.push(page)
	return reportsOf(finalEntries), reportsOf(removedEntries)
}

func (f *Filter) push(page []report.PositionReport) (final, removed []entry) {
	for _, r := range page {
		f.pending = append(f.pending, entry{report: r, seq: f.seq})
		f.seq++
	}

	i := 0
	for i+2 < len(f.pending) {
		a, b, c := &f.pending[i].report, &f.pending[i+1].report, &f.pending[i+2].report

		var drop int
		switch Judge(f.check, a, b, c) {
		case First:
			drop = i
		case Middle:
			drop = i + 1
		case Last:
			drop = i + 2
		default:
			i++
			continue
		}

		removed = append(removed, f.pending[drop])
		f.pending = append(f.pending[:drop], f.pending[drop+1:]...)
	}

	final = append(final, f.pending[:i]...)
	f.pending = append([]entry(nil), f.pending[i:]...)
	return final, removed
}

// Flush releases the trailing reports that never saw a full window
func (f *Filter) Flush() []report.PositionReport {
	return reportsOf(f.flush())
}

func (f *Filter) flush() []entry {
	out := f.pending
	f.pending = nil
	return out
}

// Pending returns how many reports are being held back
func (f *Filter) Pending() int {
	return len(f.pending)
}

func reportsOf(entries []entry) []report.PositionReport {
	if len(entries) == 0 {
		return nil
	}
	out := make([]report.PositionReport, len(entries))
	for i, e := range entries {
		out[i] = e.report
	}
	return out
}

// Apply runs a complete stream through the filter. It returns the surviving
// reports, the removed ones and one decision per input report in input order.
func Apply(stream []report.PositionReport, check Plausibility) (kept, removed []report.PositionReport, decisions []Decision) {
	f := New(check)
	final, dropped := f.push(stream)
	final = append(final, f.flush()...)

	outliers := make(map[int]bool, len(dropped))
	for _, e := range dropped {
		outliers[e.seq] = true
	}

	decisions = make([]Decision, len(stream))
	for i := range stream {
		decisions[i] = Decision{Key: stream[i].Key(), Outlier: outliers[i]}
	}
	return reportsOf(final), reportsOf(dropped), decisions
}
