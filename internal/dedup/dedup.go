// Package dedup suppresses position reports that are re-broadcasts of the
// previous fix.
//
// Receivers such as dump1090 keep marking an aircraft as seen while it sends
// non-position messages, and aircraft near an airport answer interrogations
// every second, so polling the receiver produces long runs of identical reports
// that differ only in their timestamp. The filter keeps the first of each run.
package dedup

import (
	"fmt"
	"math"

	"github.com/yegors/planereports/internal/report"
)

// Reason explains why a report was judged distinct from, or equal to, the
// last retained report
type Reason int

const (
	ReasonEqual        Reason = iota // duplicate of the previous report
	ReasonHex                        // aircraft differs
	ReasonFlight                     // flight label differs
	ReasonLocation                   // position differs
	ReasonNullPrevious               // nothing to compare with
	ReasonStale                      // same payload but too long in one spot
)

var reasonNames = map[Reason]string{
	ReasonEqual:        "is equal",
	ReasonHex:          "hex value",
	ReasonFlight:       "flight value",
	ReasonLocation:     "location value",
	ReasonNullPrevious: "null previous",
	ReasonStale:        "too long in one spot",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// MarshalText lets reasons be used as JSON object keys
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Config holds the duplicate filter tunables
type Config struct {
	StalenessSeconds  int64 // Identical reports further apart than this are distinct observations
	LocationPrecision int   // Decimal places of lat/lon compared; negative compares exactly
}

// DefaultConfig returns the standard tunables
func DefaultConfig() Config {
	return Config{
		StalenessSeconds:  10,
		LocationPrecision: 6,
	}
}

// Decision is the verdict for a single report
type Decision struct {
	Key       report.Key `json:"key"`
	Duplicate bool       `json:"duplicate"`
	Reason    Reason     `json:"reason"`
}

// Stats accumulates decisions for one filter instance
type Stats struct {
	Retained int            `json:"retained"`
	Dropped  int            `json:"dropped"`
	Reasons  map[Reason]int `json:"reasons"`
}

// Filter is a stateful duplicate filter over a time ordered stream. It keeps
// only the last retained report between calls, so a stream may be pushed one
// page at a time.
type Filter struct {
	cfg      Config
	previous *report.PositionReport
	stats    Stats
}

// New creates a duplicate filter
func New(cfg Config) *Filter {
	return &Filter{
		cfg:   cfg,
		stats: Stats{Reasons: make(map[Reason]int)},
	}
}

// Compare classifies r against the last retained report prev
func Compare(prev, r *report.PositionReport, cfg Config) Reason {
	switch {
	case prev == nil:
		return ReasonNullPrevious
	case prev.AircraftID != r.AircraftID:
		return ReasonHex
	case prev.FlightLabel != r.FlightLabel:
		return ReasonFlight
	case !sameLocation(prev, r, cfg.LocationPrecision):
		return ReasonLocation
	case r.EpochSeconds-prev.EpochSeconds > cfg.StalenessSeconds:
		// Staleness wins over payload equality
		return ReasonStale
	default:
		return ReasonEqual
	}
}

func sameLocation(a, b *report.PositionReport, precision int) bool {
	if precision < 0 {
		return a.Latitude == b.Latitude && a.Longitude == b.Longitude
	}
	scale := math.Pow(10, float64(precision))
	return math.Round(a.Latitude*scale) == math.Round(b.Latitude*scale) &&
		math.Round(a.Longitude*scale) == math.Round(b.Longitude*scale)
}

// Decide judges one report and advances the filter state
func (f *Filter) Decide(r *report.PositionReport) Decision {
	reason := Compare(f.previous, r, f.cfg)
	f.stats.Reasons[reason]++

	if reason == ReasonEqual {
		f.stats.Dropped++
		return Decision{Key: r.Key(), Duplicate: true, Reason: reason}
	}

	prev := *r
	f.previous = &prev
	f.stats.Retained++
	return Decision{Key: r.Key(), Duplicate: false, Reason: reason}
}

// Push runs a page of reports through the filter, returning the retained
// reports in their original order and one decision per input report
func (f *Filter) Push(page []report.PositionReport) ([]report.PositionReport, []Decision) {
	kept := make([]report.PositionReport, 0, len(page))
	decisions := make([]Decision, 0, len(page))

	for i := range page {
		d := f.Decide(&page[i])
		decisions = append(decisions, d)
		if !d.Duplicate {
			kept = append(kept, page[i])
		}
	}
	return kept, decisions
}

// Stats returns a copy of the accumulated counters
func (f *Filter) Stats() Stats {
	out := Stats{
		Retained: f.stats.Retained,
		Dropped:  f.stats.Dropped,
		Reasons:  make(map[Reason]int, len(f.stats.Reasons)),
	}
	for k, v := range f.stats.Reasons {
		out.Reasons[k] = v
	}
	return out
}

// Reset forgets the previous report so the next one starts a new stream
func (f *Filter) Reset() {
	f.previous = nil
}

// Apply filters a complete stream in one call
func Apply(stream []report.PositionReport, cfg Config) ([]report.PositionReport, []Decision, Stats) {
	f := New(cfg)
	kept, decisions := f.Push(stream)
	return kept, decisions, f.Stats()
}
