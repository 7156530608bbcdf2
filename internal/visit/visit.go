// Package visit splits an aircraft's cleaned report stream into visits: runs
// of reports close enough in time to belong to one pass over an airport.
package visit

import (
	"fmt"

	"github.com/yegors/planereports/internal/report"
)

// DefaultMinTurnaroundSeconds is the shortest gap that separates two visits
const DefaultMinTurnaroundSeconds = 600

// Policy selects the break rule
type Policy int

const (
	// GapOnly breaks on turnaround gaps, used for stored history
	GapOnly Policy = iota
	// GapOrStop also breaks when a stationary report ends a run of moving
	// ones, used when scanning raw feed data
	GapOrStop
)

// ParsePolicy converts a configuration value into a Policy
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "gap", "":
		return GapOnly, nil
	case "gap_or_stop":
		return GapOrStop, nil
	default:
		return GapOnly, fmt.Errorf("unknown segmentation policy: %s", s)
	}
}

// Visit is a contiguous run of one aircraft's reports
type Visit struct {
	Reports []report.PositionReport
}

// First returns the earliest report of the visit
func (v Visit) First() *report.PositionReport { return &v.Reports[0] }

// Last returns the latest report of the visit
func (v Visit) Last() *report.PositionReport { return &v.Reports[len(v.Reports)-1] }

// Middle returns the report at the midpoint index
func (v Visit) Middle() *report.PositionReport { return &v.Reports[len(v.Reports)/2] }

// Len returns the number of reports in the visit
func (v Visit) Len() int { return len(v.Reports) }

// Duration returns the time spanned by the visit in seconds
func (v Visit) Duration() int64 {
	return v.Last().EpochSeconds - v.First().EpochSeconds
}

// Segmenter builds visits incrementally. Only the open visit is held between
// pushes.
type Segmenter struct {
	minTurnaround int64
	policy        Policy
	open          []report.PositionReport
}

// NewSegmenter creates a segmenter
func NewSegmenter(minTurnaroundSeconds int64, policy Policy) *Segmenter {
	return &Segmenter{
		minTurnaround: minTurnaroundSeconds,
		policy:        policy,
	}
}

// Breaks reports whether next starts a new visit after prev
func (s *Segmenter) Breaks(prev, next *report.PositionReport) bool {
	if next.EpochSeconds-prev.EpochSeconds > s.minTurnaround {
		return true
	}
	if s.policy == GapOrStop && next.SpeedKph == 0 && prev.SpeedKph > 0 {
		return true
	}
	return false
}

// Push adds reports and returns the visits closed by them
func (s *Segmenter) Push(page []report.PositionReport) []Visit {
	var closed []Visit
	for _, r := range page {
		if len(s.open) > 0 && s.Breaks(&s.open[len(s.open)-1], &r) {
			closed = append(closed, Visit{Reports: s.open})
			s.open = nil
		}
		s.open = append(s.open, r)
	}
	return closed
}

// Flush closes the open visit, if any
func (s *Segmenter) Flush() []Visit {
	if len(s.open) == 0 {
		return nil
	}
	v := Visit{Reports: s.open}
	s.open = nil
	return []Visit{v}
}

// Split segments a complete stream
func Split(stream []report.PositionReport, minTurnaroundSeconds int64, policy Policy) []Visit {
	s := NewSegmenter(minTurnaroundSeconds, policy)
	visits := s.Push(stream)
	return append(visits, s.Flush()...)
}
