package engine

import (
	"slices"

	"github.com/yegors/planereports/internal/dedup"
	"github.com/yegors/planereports/internal/report"
	"github.com/yegors/planereports/internal/runway"
)

// Sighting summarises one aircraft's presence in a run
type Sighting struct {
	AircraftID string   `json:"hex"`
	ReporterID string   `json:"reporter"`
	FirstSeen  int64    `json:"first_seen"`
	LastSeen   int64    `json:"last_seen"`
	Flights    []string `json:"flights"`
	Reports    int      `json:"reports"`
}

func (s *Sighting) observe(r *report.PositionReport) {
	if s.Reports == 0 {
		s.AircraftID = r.AircraftID
		s.ReporterID = r.ReporterID
		s.FirstSeen = r.EpochSeconds
	}
	s.LastSeen = r.EpochSeconds
	s.Reports++

	flight := r.Flight()
	if flight == "" {
		return
	}
	for _, f := range s.Flights {
		if f == flight {
			return
		}
	}
	s.Flights = append(s.Flights, flight)
}

// AircraftResult is everything the engine decided for one aircraft
type AircraftResult struct {
	AircraftID string               `json:"hex"`
	Events     []runway.Event       `json:"events"`
	Duplicates []dedup.Decision     `json:"duplicates"`
	Outliers   []report.Key         `json:"outliers"`
	Reasons    map[dedup.Reason]int `json:"reasons"`
	Retained   int                  `json:"retained"`
	Sighting   Sighting             `json:"sighting"`
}

// Failure records an aircraft whose stream was rejected
type Failure struct {
	AircraftID string `json:"hex"`
	Error      string `json:"error"`
	Err        error  `json:"-"`
}

// Result is the outcome of a run over many aircraft
type Result struct {
	Aircraft   int                  `json:"aircraft"`
	Reports    int                  `json:"reports"`
	Retained   int                  `json:"retained"`
	Events     []runway.Event       `json:"events"`
	Duplicates []report.Key         `json:"duplicates"`
	Outliers   []report.Key         `json:"outliers"`
	Reasons    map[dedup.Reason]int `json:"reasons"`
	Sightings  []Sighting           `json:"sightings"`
	Failures   []Failure            `json:"failures"`
}

func newResult() *Result {
	return &Result{Reasons: make(map[dedup.Reason]int)}
}

func (r *Result) add(ar AircraftResult) {
	r.Aircraft++
	r.Reports += ar.Sighting.Reports
	r.Retained += ar.Retained
	r.Events = append(r.Events, ar.Events...)
	for _, d := range ar.Duplicates {
		r.Duplicates = append(r.Duplicates, d.Key)
	}
	r.Outliers = append(r.Outliers, ar.Outliers...)
	for reason, n := range ar.Reasons {
		r.Reasons[reason] += n
	}
	if ar.Sighting.Reports > 0 {
		r.Sightings = append(r.Sightings, ar.Sighting)
	}
}

// remove withdraws an aircraft result added earlier
func (r *Result) remove(ar AircraftResult) {
	r.Aircraft--
	r.Reports -= ar.Sighting.Reports
	r.Retained -= ar.Retained
	r.Events = slices.DeleteFunc(r.Events, func(ev runway.Event) bool { return ev.AircraftID == ar.AircraftID })
	r.Duplicates = slices.DeleteFunc(r.Duplicates, func(k report.Key) bool { return k.AircraftID == ar.AircraftID })
	r.Outliers = slices.DeleteFunc(r.Outliers, func(k report.Key) bool { return k.AircraftID == ar.AircraftID })
	for reason, n := range ar.Reasons {
		r.Reasons[reason] -= n
		if r.Reasons[reason] == 0 {
			delete(r.Reasons, reason)
		}
	}
	r.Sightings = slices.DeleteFunc(r.Sightings, func(s Sighting) bool { return s.AircraftID == ar.AircraftID })
}

func (r *Result) fail(aircraftID string, err error) {
	r.Failures = append(r.Failures, Failure{AircraftID: aircraftID, Error: err.Error(), Err: err})
}

// DeletionKeys returns the records a cleaning run would remove
func (r *Result) DeletionKeys() []report.Key {
	keys := make([]report.Key, 0, len(r.Duplicates)+len(r.Outliers))
	keys = append(keys, r.Duplicates...)
	return append(keys, r.Outliers...)
}
