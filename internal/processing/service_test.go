package processing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/planereports/internal/adsb"
	"github.com/yegors/planereports/internal/engine"
	"github.com/yegors/planereports/internal/report"
	"github.com/yegors/planereports/internal/runway"
	"github.com/yegors/planereports/internal/storage/sqlite"
	"github.com/yegors/planereports/pkg/logger"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "reports.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dublin() *runway.Airport {
	return &runway.Airport{
		ICAO:           "EIDW",
		Name:           "Dublin",
		AltitudeMeters: 74,
		Latitude:       53.42,
		Longitude:      -6.27,
		Runways: []runway.Runway{
			{AirportID: "EIDW", Name: "09 27", HeadingDegrees: 90, RefLatitude: 53.42, RefLongitude: -6.27},
		},
	}
}

func fix(t int64, lon, alt, track float64, onGround bool) report.PositionReport {
	return report.PositionReport{
		AircraftID:     "4ca1fa",
		FlightLabel:    "EIN1",
		EpochSeconds:   t,
		Latitude:       53.42,
		Longitude:      lon,
		AltitudeMeters: alt,
		SpeedKph:       250,
		TrackDegrees:   track,
		OnGround:       onGround,
		ReporterID:     "home",
	}
}

// noisyDay is a landing with a re-broadcast and a wild position, then a
// departure half an hour later
func noisyDay() []report.PositionReport {
	var stream []report.PositionReport
	alts := []float64{250, 200, 150, 100, 74}
	for i, alt := range alts {
		stream = append(stream, fix(1000+int64(i*10), -6.35+float64(i)*0.01, alt, 90, i == len(alts)-1))
	}

	dup := stream[1]
	dup.EpochSeconds = 1013
	wild := fix(1025, -6.30, 150, 90, false)
	wild.Latitude = 56.0
	stream = append(stream, dup, wild)

	for i, alt := range []float64{80, 120, 180, 240} {
		stream = append(stream, fix(3000+int64(i*10), -6.25-float64(i)*0.01, alt, 270, false))
	}
	return stream
}

func newService(t *testing.T) (*Service, *sqlite.Store) {
	t.Helper()
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveAirport(ctx, dublin()))
	_, err := store.InsertReports(ctx, noisyDay())
	require.NoError(t, err)
	return NewService(store, engine.DefaultConfig(), []string{"EIDW"}, 3, logger.NewNop()), store
}

// ============================================================================
// Runs
// ============================================================================

func TestExecuteListOnly(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	run, err := svc.Execute(ctx, Request{ListOnly: true})
	require.NoError(t, err)

	assert.Len(t, run.Result.Events, 2)
	assert.Len(t, run.Result.Duplicates, 1)
	assert.Len(t, run.Result.Outliers, 1)
	assert.Equal(t, int64(0), run.Deleted)
	assert.Equal(t, 0, run.EventsStored)

	n, err := store.CountReports(ctx, sqlite.ReportFilter{})
	require.NoError(t, err)
	assert.Equal(t, 11, n, "list only leaves storage alone")

	events, err := svc.Events(ctx, "EIDW", time.Unix(1000, 0).UTC())
	require.NoError(t, err)
	assert.Empty(t, events)

	latest, ok := svc.Latest()
	require.True(t, ok)
	assert.Equal(t, run.ID, latest.ID)
}

func TestExecuteApplies(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	run, err := svc.Execute(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), run.Deleted)
	assert.Equal(t, 2, run.EventsStored)

	n, err := store.CountReports(ctx, sqlite.ReportFilter{})
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	events, err := svc.Events(ctx, "EIDW", time.Unix(1000, 0).UTC())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, runway.Landed, events[0].Kind)
	assert.Equal(t, runway.TookOff, events[1].Kind)

	sightings, err := store.ListSightings(ctx, sqlite.Day(1000))
	require.NoError(t, err)
	require.Len(t, sightings, 1)
	assert.Equal(t, "4ca1fa", sightings[0].AircraftID)

	again, err := svc.Execute(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.Deleted, "a cleaned window has nothing left to delete")
	assert.Equal(t, 0, again.EventsStored, "events are stored once")
	assert.Len(t, again.Result.Events, 2)
}

func TestExecuteSingleStage(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	run, err := svc.Execute(ctx, Request{Stages: engine.StageDedup})
	require.NoError(t, err)
	assert.Equal(t, int64(1), run.Deleted)
	assert.Empty(t, run.Result.Events)
	assert.Empty(t, run.Result.Outliers)

	n, err := store.CountReports(ctx, sqlite.ReportFilter{})
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestExecuteWindow(t *testing.T) {
	svc, _ := newService(t)

	run, err := svc.Execute(context.Background(), Request{Start: 2000, End: 4000, ListOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 4, run.Result.Reports)
	require.Len(t, run.Result.Events, 1)
	assert.Equal(t, runway.TookOff, run.Result.Events[0].Kind)

	_, err = svc.Execute(context.Background(), Request{Start: 4000, End: 2000})
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestExecuteDistanceBounds(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Execute(ctx, Request{MaxDistance: 50000, ListOnly: true})
	assert.ErrorIs(t, err, ErrNoReceiver)

	svc.SetReceiver(53.42, -6.30)

	// The wild position is some 290 km away and never reaches the engine
	run, err := svc.Execute(ctx, Request{MaxDistance: 50000, ListOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 10, run.Result.Reports)
	assert.Empty(t, run.Result.Outliers)
	assert.Len(t, run.Result.Duplicates, 1)
	assert.Len(t, run.Result.Events, 2)

	run, err = svc.Execute(ctx, Request{MinDistance: 100000, ListOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, run.Result.Reports)

	_, err = svc.Execute(ctx, Request{MinDistance: 5000, MaxDistance: 1000})
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestExecuteMissingAirport(t *testing.T) {
	store := newStore(t)
	svc := NewService(store, engine.DefaultConfig(), []string{"YSSY"}, 100, logger.NewNop())

	_, err := svc.Execute(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrAirportNotLoaded)

	_, err = svc.Execute(context.Background(), Request{Stages: engine.StageDedup})
	assert.NoError(t, err, "airports are only needed for events")

	_, ok := svc.Latest()
	assert.True(t, ok)
}

// ============================================================================
// Import and export
// ============================================================================

func TestExportImportRoundTrip(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "day.jsonl.zst")

	written, err := svc.Export(ctx, path, Request{})
	require.NoError(t, err)
	assert.Equal(t, 11, written)

	other := NewService(newStore(t), engine.DefaultConfig(), nil, 100, logger.NewNop())
	stats, err := other.ImportArchive(ctx, path, adsb.Options{})
	require.NoError(t, err)
	assert.Equal(t, 11, stats.Documents)
	assert.Equal(t, 11, stats.Reports)

	n, err := other.Store().CountReports(ctx, sqlite.ReportFilter{ReporterID: "home"})
	require.NoError(t, err)
	assert.Equal(t, 11, n)
}

func TestImportAirports(t *testing.T) {
	svc := NewService(newStore(t), engine.DefaultConfig(), []string{"YSSY"}, 100, logger.NewNop())
	ctx := context.Background()

	airports, err := svc.ImportAirports(ctx, filepath.Join("..", "..", "configs", "airports.json"), runway.LoadOptions{})
	require.NoError(t, err)
	require.Len(t, airports, 1)

	stored, err := svc.Store().LoadAirport(ctx, "YSSY")
	require.NoError(t, err)
	assert.Len(t, stored.Runways, 3)
	assert.NotNil(t, stored.Runways[0].Area)
}
