package runway

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/planereports/internal/geo"
	"github.com/yegors/planereports/internal/report"
	"github.com/yegors/planereports/internal/visit"
)

func fix(t int64, alt, track float64, onGround bool) report.PositionReport {
	return report.PositionReport{
		AircraftID:     "4ca1fa",
		FlightLabel:    "EIN123  ",
		EpochSeconds:   t,
		Latitude:       53.42,
		Longitude:      -6.27,
		AltitudeMeters: alt,
		TrackDegrees:   track,
		OnGround:       onGround,
	}
}

func testRunway() *Runway {
	return &Runway{AirportID: "EIDW", Name: "10 28", HeadingDegrees: 90, RefLatitude: 53.42, RefLongitude: -6.27}
}

// ============================================================================
// Classification
// ============================================================================

func TestClassifyLanding(t *testing.T) {
	v := visit.Visit{Reports: []report.PositionReport{
		fix(0, 500, 91, false),
		fix(60, 300, 92, false),
		fix(120, 0, 90, true),
	}}

	ev, ok := NewClassifier(DefaultBearingTolerance).Classify(v, testRunway())
	require.True(t, ok)
	assert.Equal(t, Landed, ev.Kind)
	assert.Equal(t, "EIDW", ev.AirportID)
	assert.Equal(t, "10 28", ev.RunwayName)
	assert.Equal(t, "4ca1fa", ev.AircraftID)
	assert.Equal(t, "EIN123", ev.FlightLabel)
	assert.Equal(t, int64(120), ev.EpochSeconds)
}

func TestClassifyBumpAndGo(t *testing.T) {
	v := visit.Visit{Reports: []report.PositionReport{
		fix(0, 0, 271, true),
		fix(30, 50, 268, false),
		fix(60, 150, 270, false),
	}}

	ev, ok := NewClassifier(DefaultBearingTolerance).Classify(v, testRunway())
	require.True(t, ok)
	assert.Equal(t, BumpAndGo, ev.Kind)
	assert.Equal(t, int64(60), ev.EpochSeconds)
}

func TestClassifyTakeoff(t *testing.T) {
	v := visit.Visit{Reports: []report.PositionReport{
		fix(0, 20, 90, false),
		fix(30, 80, 89, false),
		fix(60, 200, 90, false),
	}}

	ev, ok := NewClassifier(DefaultBearingTolerance).Classify(v, testRunway())
	require.True(t, ok)
	assert.Equal(t, TookOff, ev.Kind)
}

func TestClassifyNoRunwayMatch(t *testing.T) {
	v := visit.Visit{Reports: []report.PositionReport{
		fix(0, 500, 90, false),
		fix(60, 300, 180, false),
		fix(120, 0, 90, true),
	}}

	// Only the midpoint track counts
	_, ok := NewClassifier(DefaultBearingTolerance).Classify(v, testRunway())
	assert.False(t, ok)
}

func TestClassifyToleranceWraparound(t *testing.T) {
	rw := &Runway{AirportID: "EGLL", Name: "36 18", HeadingDegrees: 0}
	v := visit.Visit{Reports: []report.PositionReport{fix(0, 100, 2, false)}}

	_, ok := NewClassifier(4).Classify(v, rw)
	assert.True(t, ok, "track 2 on a 360 runway")

	v = visit.Visit{Reports: []report.PositionReport{fix(0, 100, 174, false)}}
	_, ok = NewClassifier(4).Classify(v, rw)
	assert.False(t, ok)
}

func TestKindOf(t *testing.T) {
	for _, tc := range []struct {
		name  string
		first float64
		last  float64
		gnd   bool
		want  EventKind
	}{
		{"level", 100, 100, false, Landed},
		{"descent", 300, 0, true, Landed},
		{"climb", 0, 300, false, TookOff},
		{"touch", 0, 300, true, BumpAndGo},
		{"unknown altitude", math.NaN(), 300, false, Indeterminate},
	} {
		t.Run(tc.name, func(t *testing.T) {
			reports := []report.PositionReport{fix(0, tc.first, 90, tc.gnd), fix(60, tc.last, 90, false)}
			assert.Equal(t, tc.want, KindOf(reports))
		})
	}
	assert.Equal(t, Indeterminate, KindOf(nil))
}

func TestClassifyRestrictsToArea(t *testing.T) {
	area, err := geo.StripArea(geo.LatLon{Lat: 53.42, Lon: -6.30}, geo.LatLon{Lat: 53.42, Lon: -6.25}, 60)
	require.NoError(t, err)
	rw := testRunway()
	rw.Area = area

	onStrip := fix(100, 0, 90, true)
	approach := fix(0, 400, 90, false)
	approach.Longitude = -6.40

	// Before restriction first altitude > last; on the strip only one report is left
	ev, ok := NewClassifier(DefaultBearingTolerance).Classify(visit.Visit{Reports: []report.PositionReport{approach, onStrip}}, rw)
	require.True(t, ok)
	assert.Equal(t, Landed, ev.Kind)
	assert.Equal(t, int64(100), ev.EpochSeconds)

	_, ok = NewClassifier(DefaultBearingTolerance).Classify(visit.Visit{Reports: []report.PositionReport{approach}}, rw)
	assert.False(t, ok, "nothing inside the area")
}

func TestClassifyVisitTrustsCaller(t *testing.T) {
	area, err := geo.StripArea(geo.LatLon{Lat: 53.42, Lon: -6.30}, geo.LatLon{Lat: 53.42, Lon: -6.25}, 60)
	require.NoError(t, err)
	rw := testRunway()
	rw.Area = area

	approach := fix(0, 400, 90, false)
	approach.Longitude = -6.40
	v := visit.Visit{Reports: []report.PositionReport{approach, fix(60, 0, 90, true)}}

	ev, ok := NewClassifier(DefaultBearingTolerance).ClassifyVisit(v, rw)
	require.True(t, ok)
	assert.Equal(t, Landed, ev.Kind)
	assert.Equal(t, int64(60), ev.EpochSeconds)

	_, ok = NewClassifier(DefaultBearingTolerance).ClassifyVisit(visit.Visit{}, rw)
	assert.False(t, ok, "empty visit")
}

// ============================================================================
// Reference data
// ============================================================================

func TestApproachBand(t *testing.T) {
	airport := &Airport{AltitudeMeters: 74}
	band := airport.ApproachBand(DefaultFloorMargin, DefaultCommittedHeight)

	assert.Equal(t, -76.0, band.Min)
	assert.Equal(t, 274.0, band.Max)
	assert.True(t, band.Contains(274))
	assert.False(t, band.Contains(274.5))
	assert.True(t, band.Contains(-76))
}

func TestLoadFromEnds(t *testing.T) {
	doc := `{
		"icao": "eidw",
		"name": "Dublin",
		"altitude": 74,
		"runways": [
			{"name": "10 28", "ends": [{"lat": 53.42, "lon": -6.30}, {"lat": 53.42, "lon": -6.25}], "width": 60}
		]
	}`

	airports, err := Load(strings.NewReader(doc), LoadOptions{})
	require.NoError(t, err)
	require.Len(t, airports, 1)

	a := airports[0]
	assert.Equal(t, "EIDW", a.ICAO)
	require.Len(t, a.Runways, 1)
	rw := a.Runways[0]
	assert.Equal(t, "EIDW", rw.AirportID)
	assert.InDelta(t, 90.0, rw.HeadingDegrees, 0.1)
	assert.InDelta(t, -6.275, rw.RefLongitude, 1e-6)
	require.NotNil(t, rw.Area)
	assert.True(t, rw.Area.Contains(53.42, -6.28))

	// Airport position falls back to the first runway
	assert.Equal(t, rw.RefLatitude, a.Latitude)
	assert.Equal(t, rw.RefLongitude, a.Longitude)

	found, ok := a.Runway("10 28")
	require.True(t, ok)
	assert.Equal(t, rw.Name, found.Name)
}

func TestLoadMagneticHeadings(t *testing.T) {
	doc := `[{
		"icao": "EIDW",
		"altitude": 74,
		"lat": 53.42,
		"lon": -6.27,
		"magnetic_headings": true,
		"runways": [{"name": "10 28", "heading": 100, "lat": 53.42, "lon": -6.27}]
	}]`

	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	airports, err := Load(strings.NewReader(doc), LoadOptions{Date: date})
	require.NoError(t, err)

	decl, err := geo.MagneticDeclination(53.42, -6.27, 74, date)
	require.NoError(t, err)
	assert.InDelta(t, geo.MagneticToTrue(100, decl), airports[0].Runways[0].HeadingDegrees, 1e-9)
	assert.NotEqual(t, 100.0, airports[0].Runways[0].HeadingDegrees)
}

func TestLoadAreaCentroid(t *testing.T) {
	doc := `{"icao": "EIWT", "runways": [{"name": "H1", "heading": 45, "area": [
		{"lat": 53.00, "lon": -6.00}, {"lat": 53.00, "lon": -5.98},
		{"lat": 53.02, "lon": -5.98}, {"lat": 53.02, "lon": -6.00}
	]}]}`

	airports, err := Load(strings.NewReader(doc), LoadOptions{})
	require.NoError(t, err)
	rw := airports[0].Runways[0]
	assert.InDelta(t, 53.01, rw.RefLatitude, 1e-9)
	assert.InDelta(t, -5.99, rw.RefLongitude, 1e-9)
	assert.Equal(t, 45.0, rw.HeadingDegrees)
}

func TestLoadRejectsBadDefinitions(t *testing.T) {
	for name, doc := range map[string]string{
		"no icao":       `{"runways": [{"name": "09", "heading": 90, "lat": 1, "lon": 1}]}`,
		"no heading":    `{"icao": "XXXX", "runways": [{"name": "09", "lat": 1, "lon": 1}]}`,
		"no position":   `{"icao": "XXXX", "runways": [{"name": "09", "heading": 90}]}`,
		"one end":       `{"icao": "XXXX", "runways": [{"name": "09", "ends": [{"lat": 1, "lon": 1}]}]}`,
		"unnamed":       `{"icao": "XXXX", "runways": [{"heading": 90, "lat": 1, "lon": 1}]}`,
		"nowhere":       `{"icao": "XXXX"}`,
		"broken json":   `{"icao": `,
		"small polygon": `{"icao": "XXXX", "runways": [{"name": "09", "heading": 90, "area": [{"lat": 1, "lon": 1}]}]}`,
	} {
		_, err := Load(strings.NewReader(doc), LoadOptions{})
		assert.Error(t, err, name)
	}
}
