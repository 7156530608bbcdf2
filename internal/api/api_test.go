package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/planereports/internal/engine"
	"github.com/yegors/planereports/internal/processing"
	"github.com/yegors/planereports/internal/report"
	"github.com/yegors/planereports/internal/runway"
	"github.com/yegors/planereports/internal/storage/sqlite"
	"github.com/yegors/planereports/internal/websocket"
	"github.com/yegors/planereports/pkg/logger"
)

func fix(t int64, lon, alt, track float64, onGround bool) report.PositionReport {
	return report.PositionReport{
		AircraftID: "4ca1fa", FlightLabel: "EIN1", EpochSeconds: t,
		Latitude: 53.42, Longitude: lon, AltitudeMeters: alt, SpeedKph: 250,
		TrackDegrees: track, OnGround: onGround, ReporterID: "home",
	}
}

// landingAndDeparture lands eastbound then leaves westbound half an hour later
func landingAndDeparture() []report.PositionReport {
	var stream []report.PositionReport
	alts := []float64{250, 200, 150, 100, 74}
	for i, alt := range alts {
		stream = append(stream, fix(1000+int64(i*10), -6.35+float64(i)*0.01, alt, 90, i == len(alts)-1))
	}
	for i, alt := range []float64{80, 120, 180, 240} {
		stream = append(stream, fix(3000+int64(i*10), -6.25-float64(i)*0.01, alt, 270, false))
	}
	return stream
}

type testServer struct {
	srv *httptest.Server
	hub *websocket.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	log := logger.NewNop()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "reports.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SaveAirport(ctx, &runway.Airport{
		ICAO: "EIDW", Name: "Dublin", AltitudeMeters: 74, Latitude: 53.42, Longitude: -6.27,
		Runways: []runway.Runway{
			{AirportID: "EIDW", Name: "09 27", HeadingDegrees: 90, RefLatitude: 53.42, RefLongitude: -6.27},
		},
	}))
	_, err = store.InsertReports(ctx, landingAndDeparture())
	require.NoError(t, err)

	hubCtx, cancel := context.WithCancel(ctx)
	hub := websocket.NewServer(nil, log)
	go hub.Run(hubCtx)

	svc := processing.NewService(store, engine.DefaultConfig(), []string{"EIDW"}, 100, log)
	handler := NewHandler(svc, hub, log)
	srv := httptest.NewServer(NewRouter(handler, []string{"https://ui.example"}, log).Routes())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testServer{srv: srv, hub: hub}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// =============================================================================
// Routes
// =============================================================================

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	status, body := ts.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["websocket_clients"])
}

func TestRunLifecycle(t *testing.T) {
	ts := newTestServer(t)

	status, _ := ts.do(t, http.MethodGet, "/api/v1/runs/latest", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, body := ts.do(t, http.MethodGet, "/api/v1/airports/eidw/events?date=1970-01-01", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["count"])

	status, run := ts.do(t, http.MethodPost, "/api/v1/runs", `{"start": "0", "list_only": true}`)
	require.Equal(t, http.StatusCreated, status)
	result := run["result"].(map[string]any)
	assert.Len(t, result["events"], 2)
	assert.Equal(t, float64(0), run["events_stored"])

	status, latest := ts.do(t, http.MethodGet, "/api/v1/runs/latest", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, run["id"], latest["id"])

	status, run = ts.do(t, http.MethodPost, "/api/v1/runs", `{"stages": ["all"]}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(2), run["events_stored"])

	status, body = ts.do(t, http.MethodGet, "/api/v1/airports/EIDW/events?date=1970-01-01", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["count"])
	events := body["events"].([]any)
	assert.Equal(t, "landed", events[0].(map[string]any)["kind"])

	status, body = ts.do(t, http.MethodGet, "/api/v1/airports/EIDW/events?date=1970-01-01&kind=took_off", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)

	for _, tc := range []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"bad date", http.MethodGet, "/api/v1/airports/EIDW/events?date=yesterday", "", http.StatusBadRequest},
		{"unknown airport", http.MethodGet, "/api/v1/airports/YSSY/events", "", http.StatusNotFound},
		{"bad stage", http.MethodPost, "/api/v1/runs", `{"stages": ["smooth"]}`, http.StatusBadRequest},
		{"bad start", http.MethodPost, "/api/v1/runs", `{"start": "noon"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/runs", `{"airport": "EIDW"}`, http.StatusBadRequest},
		{"empty window", http.MethodPost, "/api/v1/runs", `{"start": "2000", "end": "1000"}`, http.StatusBadRequest},
		{"reversed distances", http.MethodPost, "/api/v1/runs", `{"min_distance": 5000, "max_distance": 1000}`, http.StatusBadRequest},
		{"no receiver", http.MethodPost, "/api/v1/runs", `{"max_distance": 50000}`, http.StatusConflict},
	} {
		t.Run(tc.name, func(t *testing.T) {
			status, body := ts.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.srv.URL+"/api/v1/runs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://ui.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://ui.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://other.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRunBroadcastsEvents(t *testing.T) {
	ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws?airports=EIDW"
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return ts.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	status, _ := ts.do(t, http.MethodPost, "/api/v1/runs", "")
	require.Equal(t, http.StatusCreated, status)

	var kinds []string
	for len(kinds) < 3 {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg websocket.Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == websocket.MessageTypeRunwayEvent {
			kinds = append(kinds, msg.Data["kind"].(string))
		} else {
			kinds = append(kinds, msg.Type)
		}
	}
	assert.Equal(t, []string{"landed", "took_off", websocket.MessageTypeRunCompleted}, kinds)
}

// =============================================================================
// Parsing helpers
// =============================================================================

func TestParseTime(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"1700000000", 1700000000},
		{"2023-11-14T22:13:20Z", 1700000000},
		{"1970-01-02", 86400},
	} {
		got, err := ParseTime(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseTime("tomorrow")
	assert.Error(t, err)
}

func TestParseStages(t *testing.T) {
	s, err := ParseStages(nil)
	require.NoError(t, err)
	assert.Equal(t, engine.AllStages, s)

	s, err = ParseStages([]string{"dedup", "events"})
	require.NoError(t, err)
	assert.True(t, s.Has(engine.StageDedup))
	assert.False(t, s.Has(engine.StageOutlier))
	assert.True(t, s.Has(engine.StageEvents))

	_, err = ParseStages([]string{"smooth"})
	assert.Error(t, err)
}
