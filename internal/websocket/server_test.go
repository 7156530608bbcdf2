package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/planereports/internal/runway"
	"github.com/yegors/planereports/pkg/logger"
)

func startHub(t *testing.T, origins []string) (*Server, *httptest.Server) {
	t.Helper()
	hub := NewServer(origins, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleConnection))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *gws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *gws.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// =============================================================================
// Broadcasting
// =============================================================================

func TestBroadcastRunwayEvent(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(EventMessage(runway.Event{
		AirportID: "YSSY", RunwayName: "16R/34L", AircraftID: "7c6b2d",
		FlightLabel: "QFA1", EpochSeconds: 1700000000, Kind: runway.Landed,
	}))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeRunwayEvent, msg.Type)
	assert.Equal(t, "YSSY", msg.Data["airport"])
	assert.Equal(t, "landed", msg.Data["kind"])
	assert.Equal(t, float64(1700000000), msg.Data["time"])
}

func TestAirportSubscription(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv, "/?airports=yssy")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(EventMessage(runway.Event{AirportID: "YMML", AircraftID: "a", Kind: runway.TookOff}))
	hub.Broadcast(EventMessage(runway.Event{AirportID: "YSSY", AircraftID: "b", Kind: runway.TookOff}))
	hub.Broadcast(RunCompletedMessage("run-1", 10, 1, 0, 0, 0))

	first := readMessage(t, conn)
	assert.Equal(t, "b", first.Data["hex"], "other airports are filtered out")

	second := readMessage(t, conn)
	assert.Equal(t, MessageTypeRunCompleted, second.Type, "messages without an airport reach everyone")
}

func TestSubscribeMessage(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": MessageTypeSubscribe,
		"data": map[string]any{"airports": []string{"YMML"}},
	}))

	// The subscription is applied asynchronously; poll with marker events
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			return !c.Wants(EventMessage(runway.Event{AirportID: "YSSY"}))
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(EventMessage(runway.Event{AirportID: "YSSY", AircraftID: "a"}))
	hub.Broadcast(EventMessage(runway.Event{AirportID: "YMML", AircraftID: "b"}))
	assert.Equal(t, "b", readMessage(t, conn).Data["hex"])
}

func TestOriginCheck(t *testing.T) {
	_, srv := startHub(t, []string{"https://reports.example"})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := gws.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://reports.example")
	conn, _, err := gws.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestClientsDroppedOnShutdown(t *testing.T) {
	hub := NewServer(nil, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleConnection))
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-stopped
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
