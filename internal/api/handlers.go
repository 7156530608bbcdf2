package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/planereports/internal/engine"
	"github.com/yegors/planereports/internal/processing"
	"github.com/yegors/planereports/internal/runway"
	"github.com/yegors/planereports/internal/storage/sqlite"
	"github.com/yegors/planereports/internal/websocket"
	"github.com/yegors/planereports/pkg/logger"
)

// maxRunBody caps the size of a run request
const maxRunBody = 1 << 16

// Handler contains the API handlers
type Handler struct {
	processing *processing.Service
	wsServer   *websocket.Server
	logger     *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(processing *processing.Service, wsServer *websocket.Server, log *logger.Logger) *Handler {
	return &Handler{
		processing: processing,
		wsServer:   wsServer,
		logger:     log.Named("api-handler"),
	}
}

// GetHealth returns the health status of the service
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	response := map[string]any{"status": "ok"}

	if err := h.processing.Store().Ping(); err != nil {
		status = http.StatusServiceUnavailable
		response["status"] = "degraded"
		response["storage_error"] = err.Error()
	}
	if h.wsServer != nil {
		response["websocket_clients"] = h.wsServer.ClientCount()
	}

	WriteJSON(w, status, response)
}

// GetAirportEvents returns the stored runway events of an airport on one day
func (h *Handler) GetAirportEvents(w http.ResponseWriter, r *http.Request) {
	icao := strings.ToUpper(chi.URLParam(r, "icao"))

	day := time.Now().UTC()
	if date := r.URL.Query().Get("date"); date != "" {
		parsed, err := time.Parse(time.DateOnly, date)
		if err != nil {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q, want YYYY-MM-DD", date))
			return
		}
		day = parsed
	}

	if _, err := h.processing.Store().LoadAirport(r.Context(), icao); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "airport not found: "+icao)
			return
		}
		h.logger.Error("Failed to load airport", logger.Error(err), logger.String("icao", icao))
		WriteError(w, http.StatusInternalServerError, "failed to load airport")
		return
	}

	events, err := h.processing.Events(r.Context(), icao, day)
	if err != nil {
		h.logger.Error("Failed to list events", logger.Error(err), logger.String("icao", icao))
		WriteError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []runway.Event{}
	}

	if kind := r.URL.Query().Get("kind"); kind != "" {
		filtered := events[:0]
		for _, ev := range events {
			if string(ev.Kind) == kind {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"airport": icao,
		"date":    day.Format(time.DateOnly),
		"count":   len(events),
		"events":  events,
	})
}

// runRequest is the body of POST /runs
type runRequest struct {
	Start       string   `json:"start"` // RFC 3339 or epoch seconds
	End         string   `json:"end"`   // RFC 3339 or epoch seconds, empty means open
	Reporter    string   `json:"reporter"`
	MinDistance float64  `json:"min_distance"` // Metres from the receiver
	MaxDistance float64  `json:"max_distance"` // Metres from the receiver, 0 means open
	Stages      []string `json:"stages"`       // "dedup", "outlier", "events"; empty means all
	ListOnly    bool     `json:"list_only"`
}

// CreateRun processes a window of stored reports and broadcasts its events
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if r.ContentLength != 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRunBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	req, err := body.toRequest()
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.processing.Execute(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, processing.ErrInvalidWindow):
			status = http.StatusBadRequest
		case errors.Is(err, processing.ErrAirportNotLoaded), errors.Is(err, processing.ErrNoReceiver):
			status = http.StatusConflict
		}
		h.logger.Error("Run failed", logger.Error(err))
		WriteError(w, status, err.Error())
		return
	}

	if h.wsServer != nil {
		for _, ev := range run.Result.Events {
			h.wsServer.Broadcast(websocket.EventMessage(ev))
		}
		res := run.Result
		h.wsServer.Broadcast(websocket.RunCompletedMessage(run.ID, res.Reports, len(res.Events),
			len(res.Duplicates), len(res.Outliers), len(res.Failures)))
	}

	WriteJSON(w, http.StatusCreated, run)
}

// GetLatestRun returns the most recent run
func (h *Handler) GetLatestRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.processing.Latest()
	if !ok {
		WriteError(w, http.StatusNotFound, "no run yet")
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

func (b runRequest) toRequest() (processing.Request, error) {
	start, err := ParseTime(b.Start)
	if err != nil {
		return processing.Request{}, fmt.Errorf("invalid start: %w", err)
	}
	end, err := ParseTime(b.End)
	if err != nil {
		return processing.Request{}, fmt.Errorf("invalid end: %w", err)
	}
	stages, err := ParseStages(b.Stages)
	if err != nil {
		return processing.Request{}, err
	}
	return processing.Request{
		Start:       start,
		End:         end,
		ReporterID:  b.Reporter,
		MinDistance: b.MinDistance,
		MaxDistance: b.MaxDistance,
		Stages:      stages,
		ListOnly:    b.ListOnly,
	}, nil
}

// ParseTime accepts RFC 3339, a bare date or epoch seconds. Empty is zero.
func ParseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		return epoch, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Unix(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.Unix(), nil
	}
	return 0, fmt.Errorf("unrecognised time %q", s)
}

// ParseStages converts stage names to an engine stage set. No names means
// every stage.
func ParseStages(names []string) (engine.Stage, error) {
	var stages engine.Stage
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "dedup", "dedupe":
			stages |= engine.StageDedup
		case "outlier", "outliers", "clean":
			stages |= engine.StageOutlier
		case "events":
			stages |= engine.StageEvents
		case "all":
			stages |= engine.AllStages
		default:
			return 0, fmt.Errorf("unknown stage %q", name)
		}
	}
	if stages == 0 {
		stages = engine.AllStages
	}
	return stages, nil
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// WriteError writes a JSON error body
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}
