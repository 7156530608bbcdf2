package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yegors/planereports/pkg/logger"
)

// Router wires the HTTP routes
type Router struct {
	handler        *Handler
	allowedOrigins []string
	logger         *logger.Logger
}

// NewRouter creates a new router
func NewRouter(handler *Handler, allowedOrigins []string, log *logger.Logger) *Router {
	return &Router{
		handler:        handler,
		allowedOrigins: allowedOrigins,
		logger:         log.Named("router"),
	}
}

// Routes returns the HTTP handler serving every route
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(rt.requestLogger)
	r.Use(rt.cors)

	r.Get("/healthz", rt.handler.GetHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/airports/{icao}/events", rt.handler.GetAirportEvents)
		r.Post("/runs", rt.handler.CreateRun)
		r.Get("/runs/latest", rt.handler.GetLatestRun)
	})

	if rt.handler.wsServer != nil {
		r.Get("/ws", rt.handler.wsServer.HandleConnection)
	}

	return r
}

func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		rt.logger.Debug("HTTP request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (rt *Router) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && rt.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rt *Router) originAllowed(origin string) bool {
	for _, o := range rt.allowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
