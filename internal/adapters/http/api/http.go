// Package api declares HTTP contracts and route registration helpers for
// the daemon's local boundary: the event stream, the control surface and
// the introspection endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/riftfeed/riftfeed/internal/app"
	"github.com/riftfeed/riftfeed/internal/bus"
	"github.com/riftfeed/riftfeed/internal/domain/event"
)

// Dependencies required by the HTTP handlers. An interface bundle keeps
// the handler layer loosely coupled to the service assembly.
type Dependencies interface {
	// Subscribe attaches a consumer to the normalized event stream.
	Subscribe(kinds ...event.Kind) (*bus.Subscription, error)

	// Control operations.
	SetPollInterval(regime string, interval time.Duration) error
	PausePolling() error
	ResumePolling() error
	InjectSynthetic(ctx context.Context, ev event.Event) error

	// Stats returns the introspection view.
	Stats() app.Stats
}

// Server wires HTTP routes for the daemon boundary.
type Server struct {
	streamHandler  *StreamHandler
	controlHandler *ControlHandler
	statsHandler   *StatsHandler
	healthHandler  *HealthHandler
}

// NewServer creates an API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		streamHandler:  NewStreamHandler(deps),
		controlHandler: NewControlHandler(deps),
		statsHandler:   NewStatsHandler(deps),
		healthHandler:  NewHealthHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/stream", MetricsMiddleware(s.streamHandler.HandleStream, "stream"))
	mux.HandleFunc("/control", MetricsMiddleware(s.controlHandler.HandleControl, "control"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
