package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/riftfeed/riftfeed/internal/domain/event"
	"github.com/riftfeed/riftfeed/pkg/logger"
)

// ControlHandler serves the runtime control surface.
type ControlHandler struct {
	deps Dependencies
	log  logger.Logger
}

// NewControlHandler creates a new control handler.
func NewControlHandler(deps Dependencies) *ControlHandler {
	return &ControlHandler{deps: deps, log: logger.Named("api.control")}
}

// controlRequest is the command union for POST /control.
type controlRequest struct {
	Action     string          `json:"action"`
	Regime     string          `json:"regime,omitempty"`
	IntervalMS int             `json:"interval_ms,omitempty"`
	Event      json.RawMessage `json:"event,omitempty"`
}

type controlResponse struct {
	Status string `json:"status"`
}

// HandleControl handles POST /control requests.
func (h *ControlHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err)
		return
	}

	var err error
	switch req.Action {
	case "set_interval":
		if req.IntervalMS <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_interval",
				errors.New("interval_ms must be positive"))
			return
		}
		err = h.deps.SetPollInterval(req.Regime, time.Duration(req.IntervalMS)*time.Millisecond)
	case "pause":
		err = h.deps.PausePolling()
	case "resume":
		err = h.deps.ResumePolling()
	case "inject":
		err = h.inject(r, req.Event)
	default:
		writeError(w, http.StatusBadRequest, "unknown_action",
			errors.New("action must be one of set_interval, pause, resume, inject"))
		return
	}

	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "control_failed", err)
		return
	}

	h.log.Info("control command applied", logger.String("action", req.Action))
	writeJSON(w, http.StatusOK, controlResponse{Status: "ok"})
}

func (h *ControlHandler) inject(r *http.Request, raw json.RawMessage) error {
	if len(raw) == 0 {
		return errors.New("inject requires an event")
	}

	var ev event.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return err
	}
	return h.deps.InjectSynthetic(r.Context(), ev)
}
