package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/riftfeed/riftfeed/internal/bus"
	"github.com/riftfeed/riftfeed/internal/domain/event"
	"github.com/riftfeed/riftfeed/pkg/logger"
)

// streamWriteTimeout bounds each outbound frame; the bus skip-ahead
// policy handles the slow consumer, the socket must not.
const streamWriteTimeout = 5 * time.Second

// StreamHandler serves the websocket event stream.
type StreamHandler struct {
	deps Dependencies
	log  logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps Dependencies) *StreamHandler {
	return &StreamHandler{deps: deps, log: logger.Named("api.stream")}
}

// streamFrame is the wire envelope. Gap notices tell the consumer how
// many events the retention window dropped before this one.
type streamFrame struct {
	Type   string       `json:"type"`
	Event  *event.Event `json:"event,omitempty"`
	Missed uint64       `json:"missed,omitempty"`
}

// inboundFrame is what a consumer may send on the stream socket. The
// only action is set_filter, which replaces the kind filter in place.
type inboundFrame struct {
	Action string `json:"action"`
	Kinds  string `json:"kinds"`
}

// HandleStream handles GET /stream requests: upgrades to a websocket and
// forwards the subscribed event stream. The kinds query parameter is a
// comma-separated filter; empty means everything. The filter can be
// replaced mid-stream with a set_filter frame.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}

	kinds, err := parseKinds(r.URL.Query().Get("kinds"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_kinds", err)
		return
	}

	sub, err := h.deps.Subscribe(kinds...)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "subscribe_failed", err)
		return
	}
	defer sub.Close()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Debug("websocket accept failed", logger.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// The reader goroutine owns the inbound side: it applies filter
	// frames and cancels the context when the peer goes away. It never
	// writes to the socket, so it cannot race the stream loop.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.readFrames(ctx, cancel, conn, sub)

	h.log.Debug("stream attached",
		logger.String("subscriber", sub.ID()),
		logger.Int("kinds", len(kinds)))

	for {
		ev, missed, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, bus.ErrClosed) {
				conn.Close(websocket.StatusGoingAway, "daemon shutting down")
			}
			return
		}

		if missed > 0 {
			if err := h.write(ctx, conn, streamFrame{Type: "streamGap", Missed: missed}); err != nil {
				return
			}
		}
		if err := h.write(ctx, conn, streamFrame{Type: "event", Event: &ev}); err != nil {
			return
		}
	}
}

// readFrames pumps inbound frames until the socket fails. Frames that
// do not decode into a known action are logged and dropped.
func (h *StreamHandler) readFrames(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub *bus.Subscription) {
	defer cancel()
	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil || frame.Action != "set_filter" {
			h.log.Debug("unrecognized stream frame dropped",
				logger.String("subscriber", sub.ID()))
			continue
		}

		kinds, err := parseKinds(frame.Kinds)
		if err != nil {
			h.log.Debug("set_filter frame with unknown kind dropped",
				logger.String("subscriber", sub.ID()),
				logger.Error(err))
			continue
		}
		sub.SetFilter(kinds...)
		h.log.Debug("stream filter replaced",
			logger.String("subscriber", sub.ID()),
			logger.Int("kinds", len(kinds)))
	}
}

func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, frame streamFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, payload)
}

// parseKinds turns a comma-separated filter into event kinds.
func parseKinds(raw string) ([]event.Kind, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var kinds []event.Kind
	for _, part := range strings.Split(raw, ",") {
		kind, err := event.ParseKind(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}
