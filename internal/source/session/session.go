// Package session maintains the push connection to the client's control
// socket: lockfile discovery, websocket subscription, and phase change
// translation into raw deltas.
package session

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/riftfeed/riftfeed/internal/domain/model"
	"github.com/riftfeed/riftfeed/pkg/logger"
	"github.com/riftfeed/riftfeed/pkg/metrics"
)

// Sink receives the batches produced by the session source.
type Sink interface {
	Enqueue(ctx context.Context, b model.Batch) bool
}

// Source owns the session socket lifecycle. It runs a single goroutine
// that discovers credentials, connects, subscribes, and reads until the
// socket dies, then backs off and starts over.
type Source struct {
	sink   Sink
	log    logger.Logger
	client *http.Client

	lockfilePath      string
	discoveryInterval time.Duration
	reconnect         *backoff

	mu       sync.Mutex
	state    State
	up       bool
	pushSeq  uint64
	lastSeen string
}

// NewSource returns a session source feeding sink.
func NewSource(sink Sink, opts ...SourceOption) (*Source, error) {
	if sink == nil {
		return nil, ErrNilSink
	}

	s := &Source{
		sink:              sink,
		log:               logger.Named("session"),
		discoveryInterval: defaultDiscoveryInterval,
		state:             StateDisconnected,
	}

	reconnectMin := defaultReconnectMin
	reconnectMax := defaultReconnectMax
	for _, opt := range opts {
		opt(s, &reconnectMin, &reconnectMax)
	}
	s.reconnect = newBackoff(reconnectMin, reconnectMax)

	if s.client == nil {
		// The client serves a self-signed certificate on loopback.
		s.client = &http.Client{
			Timeout: defaultRequestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}

	return s, nil
}

// State returns the current connection lifecycle stage.
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run maintains the session until ctx is cancelled.
func (s *Source) Run(ctx context.Context) {
	s.log.Info("session source starting",
		logger.Duration("discovery_interval", s.discoveryInterval))

	for {
		if ctx.Err() != nil {
			return
		}

		creds, err := discoverCredentials(s.lockfilePath)
		if err != nil {
			metrics.RecordDiscoveryFailure()
			s.log.Debug("lockfile unavailable", logger.Error(err))
			if !sleepCtx(ctx, s.discoveryInterval) {
				return
			}
			continue
		}

		s.setState(StateConnecting)
		if err := s.runConnection(ctx, creds); err != nil {
			s.log.Warn("session connection ended", logger.Error(err))
			// Dial and subscribe failures never reach the read loop, so
			// the down edge is marked here as well.
			s.markDown(ctx, err)
		}
		s.setState(StateDisconnected)
		metrics.UpdateSessionConnected(false)

		if !sleepCtx(ctx, s.reconnect.next()) {
			return
		}
		metrics.RecordSessionReconnect()
	}
}

// runConnection dials the push socket, subscribes, seeds the phase from
// the REST surface, and pumps frames until the connection dies.
func (s *Source) runConnection(ctx context.Context, creds Credentials) error {
	header := http.Header{}
	header.Set("Authorization", creds.BasicAuth())
	header.Set("Origin", "https://127.0.0.1")

	dialCtx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	conn, _, err := websocket.Dial(dialCtx, creds.WebsocketURL(), &websocket.DialOptions{
		HTTPClient: s.client,
		HTTPHeader: header,
	})
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")

	if err := s.subscribe(ctx, conn); err != nil {
		return err
	}

	s.setState(StateConnected)
	s.reconnect.reset()
	metrics.UpdateSessionConnected(true)
	s.log.Info("session socket connected",
		logger.Int("port", int(creds.Port)))
	s.markUp(ctx)

	// The current phase is fetched once so a subscriber attaching during
	// champion select does not wait for the next transition.
	if phase, err := fetchCurrentPhase(ctx, s.client, creds); err == nil && phase != "" {
		s.emitPhase(ctx, phase)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.markDown(ctx, err)
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			return err
		}

		if phase, ok := parsePhaseMessage(data); ok {
			s.emitPhase(ctx, phase)
		}
	}
}

// subscribe registers for the generic API event feed plus the gameflow
// topic. The secondary subscription failing is tolerable; the generic
// feed carries the same updates.
func (s *Source) subscribe(ctx context.Context, conn *websocket.Conn) error {
	writeCtx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageText,
		[]byte(`["subscribe","OnJsonApiEvent"]`)); err != nil {
		return err
	}
	if err := conn.Write(writeCtx, websocket.MessageText,
		[]byte(`["subscribe","`+gameflowURI+`"]`)); err != nil {
		s.log.Debug("secondary subscription failed", logger.Error(err))
	}
	return nil
}

// emitPhase forwards a phase transition, suppressing consecutive repeats.
func (s *Source) emitPhase(ctx context.Context, phase string) {
	s.mu.Lock()
	if s.lastSeen == phase {
		s.mu.Unlock()
		return
	}
	s.lastSeen = phase
	s.mu.Unlock()

	s.log.Debug("phase update", logger.String("phase", phase))
	s.emit(ctx, model.PhaseDelta{Phase: phase})
}

// markUp emits a single availability marker on the down-to-up edge.
func (s *Source) markUp(ctx context.Context) {
	s.mu.Lock()
	wasUp := s.up
	s.up = true
	s.mu.Unlock()
	if wasUp {
		return
	}
	s.emit(ctx, model.SourceStatusDelta{Up: true})
}

// markDown emits a single unavailability marker on the up-to-down edge,
// so reconnect churn does not flood the stream with repeats.
func (s *Source) markDown(ctx context.Context, cause error) {
	s.mu.Lock()
	wasUp := s.up
	s.up = false
	s.mu.Unlock()
	if !wasUp {
		return
	}
	s.emit(ctx, model.SourceStatusDelta{Up: false, Reason: cause.Error()})
}

func (s *Source) emit(ctx context.Context, delta model.Delta) {
	s.mu.Lock()
	s.pushSeq++
	seq := s.pushSeq
	s.mu.Unlock()

	batch := model.Batch{
		Source:     model.SourceSession,
		PollSeq:    seq,
		CapturedAt: time.Now(),
		Deltas:     []model.Delta{delta},
	}
	if !s.sink.Enqueue(ctx, batch) {
		s.log.Warn("fan-in queue rejected session batch")
	}
}

func (s *Source) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// sleepCtx waits for d or cancellation; false means ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
