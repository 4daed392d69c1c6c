// Package app assembles the daemon: both telemetry sources feeding the
// fan-in queue, the normalizer consuming it, and the broadcast bus the
// API reads from. It also implements the control operations the HTTP
// boundary exposes.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/riftfeed/riftfeed/internal/adapters/mq/queue"
	"github.com/riftfeed/riftfeed/internal/bus"
	"github.com/riftfeed/riftfeed/internal/domain/dedupe"
	"github.com/riftfeed/riftfeed/internal/domain/event"
	"github.com/riftfeed/riftfeed/internal/domain/model"
	"github.com/riftfeed/riftfeed/internal/normalizer"
	"github.com/riftfeed/riftfeed/internal/source/session"
	"github.com/riftfeed/riftfeed/internal/source/snapshot"
	"github.com/riftfeed/riftfeed/pkg/logger"
)

// Service owns the daemon's component lifecycle.
type Service struct {
	mu sync.Mutex

	// Core components, built on Start.
	queue      *queue.InMemoryQueue
	bus        *bus.Bus
	normalizer *normalizer.Normalizer
	poller     *snapshot.Poller
	session    *session.Source

	// Configuration.
	liveBaseURL       string
	pollIntervals     snapshot.Intervals
	combatCooldown    time.Duration
	idleCooldown      time.Duration
	errorBackoff      time.Duration
	errorBackoffMax   time.Duration
	heartbeatInterval time.Duration
	requestTimeout    time.Duration
	lockfile          string
	discoveryInterval time.Duration
	reconnectMin      time.Duration
	reconnectMax      time.Duration
	queueSize         int
	dedupeWindow      int
	dedupeTTL         time.Duration
	coalesceWindow    time.Duration
	busCapacity       int
	busMaxAge         time.Duration
	disableSession    bool

	// State.
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	log logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		liveBaseURL: "https://127.0.0.1:2999",
		pollIntervals: snapshot.Intervals{
			Combat: 150 * time.Millisecond,
			Normal: 750 * time.Millisecond,
			Idle:   1500 * time.Millisecond,
		},
		combatCooldown:    5 * time.Second,
		idleCooldown:      20 * time.Second,
		errorBackoff:      time.Second,
		errorBackoffMax:   15 * time.Second,
		heartbeatInterval: time.Second,
		requestTimeout:    2 * time.Second,
		discoveryInterval: time.Second,
		reconnectMin:      500 * time.Millisecond,
		reconnectMax:      15 * time.Second,
		queueSize:         4096,
		dedupeWindow:      2048,
		dedupeTTL:         3 * time.Second,
		coalesceWindow:    400 * time.Millisecond,
		busCapacity:       1024,
		busMaxAge:         time.Minute,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds the pipeline and launches its goroutines. The service
// lifetime is controlled by Stop, not by the caller's context.
func (s *Service) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.log == nil {
		s.log = logger.Get()
	}

	s.log.Info("starting telemetry fusion service")

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.bus = bus.New(
		bus.WithCapacity(s.busCapacity),
		bus.WithMaxAge(s.busMaxAge),
	)

	windowFactory := func() dedupe.Window {
		return dedupe.NewWindow(
			dedupe.WithMaxSize(s.dedupeWindow),
			dedupe.WithTTL(s.dedupeTTL),
		)
	}
	norm, err := normalizer.New(s.queue, s.bus,
		normalizer.WithWindowFactory(windowFactory),
		normalizer.WithCoalesceWindow(s.coalesceWindow),
	)
	if err != nil {
		return err
	}
	s.normalizer = norm

	poller, err := snapshot.New(s.queue,
		snapshot.WithBaseURL(s.liveBaseURL),
		snapshot.WithIntervals(s.pollIntervals),
		snapshot.WithCooldowns(s.combatCooldown, s.idleCooldown),
		snapshot.WithErrorBackoff(s.errorBackoff, s.errorBackoffMax),
		snapshot.WithHeartbeatInterval(s.heartbeatInterval),
		snapshot.WithRequestTimeout(s.requestTimeout),
	)
	if err != nil {
		return err
	}
	s.poller = poller

	if !s.disableSession {
		sess, err := session.NewSource(s.queue,
			session.WithLockfilePath(s.lockfile),
			session.WithDiscoveryInterval(s.discoveryInterval),
			session.WithReconnectBackoff(s.reconnectMin, s.reconnectMax),
		)
		if err != nil {
			return err
		}
		s.session = sess
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.normalizer.Run(runCtx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.poller.Run(runCtx)
	}()

	if s.session != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.session.Run(runCtx)
		}()
	}

	s.started = true
	s.log.Info("telemetry fusion service started",
		logger.String("live_base_url", s.liveBaseURL),
		logger.Int("queue_size", s.queueSize),
		logger.Int("bus_capacity", s.busCapacity),
	)

	return nil
}

// Stop shuts the pipeline down: sources first, then the queue so the
// normalizer drains what is left, then the bus so subscribers unblock.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.log.Info("stopping telemetry fusion service...")

	if s.cancel != nil {
		s.cancel()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	s.wg.Wait()
	if s.bus != nil {
		_ = s.bus.Close()
	}

	s.started = false
	s.log.Info("telemetry fusion service stopped")
}

// Subscribe attaches a consumer to the event stream. An empty kinds list
// admits every kind.
func (s *Service) Subscribe(kinds ...event.Kind) (*bus.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.bus.Subscribe(kinds...)
}

// SetPollInterval overrides one regime's poll interval at runtime.
func (s *Service) SetPollInterval(regime string, interval time.Duration) error {
	s.mu.Lock()
	poller := s.poller
	s.mu.Unlock()
	if poller == nil {
		return ErrNotStarted
	}

	parsed, ok := snapshot.ParseRegime(regime)
	if !ok {
		return ErrUnknownRegime
	}
	return poller.SetInterval(parsed, interval)
}

// PausePolling suspends the snapshot source.
func (s *Service) PausePolling() error {
	s.mu.Lock()
	poller := s.poller
	s.mu.Unlock()
	if poller == nil {
		return ErrNotStarted
	}
	poller.Pause()
	return nil
}

// ResumePolling restarts the snapshot source.
func (s *Service) ResumePolling() error {
	s.mu.Lock()
	poller := s.poller
	s.mu.Unlock()
	if poller == nil {
		return ErrNotStarted
	}
	poller.Resume()
	return nil
}

// InjectSynthetic feeds a pre-built event through the normal pipeline:
// it is validated, deduplicated and sequenced exactly like organic
// telemetry.
func (s *Service) InjectSynthetic(ctx context.Context, ev event.Event) error {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return ErrNotStarted
	}

	batch := model.Batch{
		Source:     model.SourceControl,
		CapturedAt: time.Now(),
		Deltas:     []model.Delta{model.SyntheticDelta{Event: ev}},
	}
	if !q.Enqueue(ctx, batch) {
		return ErrQueueFull
	}
	return nil
}

// Stats aggregates the introspection view across components.
type Stats struct {
	Stream       normalizer.Stats `json:"stream"`
	Bus          bus.Stats        `json:"bus"`
	QueueLen     int              `json:"queueLen"`
	PollRegime   string           `json:"pollRegime"`
	PollPaused   bool             `json:"pollPaused"`
	SessionState string           `json:"sessionState"`
}

// Stats returns a point-in-time view of the daemon.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{SessionState: string(session.StateDisconnected)}
	if s.normalizer != nil {
		stats.Stream = s.normalizer.Stats()
	}
	if s.bus != nil {
		stats.Bus = s.bus.Stats()
	}
	if s.queue != nil {
		stats.QueueLen = s.queue.Len()
	}
	if s.poller != nil {
		stats.PollRegime = string(s.poller.CurrentRegime())
		stats.PollPaused = s.poller.Paused()
	}
	if s.session != nil {
		stats.SessionState = string(s.session.State())
	}
	return stats
}
