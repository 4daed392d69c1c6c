package app

import (
	"time"

	"github.com/riftfeed/riftfeed/internal/config"
	"github.com/riftfeed/riftfeed/internal/source/snapshot"
	"github.com/riftfeed/riftfeed/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLiveBaseURL sets the live client REST surface to poll.
func WithLiveBaseURL(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.liveBaseURL = url
		}
	}
}

// WithPollIntervals sets the per-regime poll intervals.
func WithPollIntervals(combat, normal, idle time.Duration) Option {
	return func(s *Service) {
		if combat > 0 && normal > 0 && idle > 0 {
			s.pollIntervals = snapshot.Intervals{Combat: combat, Normal: normal, Idle: idle}
		}
	}
}

// WithCooldowns sets the regime step-down delays.
func WithCooldowns(combat, idle time.Duration) Option {
	return func(s *Service) {
		if combat > 0 {
			s.combatCooldown = combat
		}
		if idle > 0 {
			s.idleCooldown = idle
		}
	}
}

// WithErrorBackoff bounds the retry schedule after failed poll cycles.
func WithErrorBackoff(initial, maximum time.Duration) Option {
	return func(s *Service) {
		if initial > 0 {
			s.errorBackoff = initial
		}
		if maximum >= initial && maximum > 0 {
			s.errorBackoffMax = maximum
		}
	}
}

// WithHeartbeatInterval sets the liveness tick cadence.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.heartbeatInterval = d
		}
	}
}

// WithRequestTimeout bounds outbound requests to the client.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithLockfile pins the client lockfile location.
func WithLockfile(path string) Option {
	return func(s *Service) {
		s.lockfile = path
	}
}

// WithDiscoveryInterval sets the lockfile probe cadence.
func WithDiscoveryInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.discoveryInterval = d
		}
	}
}

// WithReconnectBackoff bounds the session reconnect schedule.
func WithReconnectBackoff(minDelay, maxDelay time.Duration) Option {
	return func(s *Service) {
		if minDelay > 0 {
			s.reconnectMin = minDelay
		}
		if maxDelay >= minDelay && maxDelay > 0 {
			s.reconnectMax = maxDelay
		}
	}
}

// WithQueueSize bounds the fan-in queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeWindow bounds duplicate suppression by count and age.
func WithDedupeWindow(size int, ttl time.Duration) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeWindow = size
		}
		if ttl > 0 {
			s.dedupeTTL = ttl
		}
	}
}

// WithCoalesceWindow sets the gold aggregation window.
func WithCoalesceWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.coalesceWindow = d
		}
	}
}

// WithBusRetention bounds the broadcast window by count and age.
func WithBusRetention(capacity int, maxAge time.Duration) Option {
	return func(s *Service) {
		if capacity > 0 {
			s.busCapacity = capacity
		}
		if maxAge > 0 {
			s.busMaxAge = maxAge
		}
	}
}

// WithoutSession disables the push session source; the snapshot poller
// still runs. Used by tests and by simulator setups without a lockfile.
func WithoutSession() Option {
	return func(s *Service) {
		s.disableSession = true
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// FromConfig maps the loaded configuration onto service options.
func FromConfig(cfg *config.Config) []Option {
	ms := func(value int) time.Duration {
		return time.Duration(value) * time.Millisecond
	}

	return []Option{
		WithLiveBaseURL(cfg.LiveBaseURL),
		WithPollIntervals(
			ms(cfg.PollIntervalCombatMS),
			ms(cfg.PollIntervalNormalMS),
			ms(cfg.PollIntervalIdleMS),
		),
		WithCooldowns(ms(cfg.CombatCooldownMS), ms(cfg.IdleCooldownMS)),
		WithErrorBackoff(ms(cfg.ErrorBackoffMS), ms(cfg.ErrorBackoffMaxMS)),
		WithHeartbeatInterval(ms(cfg.HeartbeatIntervalMS)),
		WithRequestTimeout(ms(cfg.RequestTimeoutMS)),
		WithLockfile(cfg.Lockfile),
		WithDiscoveryInterval(ms(cfg.DiscoveryIntervalMS)),
		WithReconnectBackoff(ms(cfg.ReconnectMinMS), ms(cfg.ReconnectMaxMS)),
		WithQueueSize(cfg.QueueSize),
		WithDedupeWindow(cfg.DedupeWindow, ms(cfg.DedupeTTLMS)),
		WithCoalesceWindow(ms(cfg.CoalesceWindowMS)),
		WithBusRetention(cfg.BusCapacity, ms(cfg.BusMaxAgeMS)),
	}
}
