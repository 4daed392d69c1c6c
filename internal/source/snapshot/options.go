package snapshot

import (
	"net/http"
	"time"

	"github.com/riftfeed/riftfeed/pkg/logger"
)

// Poller defaults matching the local live client.
const (
	defaultBaseURL           = "https://127.0.0.1:2999"
	defaultRequestTimeout    = 2 * time.Second
	defaultHeartbeatInterval = time.Second
	defaultErrorBackoff      = time.Second
	defaultErrorBackoffMax   = 15 * time.Second
	defaultCombatInterval    = 150 * time.Millisecond
	defaultNormalInterval    = 750 * time.Millisecond
	defaultIdleInterval      = 1500 * time.Millisecond
	defaultCombatCooldown    = 5 * time.Second
	defaultIdleCooldown      = 20 * time.Second
)

type pollerConfig struct {
	intervals      Intervals
	combatCooldown time.Duration
	idleCooldown   time.Duration
}

// Option configures the poller.
type Option func(*Poller, *pollerConfig)

// WithBaseURL sets the live client base URL.
func WithBaseURL(url string) Option {
	return func(p *Poller, _ *pollerConfig) {
		if url != "" {
			p.baseURL = url
		}
	}
}

// WithHTTPClient replaces the TLS-skipping default client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Poller, _ *pollerConfig) {
		if client != nil {
			p.client = client
		}
	}
}

// WithRequestTimeout bounds each endpoint fetch.
func WithRequestTimeout(d time.Duration) Option {
	return func(p *Poller, _ *pollerConfig) {
		if d > 0 {
			p.requestTimeout = d
		}
	}
}

// WithHeartbeatInterval sets the fixed liveness tick cadence.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(p *Poller, _ *pollerConfig) {
		if d > 0 {
			p.heartbeatInterval = d
		}
	}
}

// WithErrorBackoff sets the initial and maximum backoff applied after a
// failed poll cycle.
func WithErrorBackoff(initial, maximum time.Duration) Option {
	return func(p *Poller, _ *pollerConfig) {
		if initial > 0 {
			p.errorBackoff = initial
		}
		if maximum >= initial && maximum > 0 {
			p.errorBackoffMax = maximum
		}
	}
}

// WithIntervals sets the per-regime poll intervals.
func WithIntervals(intervals Intervals) Option {
	return func(_ *Poller, cfg *pollerConfig) {
		if intervals.Combat > 0 {
			cfg.intervals.Combat = intervals.Combat
		}
		if intervals.Normal > 0 {
			cfg.intervals.Normal = intervals.Normal
		}
		if intervals.Idle > 0 {
			cfg.intervals.Idle = intervals.Idle
		}
	}
}

// WithCooldowns sets how long activity must be absent before the regime
// steps down from combat, and from normal to idle.
func WithCooldowns(combat, idle time.Duration) Option {
	return func(_ *Poller, cfg *pollerConfig) {
		if combat > 0 {
			cfg.combatCooldown = combat
		}
		if idle > 0 {
			cfg.idleCooldown = idle
		}
	}
}

// WithLogger overrides the package logger, mainly for tests.
func WithLogger(log logger.Logger) Option {
	return func(p *Poller, _ *pollerConfig) {
		if log != nil {
			p.log = log
		}
	}
}

// WithClock injects the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(p *Poller, _ *pollerConfig) {
		if now != nil {
			p.now = now
		}
	}
}
