package session

import (
	"net/http"
	"time"

	"github.com/riftfeed/riftfeed/pkg/logger"
)

// Session source defaults.
const (
	defaultDiscoveryInterval = time.Second
	defaultRequestTimeout    = 2 * time.Second
	defaultReconnectMin      = 500 * time.Millisecond
	defaultReconnectMax      = 15 * time.Second
)

// SourceOption configures the session source.
type SourceOption func(s *Source, reconnectMin, reconnectMax *time.Duration)

// WithLockfilePath sets an explicit lockfile location, tried before the
// environment override and the OS-conventional paths.
func WithLockfilePath(path string) SourceOption {
	return func(s *Source, _, _ *time.Duration) {
		s.lockfilePath = path
	}
}

// WithDiscoveryInterval sets how often the lockfile is probed while the
// client is not running.
func WithDiscoveryInterval(d time.Duration) SourceOption {
	return func(s *Source, _, _ *time.Duration) {
		if d > 0 {
			s.discoveryInterval = d
		}
	}
}

// WithReconnectBackoff bounds the reconnect delay schedule.
func WithReconnectBackoff(minDelay, maxDelay time.Duration) SourceOption {
	return func(_ *Source, reconnectMin, reconnectMax *time.Duration) {
		if minDelay > 0 {
			*reconnectMin = minDelay
		}
		if maxDelay >= minDelay && maxDelay > 0 {
			*reconnectMax = maxDelay
		}
	}
}

// WithHTTPClient replaces the TLS-skipping default client used for both
// the websocket dial and the phase fetch.
func WithHTTPClient(client *http.Client) SourceOption {
	return func(s *Source, _, _ *time.Duration) {
		if client != nil {
			s.client = client
		}
	}
}

// WithLogger overrides the package logger, mainly for tests.
func WithLogger(log logger.Logger) SourceOption {
	return func(s *Source, _, _ *time.Duration) {
		if log != nil {
			s.log = log
		}
	}
}
