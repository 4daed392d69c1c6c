package bus

import (
	"time"

	"github.com/riftfeed/riftfeed/pkg/logger"
)

// Retention defaults.
const (
	defaultCapacity = 1024
	defaultMaxAge   = time.Minute
)

// Option configures the bus.
type Option func(*Bus)

// WithCapacity bounds how many events the retention window holds.
func WithCapacity(capacity int) Option {
	return func(b *Bus) {
		if capacity > 0 {
			b.capacity = capacity
		}
	}
}

// WithMaxAge bounds how long an event stays retained. Zero disables the
// age limit.
func WithMaxAge(maxAge time.Duration) Option {
	return func(b *Bus) {
		if maxAge >= 0 {
			b.maxAge = maxAge
		}
	}
}

// WithLogger overrides the package logger, mainly for tests.
func WithLogger(log logger.Logger) Option {
	return func(b *Bus) {
		if log != nil {
			b.log = log
		}
	}
}

// WithClock injects the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}
