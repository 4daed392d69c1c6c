package normalizer

import (
	"time"

	"github.com/riftfeed/riftfeed/internal/domain/dedupe"
	"github.com/riftfeed/riftfeed/pkg/logger"
)

// defaultCoalesceWindow bounds how long gold movement is aggregated
// before emission.
const defaultCoalesceWindow = 400 * time.Millisecond

// Option configures the normalizer.
type Option func(*Normalizer)

// WithCoalesceWindow sets the gold aggregation window.
func WithCoalesceWindow(d time.Duration) Option {
	return func(n *Normalizer) {
		if d > 0 {
			n.coalesce = d
		}
	}
}

// WithWindowFactory replaces how dedup windows are built; a fresh window
// is created at startup and at every match boundary.
func WithWindowFactory(factory func() dedupe.Window) Option {
	return func(n *Normalizer) {
		if factory != nil {
			n.newWindow = factory
		}
	}
}

// WithLogger overrides the package logger, mainly for tests.
func WithLogger(log logger.Logger) Option {
	return func(n *Normalizer) {
		if log != nil {
			n.log = log
		}
	}
}

// WithClock injects the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}
