// Package dedupe tracks recently emitted event fingerprints.
package dedupe

import "time"

// Option applies a configuration option to the sliding window.
type Option func(*slidingWindow)

// WithMaxSize sets the maximum number of fingerprints to retain.
func WithMaxSize(maxSize int) Option {
	return func(w *slidingWindow) {
		if maxSize > 0 {
			w.maxSize = maxSize
		}
	}
}

// WithTTL sets the maximum age of a retained fingerprint.
func WithTTL(ttl time.Duration) Option {
	return func(w *slidingWindow) {
		if ttl > 0 {
			w.ttl = ttl
		}
	}
}

// WithClock overrides the time source, used by tests to age the window.
func WithClock(now func() time.Time) Option {
	return func(w *slidingWindow) {
		if now != nil {
			w.now = now
		}
	}
}
