// Package dedupe tracks recently emitted event fingerprints so the
// normalizer can suppress duplicate candidates within a bounded window.
package dedupe

import (
	"context"
	"sync"
	"time"
)

// Window records fingerprints and answers whether one was seen recently.
type Window interface {
	// SeenAndRecord atomically checks if fp is inside the window and
	// records it if not. Returns true if fp was already present (the
	// candidate is a duplicate), false if it was newly recorded.
	SeenAndRecord(ctx context.Context, fp string) bool

	// Size returns the number of fingerprints currently retained.
	Size() int
}

// entry is one retained fingerprint with its insertion time.
type entry struct {
	fp string
	at time.Time
}

// slidingWindow implements Window with a fixed-capacity map evicted by
// insertion time: the oldest fingerprint leaves first, whether it aged
// out or was displaced by capacity pressure.
type slidingWindow struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	order   []entry // insertion order; head is oldest
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// Default window bounds.
const (
	defaultMaxSize = 2048
	defaultTTL     = 3 * time.Second
)

// NewWindow creates a sliding dedup window with configuration options.
func NewWindow(opts ...Option) Window {
	w := &slidingWindow{
		maxSize: defaultMaxSize,
		ttl:     defaultTTL,
		now:     time.Now,
	}

	// Apply all options
	for _, opt := range opts {
		opt(w)
	}

	w.seen = make(map[string]time.Time, w.maxSize)
	w.order = make([]entry, 0, w.maxSize)

	return w
}

// SeenAndRecord atomically checks and records fp.
func (w *slidingWindow) SeenAndRecord(_ context.Context, fp string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.expire(now)

	if _, ok := w.seen[fp]; ok {
		return true
	}

	// Make room before inserting; the oldest entry leaves first.
	for len(w.order) >= w.maxSize {
		w.evictOldest()
	}

	w.seen[fp] = now
	w.order = append(w.order, entry{fp: fp, at: now})
	return false
}

// Size returns the number of retained fingerprints.
func (w *slidingWindow) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expire(w.now())
	return len(w.seen)
}

// expire drops entries older than the TTL. Must hold w.mu.
func (w *slidingWindow) expire(now time.Time) {
	cutoff := now.Add(-w.ttl)
	for len(w.order) > 0 && w.order[0].at.Before(cutoff) {
		w.evictOldest()
	}
}

// evictOldest removes the head of the insertion queue. Must hold w.mu.
func (w *slidingWindow) evictOldest() {
	head := w.order[0]
	w.order = w.order[1:]
	// Only delete from the map if this queue entry is still the live
	// record; a fingerprint re-recorded after expiry owns a newer slot.
	if at, ok := w.seen[head.fp]; ok && at.Equal(head.at) {
		delete(w.seen, head.fp)
	}
}
