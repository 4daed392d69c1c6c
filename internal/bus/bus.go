// Package bus fans normalized events out to in-process subscribers. The
// bus retains a bounded window of recent events; every subscriber reads
// through its own cursor, and a subscriber that falls out of the window
// skips ahead with an observable missed count instead of stalling the
// publisher.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riftfeed/riftfeed/internal/domain/event"
	"github.com/riftfeed/riftfeed/pkg/logger"
	"github.com/riftfeed/riftfeed/pkg/metrics"
)

type entry struct {
	ev    event.Event
	added time.Time
}

// Bus is the in-process broadcast hub. Publish never blocks on slow
// consumers.
type Bus struct {
	mu       sync.Mutex
	entries  []entry
	firstPos uint64
	nextPos  uint64
	notify   chan struct{}
	closed   bool

	subscribers map[string]*Subscription

	capacity int
	maxAge   time.Duration
	log      logger.Logger
	now      func() time.Time
}

// New returns a bus retaining up to capacity events for at most maxAge.
func New(opts ...Option) *Bus {
	b := &Bus{
		notify:      make(chan struct{}),
		subscribers: make(map[string]*Subscription),
		capacity:    defaultCapacity,
		maxAge:      defaultMaxAge,
		log:         logger.Named("bus"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish appends ev to the retention window and wakes every subscriber.
func (b *Bus) Publish(ev event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.entries = append(b.entries, entry{ev: ev, added: b.now()})
	b.nextPos++
	b.evictLocked()

	metrics.UpdateBusRetained(len(b.entries))

	close(b.notify)
	b.notify = make(chan struct{})
}

// evictLocked drops entries beyond the capacity or older than maxAge.
// Must hold b.mu.
func (b *Bus) evictLocked() {
	evicted := 0

	for len(b.entries) > b.capacity {
		b.entries = b.entries[1:]
		b.firstPos++
		evicted++
	}

	if b.maxAge > 0 {
		cutoff := b.now().Add(-b.maxAge)
		for len(b.entries) > 0 && b.entries[0].added.Before(cutoff) {
			b.entries = b.entries[1:]
			b.firstPos++
			evicted++
		}
	}

	if evicted > 0 {
		metrics.RecordBusEvicted(evicted)
	}
}

// Subscribe attaches a new subscriber at the stream tail. An empty kinds
// list means every kind.
func (b *Bus) Subscribe(kinds ...event.Kind) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &Subscription{
		id:     uuid.NewString(),
		bus:    b,
		pos:    b.nextPos,
		closed: make(chan struct{}),
	}
	sub.setFilterLocked(kinds)
	b.subscribers[sub.id] = sub
	metrics.UpdateSubscriberCount(len(b.subscribers))

	b.log.Debug("subscriber attached",
		logger.String("subscriber", sub.id),
		logger.Int("kinds", len(kinds)))

	return sub, nil
}

// Close shuts the bus down; blocked subscribers are released with
// ErrClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	close(b.notify)
	b.notify = make(chan struct{})
	return nil
}

// Stats describes the bus for the introspection surface.
type Stats struct {
	Published   uint64 `json:"published"`
	Retained    int    `json:"retained"`
	Subscribers int    `json:"subscribers"`
}

// Stats returns a point-in-time view of the bus.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Published:   b.nextPos,
		Retained:    len(b.entries),
		Subscribers: len(b.subscribers),
	}
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
	metrics.UpdateSubscriberCount(len(b.subscribers))
}

// Subscription is one consumer's cursor into the bus.
type Subscription struct {
	id     string
	bus    *Bus
	pos    uint64
	filter map[event.Kind]bool
	done   bool
	closed chan struct{}
}

// ID returns the subscriber's identifier.
func (s *Subscription) ID() string { return s.id }

// SetFilter replaces the kind filter. An empty list admits every kind.
func (s *Subscription) SetFilter(kinds ...event.Kind) {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.setFilterLocked(kinds)
}

// setFilterLocked must hold s.bus.mu.
func (s *Subscription) setFilterLocked(kinds []event.Kind) {
	if len(kinds) == 0 {
		s.filter = nil
		return
	}
	s.filter = make(map[event.Kind]bool, len(kinds))
	for _, kind := range kinds {
		s.filter[kind] = true
	}
}

// admitsLocked must hold s.bus.mu.
func (s *Subscription) admitsLocked(kind event.Kind) bool {
	return s.filter == nil || s.filter[kind]
}

// Next blocks until an admitted event is available and returns it along
// with the number of events this subscriber missed because the retention
// window moved past its cursor.
func (s *Subscription) Next(ctx context.Context) (event.Event, uint64, error) {
	var missed uint64

	for {
		s.bus.mu.Lock()
		if s.done {
			s.bus.mu.Unlock()
			return event.Event{}, missed, ErrSubscriptionClosed
		}

		// A cursor behind the window skips ahead and accounts the gap.
		if s.pos < s.bus.firstPos {
			missed += s.bus.firstPos - s.pos
			s.pos = s.bus.firstPos
		}

		for s.pos < s.bus.nextPos {
			ev := s.bus.entries[s.pos-s.bus.firstPos].ev
			s.pos++
			if s.admitsLocked(ev.Kind) {
				s.bus.mu.Unlock()
				if missed > 0 {
					metrics.RecordSubscriberMissed(missed)
				}
				return ev, missed, nil
			}
		}

		if s.bus.closed {
			s.bus.mu.Unlock()
			return event.Event{}, missed, ErrClosed
		}

		ch := s.bus.notify
		s.bus.mu.Unlock()

		select {
		case <-ctx.Done():
			return event.Event{}, missed, ctx.Err()
		case <-s.closed:
			return event.Event{}, missed, ErrSubscriptionClosed
		case <-ch:
		}
	}
}

// Close detaches the subscriber and releases a blocked Next.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	already := s.done
	s.done = true
	s.bus.mu.Unlock()
	if !already {
		close(s.closed)
		s.bus.unsubscribe(s.id)
	}
}
