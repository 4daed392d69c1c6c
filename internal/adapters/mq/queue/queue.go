// Package queue provides the fan-in point between the telemetry sources
// and the normalizer: both sources (and the control surface) enqueue raw
// batches, and exactly one consumer drains them. The single-consumer
// arrangement is what lets the normalizer mutate session state without
// locks.
package queue

import (
	"context"
	"sync"

	"github.com/riftfeed/riftfeed/internal/domain/model"
	"github.com/riftfeed/riftfeed/pkg/metrics"
)

// Default queue configuration.
const defaultCapacity = 4096

// Batch is the payload type flowing through the queue.
type Batch = model.Batch

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a batch to the queue.
	// Returns false if the queue is full or closed and the batch was dropped.
	Enqueue(ctx context.Context, b Batch) bool

	// Dequeue returns the channel batches arrive on. The channel is
	// closed when the queue is closed and drained.
	Dequeue() <-chan Batch

	// Len returns the current number of queued batches.
	Len() int

	// Close gracefully shuts down the queue. After closing, no new
	// batches can be enqueued.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	batches  chan Batch
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
	}

	// Apply all options
	for _, opt := range opts {
		opt(q)
	}

	q.batches = make(chan Batch, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds a batch to the queue without blocking the producer.
func (q *InMemoryQueue) Enqueue(ctx context.Context, b Batch) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return false
	}

	select {
	case q.batches <- b:
		metrics.UpdateQueueSize(len(q.batches))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		return false
	default:
		// Queue full: drop rather than block the producing source.
		metrics.RecordQueueEnqueueError()
		return false
	}
}

// Dequeue returns the consumption channel.
func (q *InMemoryQueue) Dequeue() <-chan Batch {
	return q.batches
}

// Len returns the current number of queued batches.
func (q *InMemoryQueue) Len() int {
	return len(q.batches)
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil // already closed
	}

	close(q.batches)
	q.closed = true

	return nil
}
