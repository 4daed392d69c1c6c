package session

import (
	"math/rand"
	"sync"
	"time"
)

// State names the session source's connection lifecycle stage.
type State string

// Connection states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// backoff computes reconnect delays: exponential growth from min to max
// with up to 25% jitter so repeated failures do not synchronize with the
// client's own restart cycle.
type backoff struct {
	mu      sync.Mutex
	min     time.Duration
	max     time.Duration
	current time.Duration
	jitter  func(d time.Duration) time.Duration
}

func newBackoff(minDelay, maxDelay time.Duration) *backoff {
	return &backoff{
		min:     minDelay,
		max:     maxDelay,
		current: minDelay,
		jitter: func(d time.Duration) time.Duration {
			return d + time.Duration(rand.Int63n(int64(d)/4+1))
		},
	}
}

// next returns the delay before the following attempt and advances the
// schedule.
func (b *backoff) next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.jitter(b.current)
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return delay
}

// reset returns the schedule to the minimum after a successful connect.
func (b *backoff) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.min
}
