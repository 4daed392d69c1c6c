package bus

import "errors"

var (
	// ErrClosed is returned when the bus has shut down.
	ErrClosed = errors.New("bus is closed")

	// ErrSubscriptionClosed is returned from Next after the subscriber
	// detached.
	ErrSubscriptionClosed = errors.New("subscription is closed")
)
