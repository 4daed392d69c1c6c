package snapshot

import "errors"

var (
	// ErrNilSink is returned when the poller is constructed without a
	// destination queue.
	ErrNilSink = errors.New("sink cannot be nil")

	// ErrUnexpectedStatus is returned when an endpoint answers with a
	// non-200 status.
	ErrUnexpectedStatus = errors.New("unexpected response status")

	// ErrInvalidInterval is returned for non-positive interval overrides.
	ErrInvalidInterval = errors.New("interval must be positive")
)
