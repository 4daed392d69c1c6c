package normalizer

import "errors"

var (
	// ErrNilQueue is returned when no inbound queue is provided.
	ErrNilQueue = errors.New("queue cannot be nil")

	// ErrNilPublisher is returned when no publisher is provided.
	ErrNilPublisher = errors.New("publisher cannot be nil")

	// ErrUnknownDelta marks a delta type the translation table does not
	// cover.
	ErrUnknownDelta = errors.New("unknown delta type")
)
