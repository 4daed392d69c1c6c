package app

import "errors"

var (
	// ErrNotStarted is returned for operations on a stopped service.
	ErrNotStarted = errors.New("service not started")

	// ErrUnknownRegime is returned for interval overrides naming a
	// regime that does not exist.
	ErrUnknownRegime = errors.New("unknown poll regime")

	// ErrQueueFull is returned when an injected event cannot enter the
	// fan-in queue.
	ErrQueueFull = errors.New("fan-in queue is full")
)
