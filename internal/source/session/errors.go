package session

import "errors"

var (
	// ErrNilSink is returned when the source is constructed without a
	// destination queue.
	ErrNilSink = errors.New("sink cannot be nil")

	// ErrLockfileNotFound is returned when no candidate path yields a
	// readable lockfile.
	ErrLockfileNotFound = errors.New("client lockfile not found")

	// ErrLockfileEmpty is returned for a lockfile with no content.
	ErrLockfileEmpty = errors.New("lockfile is empty")

	// ErrLockfileCorrupt is returned when the lockfile does not carry
	// the expected five colon-separated fields.
	ErrLockfileCorrupt = errors.New("lockfile is corrupted")

	// ErrUnexpectedStatus is returned when the client REST surface
	// answers with a non-200 status.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)
