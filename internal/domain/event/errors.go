package event

import "errors"

// Sentinel kinds for event construction errors.
var (
	ErrPayloadMismatch = errors.New("payload variant does not match event kind")
	ErrUnknownKind     = errors.New("unknown event kind")
)
