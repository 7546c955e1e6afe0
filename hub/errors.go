package hub

import "errors"

// Sentinel errors for hub operations.
var (
	ErrClosed          = errors.New("hub closed")
	ErrShutdownTimeout = errors.New("hub shutdown timed out")
)
