package agent

import "errors"

// Sentinel errors for agent construction and execution.
var (
	ErrUnknownProvider = errors.New("unknown agent provider")
	ErrMissingAPIKey   = errors.New("agent API key is not configured")
	ErrRequestFailed   = errors.New("model request failed")
	ErrEmptyResponse   = errors.New("model returned no choices")
)
