package kernel

import "errors"

var (
	// ErrTurnFailed wraps any failure before the final reply exists. The
	// user received the apology and nothing was persisted for the turn.
	ErrTurnFailed = errors.New("turn failed")

	// ErrPersistFailed wraps a failure to save the session after the reply
	// was delivered.
	ErrPersistFailed = errors.New("session persist failed")

	// ErrEmptyResponse is returned when the model yields no choices.
	ErrEmptyResponse = errors.New("model returned no choices")

	// ErrNoNotifier is returned by New when no notifier was supplied.
	ErrNoNotifier = errors.New("kernel requires a notifier")

	// ErrEmptyMessage is returned for an inbound message with no text.
	ErrEmptyMessage = errors.New("empty inbound message")
)
