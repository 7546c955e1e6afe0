package store

import "errors"

// Sentinel errors for store operations.
var (
	ErrLoadFailed    = errors.New("load failed")
	ErrSaveFailed    = errors.New("save failed")
	ErrEncodeFailed  = errors.New("value is not JSON-encodable")
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrClosed        = errors.New("store closed")
)
