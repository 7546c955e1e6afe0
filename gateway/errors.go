package gateway

import "errors"

var (
	ErrNotConnected   = errors.New("recipient has no connected client")
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("client send buffer full")
	ErrMissingUser    = errors.New("missing user")
	ErrMissingBody    = errors.New("missing message body")
)
