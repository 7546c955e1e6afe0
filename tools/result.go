package tools

import (
	"encoding/json"
	"fmt"
)

// Result is the canonical tool outcome fed back to the model.
// It serializes as {"ok": bool, "payload": any, "error": string}.
type Result struct {
	OK      bool   `json:"ok"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK builds a successful Result carrying payload.
func OK(payload any) Result {
	return Result{OK: true, Payload: payload}
}

// Fail builds a failed Result with a formatted error message.
func Fail(format string, args ...any) Result {
	return Result{OK: false, Error: fmt.Sprintf(format, args...)}
}

// JSON returns the serialized envelope. A payload that cannot be encoded is
// reported as a failed result.
func (r Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		data, _ = json.Marshal(Fail("unencodable result: %v", err))
	}
	return string(data)
}
