package tools

import (
	"bytes"
	"encoding/json"

	"github.com/tailored-agentic-units/chainspeak/notify"
)

// Call is the merged input to a tool handler: the context injected by the
// orchestrator plus the arguments supplied by the model.
type Call struct {
	UserID    string
	Recipient string
	Notifier  notify.Notifier
	Args      json.RawMessage
}

// Bind decodes the call arguments into v.
func (c Call) Bind(v any) error {
	args := c.Args
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return &ArgsError{Detail: err.Error()}
	}
	return nil
}

// ArgsError reports tool arguments that could not be decoded.
// It matches ErrInvalidArgs with errors.Is.
type ArgsError struct {
	Detail string
}

func (e *ArgsError) Error() string {
	return ErrInvalidArgs.Error() + ": " + e.Detail
}

func (e *ArgsError) Is(target error) bool {
	return target == ErrInvalidArgs
}

// Result converts the error into the failed Result reported to the model.
func (e *ArgsError) Result() Result {
	return Fail("Invalid JSON args: %s", e.Detail)
}

// ParseArguments validates the argument string of a model tool call.
// An empty string is treated as an empty object; anything that is not a
// JSON object is rejected with ErrInvalidArgs.
func ParseArguments(s string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace([]byte(s))
	if len(trimmed) == 0 {
		return json.RawMessage("{}"), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, &ArgsError{Detail: err.Error()}
	}
	if obj == nil {
		return nil, &ArgsError{Detail: "arguments must be a JSON object"}
	}
	return json.RawMessage(trimmed), nil
}
