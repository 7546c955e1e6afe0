package protocol

import "encoding/json"

// Role identifies the sender of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall represents a tool invocation requested by the model.
// Fields are flat (ID, Name, Arguments) for direct use by the orchestrator.
// The JSON form is the nested chat-completions shape
// ({id, type, function: {name, arguments}}); UnmarshalJSON also accepts
// the flat form.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// MarshalJSON serializes to the nested {id, type, function} format.
func (tc ToolCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID       string       `json:"id"`
		Type     string       `json:"type"`
		Function functionCall `json:"function"`
	}{
		ID:       tc.ID,
		Type:     "function",
		Function: functionCall{Name: tc.Name, Arguments: tc.Arguments},
	})
}

// UnmarshalJSON handles both the nested ({function: {name, arguments}})
// and the flat ({name, arguments}) formats.
func (tc *ToolCall) UnmarshalJSON(data []byte) error {
	var nested struct {
		ID       string       `json:"id"`
		Function functionCall `json:"function"`
	}
	if err := json.Unmarshal(data, &nested); err != nil {
		return err
	}

	if nested.Function.Name != "" {
		tc.ID = nested.ID
		tc.Name = nested.Function.Name
		tc.Arguments = nested.Function.Arguments
		return nil
	}

	type plain ToolCall
	return json.Unmarshal(data, (*plain)(tc))
}

// Message represents a single message in a conversation.
//
// Assistant messages that request tools carry ToolCalls; tool result
// messages carry the ToolCallID they answer. A non-nil ToolCalls slice,
// even an empty one, marks the message as a tool-call request.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// NewMessage creates a Message with the given role and content.
// Use struct literals directly when setting tool call fields.
//
// Example:
//
//	msg := protocol.NewMessage(protocol.RoleUser, "Hello, world!")
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// RequestsTools reports whether the message is an assistant tool-call request.
func (m Message) RequestsTools() bool {
	return m.Role == RoleAssistant && m.ToolCalls != nil
}

// InitMessages creates a single-element message slice from a role and content string.
func InitMessages(role Role, content string) []Message {
	return []Message{NewMessage(role, content)}
}
