package response

import (
	"encoding/json"
	"fmt"

	"github.com/tailored-agentic-units/chainspeak/core/protocol"
)

// ToolsResponse represents the response from a tool-enabled chat completion.
// Contains the assistant message, any tool calls it requests, and token usage.
type ToolsResponse struct {
	ID      string      `json:"id,omitempty"`
	Object  string      `json:"object,omitempty"`
	Created int64       `json:"created,omitempty"`
	Model   string      `json:"model"`
	Choices []Choice    `json:"choices"`
	Usage   *TokenUsage `json:"usage,omitempty"`
}

// Choice is a single completion candidate.
type Choice struct {
	Index        int           `json:"index"`
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// ChoiceMessage is the assistant message carried by a Choice.
type ChoiceMessage struct {
	Role      string              `json:"role"`
	Content   string              `json:"content"`
	ToolCalls []protocol.ToolCall `json:"tool_calls,omitempty"`
}

// TokenUsage reports token consumption for a request.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens"`
}

// FirstChoice returns the first completion candidate.
// Returns false when the response carries no choices.
func (r *ToolsResponse) FirstChoice() (ChoiceMessage, bool) {
	if r == nil || len(r.Choices) == 0 {
		return ChoiceMessage{}, false
	}
	return r.Choices[0].Message, true
}

// Content returns the text content of the first choice, or an empty string.
func (r *ToolsResponse) Content() string {
	msg, _ := r.FirstChoice()
	return msg.Content
}

// ToolCalls returns the tool calls of the first choice.
func (r *ToolsResponse) ToolCalls() []protocol.ToolCall {
	msg, _ := r.FirstChoice()
	return msg.ToolCalls
}

// ParseTools parses a tools response from JSON bytes.
// Returns the parsed ToolsResponse or an error if parsing fails.
func ParseTools(body []byte) (*ToolsResponse, error) {
	var response ToolsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse tools response: %w", err)
	}
	return &response, nil
}
