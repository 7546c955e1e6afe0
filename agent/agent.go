// Package agent wraps the language model behind a single tool-calling
// completion operation.
package agent

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/chainspeak/core/protocol"
	"github.com/tailored-agentic-units/chainspeak/core/response"
)

// Agent requests chat completions with tool definitions attached.
// Implementations must be safe for concurrent use.
type Agent interface {
	// ID identifies the agent instance in logs and events.
	ID() string
	// Model returns the model name requests are sent to.
	Model() string
	// Tools sends messages with the tool list (tool_choice "auto" when the
	// list is non-empty) and returns the parsed completion.
	Tools(ctx context.Context, messages []protocol.Message, tools []protocol.Tool) (*response.ToolsResponse, error)
}

// New creates an Agent from configuration.
func New(cfg *Config) (Agent, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}
