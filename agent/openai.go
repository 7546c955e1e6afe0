package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/tailored-agentic-units/chainspeak/core/protocol"
	"github.com/tailored-agentic-units/chainspeak/core/response"
)

// OpenAI is an Agent backed by the OpenAI chat completions API or any
// compatible endpoint.
type OpenAI struct {
	id     string
	model  string
	client *openai.Client
}

// NewOpenAI creates an OpenAI agent. Returns ErrMissingAPIKey when no key is
// configured or present in the environment.
func NewOpenAI(cfg *Config) (*OpenAI, error) {
	key := cfg.ResolveAPIKey()
	if key == "" {
		return nil, fmt.Errorf("%w: set %s", ErrMissingAPIKey, cfg.APIKeyEnv)
	}

	clientConfig := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAI{
		id:     uuid.Must(uuid.NewV7()).String(),
		model:  cfg.Model,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

func (a *OpenAI) ID() string    { return a.id }
func (a *OpenAI) Model() string { return a.model }

// Tools performs one chat completion with the tool list attached.
func (a *OpenAI) Tools(ctx context.Context, messages []protocol.Message, tools []protocol.Tool) (*response.ToolsResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: toOpenAIMessages(messages),
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
		req.ToolChoice = "auto"
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: status %d: %s", ErrRequestFailed, apiErr.HTTPStatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	return fromOpenAIResponse(resp), nil
}

func toOpenAIMessages(messages []protocol.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		m := openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out[i] = m
	}
	return out
}

func toOpenAITools(tools []protocol.Tool) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		params := t.Parameters
		if params == nil {
			params = protocol.ObjectSchema(map[string]any{})
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
				Strict:      false,
			},
		}
	}
	return out
}

func fromOpenAIResponse(resp openai.ChatCompletionResponse) *response.ToolsResponse {
	out := &response.ToolsResponse{
		ID:      resp.ID,
		Object:  resp.Object,
		Created: resp.Created,
		Model:   resp.Model,
		Choices: make([]response.Choice, len(resp.Choices)),
		Usage: &response.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	for i, c := range resp.Choices {
		choice := response.Choice{
			Index:        c.Index,
			FinishReason: string(c.FinishReason),
			Message: response.ChoiceMessage{
				Role:    c.Message.Role,
				Content: c.Message.Content,
			},
		}
		for _, tc := range c.Message.ToolCalls {
			choice.Message.ToolCalls = append(choice.Message.ToolCalls, protocol.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		out.Choices[i] = choice
	}

	return out
}
