// Package mock provides a scripted Agent for tests.
package mock

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/chainspeak/core/protocol"
	"github.com/tailored-agentic-units/chainspeak/core/response"
)

// ErrScriptExhausted is returned when more calls are made than were scripted.
var ErrScriptExhausted = errors.New("mock agent: no scripted response left")

// Step is one scripted reply: a response, or an error.
type Step struct {
	Response *response.ToolsResponse
	Err      error
}

// Request captures the input of one Tools call.
type Request struct {
	Messages []protocol.Message
	Tools    []protocol.Tool
}

// Agent replays scripted steps in order and records every request.
type Agent struct {
	mu       sync.Mutex
	steps    []Step
	requests []Request
}

// New creates an Agent that answers with steps in order.
func New(steps ...Step) *Agent {
	return &Agent{steps: steps}
}

func (a *Agent) ID() string    { return "mock" }
func (a *Agent) Model() string { return "mock-model" }

// Tools records the request and returns the next scripted step.
func (a *Agent) Tools(_ context.Context, messages []protocol.Message, tools []protocol.Tool) (*response.ToolsResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.requests = append(a.requests, Request{
		Messages: cloneMessages(messages),
		Tools:    slices.Clone(tools),
	})

	if len(a.steps) == 0 {
		return nil, ErrScriptExhausted
	}
	step := a.steps[0]
	a.steps = a.steps[1:]
	return step.Response, step.Err
}

// Requests returns every captured request in order.
func (a *Agent) Requests() []Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.requests)
}

// Remaining returns the number of unused steps.
func (a *Agent) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.steps)
}

// Reply scripts a plain text completion.
func Reply(content string) Step {
	return Step{Response: &response.ToolsResponse{
		Model: "mock-model",
		Choices: []response.Choice{{
			Message:      response.ChoiceMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
	}}
}

// CallTools scripts a completion requesting the given tool calls.
func CallTools(calls ...protocol.ToolCall) Step {
	return Step{Response: &response.ToolsResponse{
		Model: "mock-model",
		Choices: []response.Choice{{
			Message:      response.ChoiceMessage{Role: "assistant", ToolCalls: calls},
			FinishReason: "tool_calls",
		}},
	}}
}

// Fail scripts a request error.
func Fail(err error) Step {
	return Step{Err: err}
}

// Empty scripts a completion with no choices.
func Empty() Step {
	return Step{Response: &response.ToolsResponse{Model: "mock-model"}}
}

func cloneMessages(msgs []protocol.Message) []protocol.Message {
	out := make([]protocol.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		out[i].ToolCalls = slices.Clone(m.ToolCalls)
	}
	return out
}
