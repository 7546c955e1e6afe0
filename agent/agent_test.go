package agent_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/chainspeak/agent"
	"github.com/tailored-agentic-units/chainspeak/core/protocol"
)

type capturedRequest struct {
	mu   sync.Mutex
	body map[string]any
	auth string
}

func newServer(t *testing.T, status int, reply string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		data, _ := io.ReadAll(r.Body)
		if captured != nil {
			captured.mu.Lock()
			_ = json.Unmarshal(data, &captured.body)
			captured.auth = r.Header.Get("Authorization")
			captured.mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAgent(t *testing.T, srv *httptest.Server) agent.Agent {
	t.Helper()
	a, err := agent.New(&agent.Config{
		Provider: agent.ProviderOpenAI,
		Model:    "gpt-4.1",
		BaseURL:  srv.URL + "/v1",
		APIKey:   "sk-test",
	})
	require.NoError(t, err)
	return a
}

var echoTool = protocol.Tool{
	Name:        "echo_text",
	Description: "Echoes back provided text.",
	Parameters: protocol.ObjectSchema(map[string]any{
		"text": protocol.StringProperty("Text to echo back."),
	}, "text"),
}

func TestOpenAI_ToolCallResponse(t *testing.T) {
	captured := &capturedRequest{}
	srv := newServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "gpt-4.1",
		"choices": [{
			"index": 0,
			"message": {
				"role": "assistant",
				"content": null,
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "echo_text", "arguments": "{\"text\":\"ping\"}"}}]
			},
			"finish_reason": "tool_calls"
		}],
		"usage": {"prompt_tokens": 20, "completion_tokens": 5, "total_tokens": 25}
	}`, captured)

	a := newAgent(t, srv)
	resp, err := a.Tools(context.Background(), []protocol.Message{
		protocol.NewMessage(protocol.RoleSystem, "You are Lyra."),
		protocol.NewMessage(protocol.RoleUser, "echo ping"),
	}, []protocol.Tool{echoTool})
	require.NoError(t, err)

	assert.Equal(t, []protocol.ToolCall{{ID: "call_1", Name: "echo_text", Arguments: `{"text":"ping"}`}}, resp.ToolCalls())
	assert.Equal(t, "tool_calls", resp.Choices[0].FinishReason)
	assert.Equal(t, 25, resp.Usage.TotalTokens)

	captured.mu.Lock()
	defer captured.mu.Unlock()
	assert.Equal(t, "Bearer sk-test", captured.auth)
	assert.Equal(t, "gpt-4.1", captured.body["model"])
	assert.Equal(t, "auto", captured.body["tool_choice"])

	tools, ok := captured.body["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "echo_text", fn["name"])
	assert.Equal(t, false, fn["parameters"].(map[string]any)["additionalProperties"])
}

func TestOpenAI_SendsToolRoundTrip(t *testing.T) {
	captured := &capturedRequest{}
	srv := newServer(t, http.StatusOK, `{"model":"gpt-4.1","choices":[{"index":0,"message":{"role":"assistant","content":"You said ping."},"finish_reason":"stop"}]}`, captured)

	a := newAgent(t, srv)
	resp, err := a.Tools(context.Background(), []protocol.Message{
		protocol.NewMessage(protocol.RoleUser, "echo ping"),
		{Role: protocol.RoleAssistant, ToolCalls: []protocol.ToolCall{{ID: "call_1", Name: "echo_text", Arguments: `{"text":"ping"}`}}},
		{Role: protocol.RoleTool, ToolCallID: "call_1", Content: `{"ok":true,"payload":{"result":"ping"}}`},
	}, []protocol.Tool{echoTool})
	require.NoError(t, err)
	assert.Equal(t, "You said ping.", resp.Content())

	captured.mu.Lock()
	defer captured.mu.Unlock()
	msgs := captured.body["messages"].([]any)
	require.Len(t, msgs, 3)

	call := msgs[1].(map[string]any)["tool_calls"].([]any)[0].(map[string]any)
	assert.Equal(t, "call_1", call["id"])
	assert.Equal(t, "function", call["type"])

	tool := msgs[2].(map[string]any)
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_1", tool["tool_call_id"])
}

func TestOpenAI_NoToolsOmitsToolChoice(t *testing.T) {
	captured := &capturedRequest{}
	srv := newServer(t, http.StatusOK, `{"model":"gpt-4.1","choices":[{"index":0,"message":{"role":"assistant","content":"hi"}}]}`, captured)

	_, err := newAgent(t, srv).Tools(context.Background(), protocol.InitMessages(protocol.RoleUser, "hi"), nil)
	require.NoError(t, err)

	captured.mu.Lock()
	defer captured.mu.Unlock()
	_, hasChoice := captured.body["tool_choice"]
	assert.False(t, hasChoice)
}

func TestOpenAI_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		reply   string
		wantErr error
	}{
		{"api error", http.StatusInternalServerError, `{"error":{"message":"overloaded","type":"server_error"}}`, agent.ErrRequestFailed},
		{"no choices", http.StatusOK, `{"model":"gpt-4.1","choices":[]}`, agent.ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.status, tt.reply, nil)
			_, err := newAgent(t, srv).Tools(context.Background(), protocol.InitMessages(protocol.RoleUser, "hi"), nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := agent.New(&agent.Config{Provider: "anthropic", APIKey: "x"})
	assert.ErrorIs(t, err, agent.ErrUnknownProvider)

	t.Setenv("CHAINSPEAK_TEST_KEY", "")
	_, err = agent.New(&agent.Config{Provider: agent.ProviderOpenAI, APIKeyEnv: "CHAINSPEAK_TEST_KEY"})
	assert.ErrorIs(t, err, agent.ErrMissingAPIKey)
}

func TestConfig_ResolveAPIKey(t *testing.T) {
	t.Setenv("CHAINSPEAK_TEST_KEY", "from-env")

	cfg := agent.Config{APIKeyEnv: "CHAINSPEAK_TEST_KEY"}
	assert.Equal(t, "from-env", cfg.ResolveAPIKey())

	cfg.APIKey = "explicit"
	assert.Equal(t, "explicit", cfg.ResolveAPIKey())
}

func TestConfig_Merge(t *testing.T) {
	cfg := agent.DefaultConfig()
	cfg.Merge(&agent.Config{Model: "gpt-4o-mini", BaseURL: "http://localhost:11434/v1"})

	assert.Equal(t, agent.ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.BaseURL)
	assert.Equal(t, "OPENAI_API_KEY", cfg.APIKeyEnv)
}
