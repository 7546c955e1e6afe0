package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/chainspeak/core/protocol"
	"github.com/tailored-agentic-units/chainspeak/notify"
	"github.com/tailored-agentic-units/chainspeak/session"
	"github.com/tailored-agentic-units/chainspeak/store"
)

func newStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app_data.json")
	s := store.Open(context.Background(), store.NewFilePersister(path), discard())
	t.Cleanup(func() { s.Close() })
	return s, path
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func user(text string) protocol.Message {
	return protocol.NewMessage(protocol.RoleUser, text)
}

func assistant(text string) protocol.Message {
	return protocol.NewMessage(protocol.RoleAssistant, text)
}

func storedHistory(t *testing.T, s *store.Store, key string) []protocol.Message {
	t.Helper()
	rec, ok, err := store.GetJSON[session.Record](s, key)
	require.NoError(t, err)
	require.True(t, ok, "no record under %s", key)
	return rec.History
}

func TestCleanup(t *testing.T) {
	history := []protocol.Message{
		user("hi"),
		{Role: protocol.RoleAssistant, ToolCalls: []protocol.ToolCall{{ID: "c1", Name: "echo_text", Arguments: "{}"}}},
		{Role: protocol.RoleTool, ToolCallID: "c1", Content: `{"ok":true}`},
		{Role: protocol.RoleAssistant, Content: "", ToolCalls: []protocol.ToolCall{}},
		assistant("hello"),
	}

	cleaned, removed := session.Cleanup(history)

	assert.Equal(t, 3, removed)
	if diff := cmp.Diff([]protocol.Message{user("hi"), assistant("hello")}, cleaned); diff != "" {
		t.Errorf("Cleanup() mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_LoadStripsOrphanedToolCalls(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	raw := json.RawMessage(`{"history":[
		{"role":"assistant","content":"👋"},
		{"role":"user","content":"echo ping"},
		{"role":"assistant","content":null,"tool_calls":[{"id":"c1","type":"function","function":{"name":"echo_text","arguments":"{\"text\":\"ping\"}"}}]},
		{"role":"assistant","content":"","tool_calls":[]},
		{"role":"tool","tool_call_id":"c1","content":"{}"}
	]}`)
	require.NoError(t, s.Set(ctx, "session:42", raw))

	m := session.NewManager(s, session.DefaultConfig(), session.WithLogger(discard()))
	sess, err := m.Load(ctx, "42")
	require.NoError(t, err)

	assert.Equal(t, 3, sess.Stripped())
	for _, msg := range sess.History() {
		assert.False(t, msg.RequestsTools())
		assert.NotEqual(t, protocol.RoleTool, msg.Role)
	}
	assert.Equal(t, 2, sess.Len())
}

func TestManager_LoadUndecodable(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "session:42", "not a record"))

	m := session.NewManager(s, session.DefaultConfig(), session.WithLogger(discard()))
	sess, err := m.Load(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 0, sess.Len())

	sess.AppendUser("hi")
	require.NoError(t, m.Save(ctx, sess))
	assert.Equal(t, []protocol.Message{user("hi")}, storedHistory(t, s, "session:42"))
}

func TestManager_OpenGreetsOnce(t *testing.T) {
	s, _ := newStore(t)
	rec := notify.NewRecorder()
	ctx := context.Background()
	m := session.NewManager(s, session.DefaultConfig(), session.WithNotifier(rec), session.WithLogger(discard()))

	sess, err := m.Open(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []protocol.Message{assistant(session.DefaultGreeting)}, sess.History())
	assert.Equal(t, []string{session.DefaultGreeting}, rec.Texts("42@c.us"))

	sess.AppendUser("hi")
	require.NoError(t, m.Save(ctx, sess))

	again, err := m.Open(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Len())
	assert.Len(t, rec.Sent(), 1, "greeting is sent only on first contact")
}

func TestManager_OpenGreetingDeliveryFailure(t *testing.T) {
	s, _ := newStore(t)
	rec := notify.NewRecorder()
	rec.Err = errors.New("offline")
	m := session.NewManager(s, session.DefaultConfig(), session.WithNotifier(rec), session.WithLogger(discard()))

	sess, err := m.Open(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, []protocol.Message{assistant(session.DefaultGreeting)}, sess.History())
	assert.Len(t, rec.Sent(), 1, "greeting delivery is not retried")
}

func TestManager_OpenAfterCleanupGreets(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "session:42", json.RawMessage(`{"history":[{"role":"tool","tool_call_id":"x","content":"{}"}]}`)))

	rec := notify.NewRecorder()
	m := session.NewManager(s, session.DefaultConfig(), session.WithNotifier(rec), session.WithLogger(discard()))

	sess, err := m.Open(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Len())
	assert.Len(t, rec.Sent(), 1)
}

func TestSession_HistoryBound(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	m := session.NewManager(s, session.DefaultConfig(), session.WithLogger(discard()))

	for i := range 30 {
		sess, err := m.Open(ctx, "42")
		require.NoError(t, err)

		sess.AppendUser(fmt.Sprintf("q%d", i))
		sess.AppendAssistant(fmt.Sprintf("a%d", i))
		require.NoError(t, m.Save(ctx, sess))

		history := storedHistory(t, s, "session:42")
		assert.LessOrEqual(t, len(history), 20)
	}

	history := storedHistory(t, s, "session:42")
	require.Len(t, history, 20)
	assert.Equal(t, user("q20"), history[0])
	assert.Equal(t, assistant("a29"), history[19])
}

func TestManager_SaveReplacesWhenUnchanged(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	m := session.NewManager(s, session.DefaultConfig(), session.WithLogger(discard()))

	require.NoError(t, s.Set(ctx, "session:42", session.Record{History: []protocol.Message{
		user("old"),
		{Role: protocol.RoleAssistant, ToolCalls: []protocol.ToolCall{{ID: "c", Name: "n"}}},
	}}))

	sess, err := m.Load(ctx, "42")
	require.NoError(t, err)
	sess.AppendUser("new")
	require.NoError(t, m.Save(ctx, sess))

	want := []protocol.Message{user("old"), user("new")}
	if diff := cmp.Diff(want, storedHistory(t, s, "session:42")); diff != "" {
		t.Errorf("stored history mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_SaveRebasesConcurrentTurns(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	m := session.NewManager(s, session.DefaultConfig(), session.WithLogger(discard()))

	require.NoError(t, s.Set(ctx, "session:42", session.Record{History: []protocol.Message{assistant("hello")}}))

	first, err := m.Load(ctx, "42")
	require.NoError(t, err)
	second, err := m.Load(ctx, "42")
	require.NoError(t, err)

	first.AppendUser("q1")
	first.AppendAssistant("a1")
	second.AppendUser("q2")
	second.AppendAssistant("a2")

	require.NoError(t, m.Save(ctx, first))
	require.NoError(t, m.Save(ctx, second))

	want := []protocol.Message{assistant("hello"), user("q1"), assistant("a1"), user("q2"), assistant("a2")}
	if diff := cmp.Diff(want, storedHistory(t, s, "session:42")); diff != "" {
		t.Errorf("stored history mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_SaveRebaseDropsDuplicateGreeting(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	m := session.NewManager(s, session.DefaultConfig(), session.WithLogger(discard()))

	first, err := m.Open(ctx, "42")
	require.NoError(t, err)
	second, err := m.Open(ctx, "42")
	require.NoError(t, err)

	first.AppendUser("q1")
	second.AppendUser("q2")
	require.NoError(t, m.Save(ctx, first))
	require.NoError(t, m.Save(ctx, second))

	want := []protocol.Message{assistant(session.DefaultGreeting), user("q1"), user("q2")}
	if diff := cmp.Diff(want, storedHistory(t, s, "session:42")); diff != "" {
		t.Errorf("stored history mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_SaveRebaseTruncates(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	cfg := session.Config{MaxHistory: 3}
	m := session.NewManager(s, cfg, session.WithLogger(discard()))

	first, err := m.Load(ctx, "42")
	require.NoError(t, err)
	second, err := m.Load(ctx, "42")
	require.NoError(t, err)

	first.AppendUser("a")
	first.AppendUser("b")
	second.AppendUser("c")
	second.AppendUser("d")
	require.NoError(t, m.Save(ctx, first))
	require.NoError(t, m.Save(ctx, second))

	assert.Equal(t, []protocol.Message{user("b"), user("c"), user("d")}, storedHistory(t, s, "session:42"))
}

func TestManager_PersistedShape(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	m := session.NewManager(s, session.DefaultConfig(), session.WithLogger(discard()))

	sess, err := m.Load(ctx, "42")
	require.NoError(t, err)
	sess.AppendUser("hi")
	sess.AppendAssistant("hello")
	require.NoError(t, m.Save(ctx, sess))

	raw, ok := s.Get("session:42")
	require.True(t, ok)
	assert.JSONEq(t, `{"history":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]}`, string(raw))
}

func TestConfig(t *testing.T) {
	cfg := session.DefaultConfig()
	assert.Equal(t, 20, cfg.MaxHistory)
	assert.Equal(t, "session:42", cfg.Key("42"))

	cfg.Merge(&session.Config{MaxHistory: 10, Greeting: "hey"})
	assert.Equal(t, 10, cfg.MaxHistory)
	assert.Equal(t, "session:", cfg.KeyPrefix)
	assert.Equal(t, "hey", cfg.Greeting)
}
