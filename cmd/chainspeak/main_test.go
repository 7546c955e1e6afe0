package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/chainspeak/agent/mock"
	"github.com/tailored-agentic-units/chainspeak/core/protocol"
	"github.com/tailored-agentic-units/chainspeak/kernel"
	"github.com/tailored-agentic-units/chainspeak/session"
	"github.com/tailored-agentic-units/chainspeak/store"
)

func TestLoadConfig_FlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"agent":{"model":"from-file"},"store":{"dir":"file-dir"}}`), 0o644))

	cfg, err := loadConfig(&globalFlags{
		configFile:  path,
		storeDriver: store.DriverSQLite,
		dataDir:     "flag-dir",
	})
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Agent.Model)
	assert.Equal(t, store.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "flag-dir", cfg.Store.Dir)
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	cfg, err := loadConfig(&globalFlags{model: "gpt-4o"})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.Agent.Model)
	assert.Equal(t, kernel.DefaultSystemPrompt, cfg.SystemPrompt)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, ".env.local")
	shared := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(local, []byte("CHAINSPEAK_TEST_KEY=local\n"), 0o600))
	require.NoError(t, os.WriteFile(shared, []byte("CHAINSPEAK_TEST_KEY=shared\nCHAINSPEAK_TEST_OTHER=shared\n"), 0o600))

	t.Setenv("CHAINSPEAK_TEST_KEY", "")
	os.Unsetenv("CHAINSPEAK_TEST_KEY")
	t.Setenv("CHAINSPEAK_TEST_OTHER", "")
	os.Unsetenv("CHAINSPEAK_TEST_OTHER")

	require.NoError(t, loadEnv([]string{local, shared, filepath.Join(dir, "missing")}))

	assert.Equal(t, "local", os.Getenv("CHAINSPEAK_TEST_KEY"))
	assert.Equal(t, "shared", os.Getenv("CHAINSPEAK_TEST_OTHER"))
}

func TestRunChat(t *testing.T) {
	cfg := kernel.DefaultConfig()
	cfg.Store.Dir = t.TempDir()

	agent := mock.New(
		mock.Reply("Hi there!"),
		mock.CallTools(protocol.ToolCall{ID: "c1", Name: "echo_text", Arguments: `{"text":"ping"}`}),
		mock.Reply("ping"),
	)

	var out bytes.Buffer
	in := strings.NewReader("hi\n\necho ping\n/quit\nnever sent\n")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := runChat(context.Background(), &cfg, "alice", in, &out, logger, kernel.WithAgent(agent))
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Chatting as alice")
	assert.Contains(t, text, "[alice@c.us] "+session.DefaultGreeting)
	assert.Contains(t, text, "[alice@c.us] Hi there!")
	assert.Contains(t, text, "(tool echo_text -> ")
	assert.Len(t, agent.Requests(), 3)
	assert.Zero(t, agent.Remaining())

	_, err = os.Stat(filepath.Join(cfg.Store.Dir, cfg.Store.File))
	assert.NoError(t, err)
}
