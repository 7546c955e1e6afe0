package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePersister_LoadDegradesToEmpty(t *testing.T) {
	tests := []struct {
		name    string
		content *string
		wantErr bool
	}{
		{name: "missing file"},
		{name: "empty file", content: ptr("")},
		{name: "whitespace file", content: ptr("  \n\t ")},
		{name: "malformed json", content: ptr("{not json"), wantErr: true},
		{name: "json null", content: ptr("null")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "app_data.json")
			if tt.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.content), 0o644))
			}

			p := NewFilePersister(path)
			data, err := p.Load(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrLoadFailed)
			} else {
				require.NoError(t, err)
				assert.Empty(t, data)
			}

			s := Open(context.Background(), p, slog.New(slog.NewTextHandler(io.Discard, nil)))
			assert.Empty(t, s.All())
		})
	}
}

func TestFilePersister_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data_files", "app_data.json")
	p := NewFilePersister(path)

	require.NoError(t, p.Save(context.Background(), map[string]json.RawMessage{"a": json.RawMessage(`1`)}))
	require.NoError(t, p.Save(context.Background(), map[string]json.RawMessage{"a": json.RawMessage(`2`)}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 2\n}", string(data))
}

func TestFilePersister_CrashBeforeRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app_data.json")
	p := NewFilePersister(path)
	ctx := context.Background()

	require.NoError(t, p.Save(ctx, map[string]json.RawMessage{"k": json.RawMessage(`"old"`)}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	p.rename = func(string, string) error { return errors.New("process killed") }
	err = p.Save(ctx, map[string]json.RawMessage{"k": json.RawMessage(`"new"`)})
	assert.ErrorIs(t, err, ErrSaveFailed)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be removed")

	loaded, err := NewFilePersister(path).Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `"old"`, string(loaded["k"]))
}

func TestFilePersister_SyncsBeforeRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app_data.json")
	p := NewFilePersister(path)
	ctx := context.Background()

	var steps []string
	p.sync = func(f *os.File) error {
		steps = append(steps, "sync")
		return f.Sync()
	}
	p.rename = func(oldpath, newpath string) error {
		steps = append(steps, "rename")
		return os.Rename(oldpath, newpath)
	}

	require.NoError(t, p.Save(ctx, map[string]json.RawMessage{"k": json.RawMessage(`"v"`)}))
	assert.Equal(t, []string{"sync", "rename"}, steps)
}

func TestFilePersister_SyncFailureKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app_data.json")
	p := NewFilePersister(path)
	ctx := context.Background()

	require.NoError(t, p.Save(ctx, map[string]json.RawMessage{"k": json.RawMessage(`"old"`)}))

	renamed := false
	p.sync = func(*os.File) error { return errors.New("i/o error") }
	p.rename = func(string, string) error {
		renamed = true
		return nil
	}

	err := p.Save(ctx, map[string]json.RawMessage{"k": json.RawMessage(`"new"`)})
	assert.ErrorIs(t, err, ErrSaveFailed)
	assert.False(t, renamed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be removed")

	loaded, err := NewFilePersister(path).Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `"old"`, string(loaded["k"]))
}

func TestFilePersister_StoreCrashKeepsPreviousFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app_data.json")
	p := NewFilePersister(path)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := Open(ctx, p, logger)
	require.NoError(t, s.Set(ctx, "session:1", map[string]any{"history": []string{"a"}}))

	p.rename = func(string, string) error { return errors.New("process killed") }
	assert.ErrorIs(t, s.Set(ctx, "session:1", map[string]any{"history": []string{"a", "b"}}), ErrSaveFailed)

	reloaded := Open(ctx, NewFilePersister(path), logger)
	assert.JSONEq(t, `{"history":["a"]}`, string(reloaded.All()["session:1"]))
}

func ptr(s string) *string { return &s }
