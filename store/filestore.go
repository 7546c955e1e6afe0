package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FilePersister stores the whole map as one pretty-printed JSON object.
// Writes go to a temp file in the same directory which is then renamed over
// the canonical file, so a crash mid-write leaves the previous file intact.
type FilePersister struct {
	path   string
	sync   func(f *os.File) error
	rename func(oldpath, newpath string) error
}

// NewFilePersister creates a FilePersister writing to path.
// The parent directory is created on demand.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path, sync: (*os.File).Sync, rename: os.Rename}
}

// Path returns the canonical file path.
func (p *FilePersister) Path() string {
	return p.path
}

// Load reads the canonical file. A missing or blank file yields an empty map.
func (p *FilePersister) Load(_ context.Context) (map[string]json.RawMessage, error) {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, p.path, err)
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, p.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, p.path, err)
	}
	if out == nil {
		out = map[string]json.RawMessage{}
	}
	return out, nil
}

// Save writes snapshot to a temp file and renames it over the canonical file.
func (p *FilePersister) Save(_ context.Context, snapshot map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, p.path, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, p.path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, p.path, err)
	}
	// The data must be on disk before the rename makes it canonical.
	if err := p.sync(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, p.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, p.path, err)
	}

	if err := p.rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, p.path, err)
	}

	return nil
}

// Close is a no-op; files are closed after every write.
func (p *FilePersister) Close() error {
	return nil
}
