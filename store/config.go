package store

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
)

// Storage drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Config holds store initialization parameters.
type Config struct {
	Driver string `json:"driver,omitempty"` // "file" or "sqlite"
	Dir    string `json:"dir,omitempty"`
	File   string `json:"file,omitempty"`
}

// DefaultConfig returns the default store configuration:
// a JSON file at data_files/app_data.json.
func DefaultConfig() Config {
	return Config{
		Driver: DriverFile,
		Dir:    "data_files",
		File:   "app_data.json",
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Driver != "" {
		c.Driver = source.Driver
	}
	if source.Dir != "" {
		c.Dir = source.Dir
	}
	if source.File != "" {
		c.File = source.File
	}
}

// Path returns the backing file path.
func (c *Config) Path() string {
	return filepath.Join(c.Dir, c.File)
}

// NewPersister creates the Persister selected by Driver.
func NewPersister(cfg *Config) (Persister, error) {
	switch cfg.Driver {
	case DriverFile, "":
		return NewFilePersister(cfg.Path()), nil
	case DriverSQLite:
		return NewSQLitePersister(cfg.Path())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}

// New creates the persister from configuration and opens the store.
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*Store, error) {
	p, err := NewPersister(cfg)
	if err != nil {
		return nil, err
	}
	return Open(ctx, p, logger), nil
}
