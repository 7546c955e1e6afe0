// Package store provides the process-wide key-value store. Values are JSON
// documents keyed by string; every mutation persists the whole map through a
// Persister so the on-disk state always reflects a complete snapshot.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Persister reads and writes complete snapshots of the store.
// Implementations perform I/O on each call without caching.
type Persister interface {
	// Load returns the last saved snapshot. A missing or empty backing
	// resource yields an empty map and no error.
	Load(ctx context.Context) (map[string]json.RawMessage, error)
	// Save replaces the persisted state with snapshot.
	Save(ctx context.Context, snapshot map[string]json.RawMessage) error
	// Close releases any resources held by the persister.
	Close() error
}

// Updater computes the next value for a key from its current value.
// It runs while the store is locked and must not call back into the store.
type Updater func(current json.RawMessage) (any, error)

// Store is an in-memory map of JSON values backed by a Persister.
// All methods are safe for concurrent use.
type Store struct {
	persister Persister
	logger    *slog.Logger

	mu      sync.RWMutex
	data    map[string]json.RawMessage
	version uint64
	closed  bool

	saveMu sync.Mutex
	saved  uint64
}

// Open loads the persisted snapshot and returns a ready Store.
// Load failures never abort: the store starts empty and the failure is logged.
func Open(ctx context.Context, persister Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		persister: persister,
		logger:    logger,
		data:      make(map[string]json.RawMessage),
	}

	data, err := persister.Load(ctx)
	switch {
	case err != nil:
		logger.Warn("store load failed, starting with an empty store", "error", err)
	case len(data) == 0:
		logger.Info("no stored data, starting with an empty store")
	default:
		s.data = data
		logger.Info("store loaded", "keys", len(data))
	}

	return s
}

// Get returns the raw JSON value stored under key.
// A missing key returns false, never an error.
func (s *Store) Get(key string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, false
	}
	return slices.Clone(v), true
}

// Set replaces the value under key and persists the full map.
// The in-memory value is kept even if persistence fails.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	raw, err := encode(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncodeFailed, key, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.data[key] = raw
	version, snapshot := s.snapshotLocked()
	s.mu.Unlock()

	return s.persist(ctx, version, snapshot)
}

// Update atomically reads the value under key (or initial when absent),
// passes it to fn, and stores and persists the result. The computed value
// is returned. An error from fn leaves the store unchanged.
func (s *Store) Update(ctx context.Context, key string, initial any, fn Updater) (json.RawMessage, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}

	current, ok := s.data[key]
	if !ok && initial != nil {
		raw, err := encode(initial)
		if err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %s: %v", ErrEncodeFailed, key, err)
		}
		current = raw
	}

	next, err := fn(slices.Clone(current))
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	raw, err := encode(next)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s: %v", ErrEncodeFailed, key, err)
	}

	s.data[key] = raw
	version, snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.persist(ctx, version, snapshot); err != nil {
		return slices.Clone(raw), err
	}
	return slices.Clone(raw), nil
}

// All returns a copy of every key/value pair in the store.
func (s *Store) All() map[string]json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]json.RawMessage, len(s.data))
	for k, v := range s.data {
		out[k] = slices.Clone(v)
	}
	return out
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.data))
}

// Close rejects further mutations and closes the persister.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.persister.Close()
}

func (s *Store) snapshotLocked() (uint64, map[string]json.RawMessage) {
	s.version++
	return s.version, maps.Clone(s.data)
}

// persist writes snapshots in version order. A snapshot older than one
// already written is skipped: the newer snapshot contains its mutation.
func (s *Store) persist(ctx context.Context, version uint64, snapshot map[string]json.RawMessage) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if version <= s.saved {
		return nil
	}

	if err := s.persister.Save(ctx, snapshot); err != nil {
		s.logger.Error("store save failed", "version", version, "error", err)
		if errors.Is(err, ErrSaveFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	s.saved = version
	return nil
}

func encode(value any) (json.RawMessage, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// GetJSON decodes the value under key into T.
// Returns false when the key is absent.
func GetJSON[T any](s *Store, key string) (T, bool, error) {
	var out T
	raw, ok := s.Get(key)
	if !ok {
		return out, false, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, true, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, true, nil
}

// UpdateJSON is the typed form of Update. The current value (or initial when
// absent) is decoded into T before fn runs.
func UpdateJSON[T any](ctx context.Context, s *Store, key string, initial T, fn func(T) (T, error)) (T, error) {
	var result T
	_, err := s.Update(ctx, key, nil, func(current json.RawMessage) (any, error) {
		value := initial
		if current != nil {
			var decoded T
			if err := json.Unmarshal(current, &decoded); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
			value = decoded
		}

		next, err := fn(value)
		if err != nil {
			return nil, err
		}
		result = next
		return next, nil
	})
	return result, err
}
