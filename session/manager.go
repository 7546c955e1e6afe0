package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tailored-agentic-units/chainspeak/notify"
	"github.com/tailored-agentic-units/chainspeak/store"
)

// Manager loads and persists sessions through the key-value store.
type Manager struct {
	store    *store.Store
	notifier notify.Notifier
	domain   string
	cfg      Config
	logger   *slog.Logger
}

// Option configures a Manager during construction.
type Option func(*Manager)

// WithNotifier sets the notifier used for the first-contact greeting.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithDomain sets the chat domain used to address users.
func WithDomain(domain string) Option {
	return func(m *Manager) { m.domain = domain }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager over s. Zero config values fall back to
// DefaultConfig.
func NewManager(s *store.Store, cfg Config, opts ...Option) *Manager {
	merged := DefaultConfig()
	merged.Merge(&cfg)

	m := &Manager{
		store:    s,
		notifier: notify.Discard(),
		domain:   notify.DefaultConfig().Domain,
		cfg:      merged,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Load returns the user's session with orphaned tool-call entries removed.
// An absent or undecodable record yields an empty session.
func (m *Manager) Load(_ context.Context, userID string) (*Session, error) {
	key := m.cfg.Key(userID)

	raw, ok := m.store.Get(key)
	if !ok {
		return newSession(userID, m.cfg.MaxHistory, nil, nil), nil
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		m.logger.Warn("discarding undecodable session", "key", key, "error", err)
		return newSession(userID, m.cfg.MaxHistory, nil, raw), nil
	}

	history, stripped := Cleanup(rec.History)
	if stripped > 0 {
		m.logger.Info("removed orphaned tool-call entries", "key", key, "count", stripped)
	}

	s := newSession(userID, m.cfg.MaxHistory, truncate(history, m.cfg.MaxHistory), raw)
	s.stripped = stripped
	return s, nil
}

// Open loads the session and applies the first-contact policy: an empty
// history gets the greeting sent and recorded as its first entry. A failed
// greeting delivery is logged and not retried.
func (m *Manager) Open(ctx context.Context, userID string) (*Session, error) {
	s, err := m.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.Len() == 0 && m.cfg.Greeting != "" {
		to := notify.Recipient(userID, m.domain)
		if err := m.notifier.SendText(ctx, to, m.cfg.Greeting); err != nil {
			m.logger.Warn("greeting delivery failed", "to", to, "error", err)
		}
		s.AppendAssistant(m.cfg.Greeting)
		s.greeted = true
	}

	return s, nil
}

// Save persists the session. When the stored record is unchanged since Load
// it is replaced by this session; otherwise this session's new entries are
// appended to the stored history so concurrent turns keep each other's
// entries.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	key := m.cfg.Key(s.UserID())

	_, err := m.store.Update(ctx, key, nil, func(current json.RawMessage) (any, error) {
		if bytes.Equal(current, s.loaded) {
			return s.record(), nil
		}

		var latest Record
		if err := json.Unmarshal(current, &latest); err != nil {
			m.logger.Warn("stored session undecodable during save, replacing", "key", key, "error", err)
			return s.record(), nil
		}

		m.logger.Info("session changed since load, rebasing entries", "key", key)
		history, _ := Cleanup(latest.History)
		return s.rebase(history), nil
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", key, err)
	}
	return nil
}
