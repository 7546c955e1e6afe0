// Package session manages bounded per-user conversation history persisted in
// the key-value store.
package session

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/chainspeak/core/protocol"
)

// Record is the persisted form of a session.
type Record struct {
	History []protocol.Message `json:"history"`
}

// Session is the conversation history of one user for the duration of a
// turn. It tracks the entries appended since load so Save can rebase them
// onto history committed concurrently.
type Session struct {
	userID string
	limit  int

	mu       sync.RWMutex
	history  []protocol.Message
	pending  []protocol.Message
	loaded   json.RawMessage
	greeted  bool
	stripped int
}

func newSession(userID string, limit int, history []protocol.Message, loaded json.RawMessage) *Session {
	return &Session{
		userID:  userID,
		limit:   limit,
		history: history,
		loaded:  loaded,
	}
}

// UserID returns the owner of the session.
func (s *Session) UserID() string {
	return s.userID
}

// History returns a copy of the conversation history.
func (s *Session) History() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.history)
}

// Pending returns a copy of the entries appended since the session was loaded.
func (s *Session) Pending() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.pending)
}

// Len returns the number of history entries.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// Stripped returns how many orphaned tool-call entries were removed on load.
func (s *Session) Stripped() int {
	return s.stripped
}

// AppendUser records the user's message.
func (s *Session) AppendUser(text string) {
	s.append(protocol.NewMessage(protocol.RoleUser, text))
}

// AppendAssistant records an assistant reply.
func (s *Session) AppendAssistant(text string) {
	s.append(protocol.NewMessage(protocol.RoleAssistant, text))
}

func (s *Session) append(msg protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = truncate(append(s.history, msg), s.limit)
	s.pending = append(s.pending, msg)
}

func (s *Session) record() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Record{History: nonNil(cloneMessages(s.history))}
}

// rebase applies this turn's pending entries on top of another history.
// A first-contact greeting is dropped when the other history is not empty.
func (s *Session) rebase(onto []protocol.Message) Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := s.pending
	if s.greeted && len(onto) > 0 && len(pending) > 0 {
		pending = pending[1:]
	}

	merged := append(cloneMessages(onto), cloneMessages(pending)...)
	return Record{History: nonNil(truncate(merged, s.limit))}
}

// Cleanup removes orphaned tool-call entries: every assistant message that
// carries a tool-call marker and every tool-role message. It returns the
// cleaned history and the number of entries removed.
func Cleanup(history []protocol.Message) ([]protocol.Message, int) {
	cleaned := make([]protocol.Message, 0, len(history))
	for _, msg := range history {
		if msg.RequestsTools() || msg.Role == protocol.RoleTool {
			continue
		}
		cleaned = append(cleaned, msg)
	}
	return cleaned, len(history) - len(cleaned)
}

func truncate(history []protocol.Message, limit int) []protocol.Message {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return slices.Clone(history[len(history)-limit:])
}

func cloneMessages(msgs []protocol.Message) []protocol.Message {
	if msgs == nil {
		return nil
	}
	copied := make([]protocol.Message, len(msgs))
	for i, msg := range msgs {
		copied[i] = msg
		copied[i].ToolCalls = slices.Clone(msg.ToolCalls)
	}
	return copied
}

func nonNil(msgs []protocol.Message) []protocol.Message {
	if msgs == nil {
		return []protocol.Message{}
	}
	return msgs
}
