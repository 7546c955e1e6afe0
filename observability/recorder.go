package observability

import (
	"context"
	"sync"
)

// RecordingObserver keeps every event in memory. Tests use it to assert on
// the events a turn emitted.
type RecordingObserver struct {
	mu     sync.Mutex
	events []Event
}

// NewRecordingObserver creates an empty RecordingObserver.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{}
}

func (r *RecordingObserver) OnEvent(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of every recorded event.
func (r *RecordingObserver) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of the given type.
func (r *RecordingObserver) OfType(typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Types returns the type of every recorded event in order.
func (r *RecordingObserver) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
