package observability

import "context"

// MultiObserver delivers each event to several observers in order.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver creates a MultiObserver over the non-nil observers.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	m := &MultiObserver{}
	for _, obs := range observers {
		if obs != nil {
			m.observers = append(m.observers, obs)
		}
	}
	return m
}

func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		obs.OnEvent(ctx, event)
	}
}
