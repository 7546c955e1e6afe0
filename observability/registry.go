package observability

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrUnknownObserver is returned for an unregistered observer name.
var ErrUnknownObserver = errors.New("unknown observer")

var (
	observers = map[string]Observer{
		"noop": NoOpObserver{},
	}
	mutex sync.RWMutex
)

// GetObserver returns an observer by name. "slog" is always available and
// writes to logger (slog.Default when nil); "noop" discards events; other
// names must be registered with RegisterObserver.
func GetObserver(name string, logger *slog.Logger) (Observer, error) {
	if name == "" || name == "slog" {
		return NewSlogObserver(logger), nil
	}

	mutex.RLock()
	defer mutex.RUnlock()

	obs, exists := observers[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObserver, name)
	}
	return obs, nil
}

// RegisterObserver adds or replaces a named observer.
func RegisterObserver(name string, observer Observer) {
	mutex.Lock()
	defer mutex.Unlock()

	observers[name] = observer
}
