// Package tools holds the closed set of model-callable tools. Units are
// discovered once at startup; the Registry then describes them to the model
// and dispatches calls by name.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/chainspeak/core/protocol"
)

// Handler is the function signature for tool implementations.
// A returned error is reported to the model as a failed Result.
type Handler func(ctx context.Context, call Call) (Result, error)

// Unit pairs a tool definition with its handler.
type Unit struct {
	Tool    *protocol.Tool
	Handler Handler
}

type entry struct {
	tool    protocol.Tool
	handler Handler
}

// Registry maps tool names to definitions and handlers.
// Description order is registration order.
type Registry struct {
	order   []string
	entries map[string]entry
	logger  *slog.Logger
	mu      sync.RWMutex
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]entry),
		logger:  logger,
	}
}

// Discover registers units in list order. A unit without a named definition
// or without a handler is skipped with a warning. A duplicate name replaces
// the earlier unit in place.
func Discover(units []Unit, logger *slog.Logger) *Registry {
	r := New(logger)

	for i, u := range units {
		if u.Tool == nil {
			r.logger.Warn("skipping invalid tool unit", "index", i, "error", "missing definition")
			continue
		}

		err := r.Register(*u.Tool, u.Handler)
		switch {
		case err == nil:
			r.logger.Info("loaded tool", "name", u.Tool.Name)
		case errors.Is(err, ErrAlreadyExists):
			r.logger.Warn("duplicate tool name, replacing earlier definition", "name", u.Tool.Name)
			if err := r.Replace(*u.Tool, u.Handler); err != nil {
				r.logger.Warn("skipping invalid tool unit", "index", i, "error", err)
			}
		default:
			r.logger.Warn("skipping invalid tool unit", "index", i, "error", err)
		}
	}

	return r
}

// Register adds a new tool.
// Returns ErrAlreadyExists if a tool with the same name is already registered.
func (r *Registry) Register(tool protocol.Tool, handler Handler) error {
	if err := validate(tool, handler); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, tool.Name)
	}

	r.entries[tool.Name] = entry{tool: tool, handler: handler}
	r.order = append(r.order, tool.Name)
	return nil
}

// Replace updates an existing tool's definition and handler, keeping its
// position. Returns ErrNotFound if no tool with the given name is registered.
func (r *Registry) Replace(tool protocol.Tool, handler Handler) error {
	if err := validate(tool, handler); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tool.Name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, tool.Name)
	}

	r.entries[tool.Name] = entry{tool: tool, handler: handler}
	return nil
}

// Get retrieves a tool definition by name.
func (r *Registry) Get(name string) (protocol.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[name]
	return e.tool, exists
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Describe returns the model-facing definitions of all registered tools.
func (r *Registry) Describe() []protocol.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]protocol.Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.entries[name].tool)
	}
	return tools
}

// Dispatch runs the named tool. It never returns a Go error: an unknown
// name, a handler error, and a handler panic all become failed Results.
func (r *Registry) Dispatch(ctx context.Context, name string, call Call) (result Result) {
	r.mu.RLock()
	e, exists := r.entries[name]
	r.mu.RUnlock()

	if !exists {
		return Fail("No handler for %s", name)
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool handler panicked", "name", name, "panic", p)
			result = Fail("%v", p)
		}
	}()

	res, err := e.handler(ctx, call)
	if err != nil {
		return Fail("%s", err.Error())
	}
	return res
}

func validate(tool protocol.Tool, handler Handler) error {
	if tool.Name == "" {
		return ErrEmptyName
	}
	if handler == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, tool.Name)
	}
	return nil
}
