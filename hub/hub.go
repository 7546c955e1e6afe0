// Package hub serializes inbound messages per key. Each key (a chat user)
// gets a mailbox drained by its own worker, so messages for one user are
// handled in order while different users proceed in parallel. Idle mailboxes
// are reaped.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tailored-agentic-units/chainspeak/observability"
)

// Hub event types.
const (
	EventQueued   observability.EventType = "hub.message.queued"
	EventComplete observability.EventType = "hub.turn.complete"
	EventFailed   observability.EventType = "hub.turn.failed"
	EventReaped   observability.EventType = "hub.mailbox.reaped"
)

// Handler processes one message for key. Its context is detached from hub
// shutdown so an in-flight turn always runs to completion.
type Handler[T any] func(ctx context.Context, key string, msg T) error

type mailbox[T any] struct {
	channel *MessageChannel[T]
	pending int
}

// Hub routes messages to per-key workers.
type Hub[T any] struct {
	name        string
	handler     Handler[T]
	bufferSize  int
	idleTimeout time.Duration

	logger   *slog.Logger
	observer observability.Observer
	metrics  *Metrics

	mu        sync.Mutex
	mailboxes map[string]*mailbox[T]
	closed    bool
	submits   sync.WaitGroup
	workers   sync.WaitGroup

	ctx      context.Context
	cancel   context.CancelFunc
	drainCtx context.Context
	drain    context.CancelFunc
}

// Option configures a Hub.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	observer observability.Observer
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver sets the event observer.
func WithObserver(obs observability.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// New creates a Hub that runs handler for every submitted message. ctx bounds
// the hub's lifetime and supplies values to handler contexts.
func New[T any](ctx context.Context, cfg Config, handler Handler[T], opts ...Option) *Hub[T] {
	merged := DefaultConfig()
	merged.Merge(&cfg)

	o := options{logger: slog.Default(), observer: observability.NoOpObserver{}}
	for _, opt := range opts {
		opt(&o)
	}

	hubCtx, cancel := context.WithCancel(ctx)
	drainCtx, drain := context.WithCancel(context.Background())

	return &Hub[T]{
		name:        merged.Name,
		handler:     handler,
		bufferSize:  merged.ChannelBufferSize,
		idleTimeout: time.Duration(merged.IdleTimeout),
		logger:      o.logger,
		observer:    o.observer,
		metrics:     NewMetrics(),
		mailboxes:   make(map[string]*mailbox[T]),
		ctx:         hubCtx,
		cancel:      cancel,
		drainCtx:    drainCtx,
		drain:       drain,
	}
}

// Submit queues msg on key's mailbox, starting a worker if none is running.
// It blocks while the mailbox is full. Returns ErrClosed after Shutdown.
func (h *Hub[T]) Submit(ctx context.Context, key string, msg T) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}

	mb, exists := h.mailboxes[key]
	if !exists {
		mb = &mailbox[T]{channel: NewMessageChannel[T](h.drainCtx, h.bufferSize)}
		h.mailboxes[key] = mb
		h.metrics.RecordMailbox(1)
		h.workers.Add(1)
		go h.work(key, mb)
	}
	mb.pending++
	h.submits.Add(1)
	h.mu.Unlock()
	defer h.submits.Done()

	if err := mb.channel.Send(ctx, msg); err != nil {
		h.mu.Lock()
		mb.pending--
		h.mu.Unlock()
		return fmt.Errorf("failed to queue message for %s: %w", key, err)
	}

	h.metrics.RecordSubmitted()
	observability.Emit(ctx, h.observer, EventQueued, observability.LevelVerbose, h.source(), map[string]any{
		"key": key,
	})
	return nil
}

// Metrics returns a snapshot of the hub counters.
func (h *Hub[T]) Metrics() MetricsSnapshot {
	return h.metrics.Snapshot()
}

// Pending returns the number of queued or running messages for key.
func (h *Hub[T]) Pending(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if mb, ok := h.mailboxes[key]; ok {
		return mb.pending
	}
	return 0
}

// Shutdown stops accepting messages, lets workers finish everything already
// queued, and waits up to timeout for them to exit. On timeout the workers
// stop after their current message.
func (h *Hub[T]) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.logger.Debug("shutting down hub", slog.String("hub_name", h.name))

	h.submits.Wait()
	h.drain()

	done := make(chan struct{})
	go func() {
		h.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.cancel()
		return nil
	case <-time.After(timeout):
		h.cancel()
		return fmt.Errorf("%w after %v", ErrShutdownTimeout, timeout)
	}
}

func (h *Hub[T]) work(key string, mb *mailbox[T]) {
	defer h.workers.Done()
	defer h.metrics.RecordMailbox(-1)

	for {
		rctx, cancel := h.receiveContext()
		msg, err := mb.channel.Receive(rctx)
		cancel()

		switch {
		case err == nil:
			h.process(key, mb, msg)
		case h.ctx.Err() != nil:
			return
		case h.drainCtx.Err() != nil:
			for {
				msg, ok := mb.channel.TryReceive()
				if !ok {
					return
				}
				h.process(key, mb, msg)
			}
		default:
			if h.reap(key, mb) {
				return
			}
		}
	}
}

func (h *Hub[T]) receiveContext() (context.Context, context.CancelFunc) {
	if h.idleTimeout <= 0 {
		return context.WithCancel(h.ctx)
	}
	return context.WithTimeout(h.ctx, h.idleTimeout)
}

// reap removes an idle mailbox. A mailbox with a message in flight from
// Submit is kept.
func (h *Hub[T]) reap(key string, mb *mailbox[T]) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if mb.pending > 0 {
		return false
	}

	delete(h.mailboxes, key)
	mb.channel.Close()
	h.metrics.RecordReaped()

	observability.Emit(h.ctx, h.observer, EventReaped, observability.LevelVerbose, h.source(), map[string]any{
		"key": key,
	})
	return true
}

func (h *Hub[T]) process(key string, mb *mailbox[T], msg T) {
	ctx := context.WithoutCancel(h.ctx)
	start := time.Now()

	err := h.invoke(ctx, key, msg)

	h.mu.Lock()
	mb.pending--
	h.mu.Unlock()

	h.metrics.RecordProcessed(err != nil)
	if err != nil {
		h.logger.ErrorContext(ctx, "message handler failed",
			slog.String("hub_name", h.name),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		observability.Emit(ctx, h.observer, EventFailed, observability.LevelError, h.source(), map[string]any{
			"key":      key,
			"error":    err.Error(),
			"duration": time.Since(start).String(),
		})
		return
	}

	observability.Emit(ctx, h.observer, EventComplete, observability.LevelVerbose, h.source(), map[string]any{
		"key":      key,
		"duration": time.Since(start).String(),
	})
}

func (h *Hub[T]) invoke(ctx context.Context, key string, msg T) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h.handler(ctx, key, msg)
}

func (h *Hub[T]) source() string {
	return "hub." + h.name
}
