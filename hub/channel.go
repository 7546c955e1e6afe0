package hub

import (
	"context"
	"sync/atomic"
)

// MessageChannel is a buffered queue bound to a lifetime context. Once the
// lifetime context is done, Send fails and Receive stops waiting.
type MessageChannel[T any] struct {
	channel    chan T
	context    context.Context
	bufferSize int
	closed     atomic.Int32
}

// NewMessageChannel creates a MessageChannel with the given buffer size.
func NewMessageChannel[T any](ctx context.Context, bufferSize int) *MessageChannel[T] {
	return &MessageChannel[T]{
		channel:    make(chan T, bufferSize),
		context:    ctx,
		bufferSize: bufferSize,
	}
}

// Send enqueues message, blocking while the buffer is full.
func (mc *MessageChannel[T]) Send(ctx context.Context, message T) error {
	if mc.IsClosed() {
		return ErrClosed
	}
	select {
	case mc.channel <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-mc.context.Done():
		return mc.context.Err()
	}
}

// Receive dequeues the next message, blocking until one is available.
func (mc *MessageChannel[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	select {
	case message, ok := <-mc.channel:
		if !ok {
			return zero, ErrClosed
		}
		return message, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-mc.context.Done():
		return zero, mc.context.Err()
	}
}

// TryReceive dequeues a message without blocking.
func (mc *MessageChannel[T]) TryReceive() (T, bool) {
	select {
	case message, ok := <-mc.channel:
		return message, ok
	default:
		var zero T
		return zero, false
	}
}

// Close closes the underlying channel. Safe to call more than once.
func (mc *MessageChannel[T]) Close() {
	if mc.closed.CompareAndSwap(0, 1) {
		close(mc.channel)
	}
}

func (mc *MessageChannel[T]) IsClosed() bool {
	return mc.closed.Load() == 1
}

func (mc *MessageChannel[T]) BufferSize() int {
	return mc.bufferSize
}

func (mc *MessageChannel[T]) QueueLength() int {
	return len(mc.channel)
}
