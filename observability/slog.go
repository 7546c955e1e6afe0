package observability

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// SlogObserver writes events to a slog.Logger. The event type becomes the
// log message and Data keys become attributes in sorted order.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver creates a SlogObserver that emits to logger.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogObserver{logger: logger}
}

// Logger returns the underlying logger.
func (o *SlogObserver) Logger() *slog.Logger {
	return o.logger
}

func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	level := event.Level.SlogLevel()
	if !o.logger.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, len(event.Data)+1)
	attrs = append(attrs, slog.String("source", event.Source))
	for _, k := range slices.Sorted(maps.Keys(event.Data)) {
		attrs = append(attrs, slog.Any(k, event.Data[k]))
	}

	o.logger.LogAttrs(ctx, level, string(event.Type), attrs...)
}
