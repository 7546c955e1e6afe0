package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Writer prints outbound messages to an io.Writer. It backs the console
// chat transport.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a Writer printing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// SendText prints the text prefixed with the recipient.
func (w *Writer) SendText(_ context.Context, to, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := fmt.Fprintf(w.w, "[%s] %s\n", to, text)
	return err
}

// SendMedia prints a placeholder line describing the attachment.
func (w *Writer) SendMedia(_ context.Context, to string, media Media) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := fmt.Fprintf(w.w, "[%s] <%s, %d bytes> %s\n", to, media.MimeType, len(media.Data), media.Caption)
	return err
}
