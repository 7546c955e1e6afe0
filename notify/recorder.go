package notify

import (
	"context"
	"sync"
)

// Sent is one message captured by a Recorder.
type Sent struct {
	To    string
	Text  string
	Media *Media
}

// Recorder captures outbound messages in memory. Err, when set, is returned
// from every send after the message is recorded.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	Err  error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// SendText records a text message.
func (r *Recorder) SendText(_ context.Context, to, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sent = append(r.sent, Sent{To: to, Text: text})
	return r.Err
}

// SendMedia records a media message.
func (r *Recorder) SendMedia(_ context.Context, to string, media Media) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := media
	r.sent = append(r.sent, Sent{To: to, Text: media.Caption, Media: &m})
	return r.Err
}

// Sent returns a copy of every recorded message in order.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Sent, len(r.sent))
	copy(out, r.sent)
	return out
}

// Texts returns the text of every message sent to the recipient.
func (r *Recorder) Texts(to string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, s := range r.sent {
		if s.To == to && s.Media == nil {
			out = append(out, s.Text)
		}
	}
	return out
}

// Reset discards every recorded message.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
