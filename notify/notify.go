// Package notify defines the outbound delivery boundary of the bot and a set
// of small notifier implementations: a per-recipient rate limiter, a console
// writer, an in-memory recorder, and a no-op sink.
package notify

import (
	"context"
	"strings"
)

// Media is a binary attachment delivered to a chat recipient.
type Media struct {
	Data     []byte
	MimeType string
	Filename string
	Caption  string
}

// Notifier delivers messages to chat recipients.
// Implementations must be safe for concurrent use.
type Notifier interface {
	SendText(ctx context.Context, to, text string) error
	SendMedia(ctx context.Context, to string, media Media) error
}

// Recipient builds the chat address for a user id ("<userID>@<domain>").
func Recipient(userID, domain string) string {
	if domain == "" {
		return userID
	}
	return userID + "@" + domain
}

// UserID normalizes an inbound sender address to a bare user id by
// stripping the "@<domain>" suffix. Other addresses are returned unchanged.
func UserID(raw, domain string) string {
	raw = strings.TrimSpace(raw)
	if domain == "" {
		return raw
	}
	return strings.TrimSuffix(raw, "@"+domain)
}

type discard struct{}

func (discard) SendText(context.Context, string, string) error { return nil }
func (discard) SendMedia(context.Context, string, Media) error { return nil }

// Discard returns a Notifier that drops every message.
func Discard() Notifier {
	return discard{}
}
