// Package channels turns provider webhook payloads (WATI, ManyChat, or a
// generic JSON shape) into bus.InboundMessage values.
//
// Each adapter embeds BaseChannel for the shared sender allowlist and
// webhook secret check.
package channels

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/hacastro22/watibot3-sub002/internal/bus"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Webhook-Secret"

var (
	// ErrUnauthorized is returned when the webhook secret does not match.
	ErrUnauthorized = errors.New("channels: webhook secret mismatch")
	// ErrBadPayload is returned when the body cannot be parsed.
	ErrBadPayload = errors.New("channels: malformed webhook payload")
)

// Adapter parses a provider webhook into inbound messages.
type Adapter interface {
	// Name returns the channel identifier (e.g., "wati", "manychat").
	Name() string

	// Parse validates the request and returns the messages it carries.
	// Events that are not inbound user messages (delivery receipts,
	// operator replies) yield an empty slice, not an error.
	Parse(r *http.Request) ([]bus.InboundMessage, error)

	// IsAllowed checks if a sender is permitted by the channel's allowlist.
	IsAllowed(senderID string) bool
}

// BaseChannel provides shared functionality for all adapters.
// Adapters should embed this struct.
type BaseChannel struct {
	name      string
	allowList []string
	secret    string
}

// NewBaseChannel creates a new BaseChannel with the given parameters.
func NewBaseChannel(name string, allowList []string, secret string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		allowList: allowList,
		secret:    secret,
	}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// HasAllowList returns true if an allowlist is configured (non-empty).
func (c *BaseChannel) HasAllowList() bool { return len(c.allowList) > 0 }

// IsAllowed checks if a sender is permitted by the allowlist.
// Entries may carry a leading "+" (E.164 style); it is ignored on both sides.
// Empty allowlist means all senders are allowed.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	id := strings.TrimPrefix(senderID, "+")
	for _, allowed := range c.allowList {
		if id == strings.TrimPrefix(strings.TrimSpace(allowed), "+") {
			return true
		}
	}
	return false
}

// CheckSecret verifies the webhook secret header. No secret configured
// means every request passes.
func (c *BaseChannel) CheckSecret(r *http.Request) error {
	if c.secret == "" {
		return nil
	}
	got := r.Header.Get(SecretHeader)
	if got == "" {
		got = r.URL.Query().Get("secret")
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(c.secret)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// newMessage builds an InboundMessage for this channel.
func (c *BaseChannel) newMessage(senderID, chatID, content, messageID string, metadata map[string]string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:   c.name,
		SenderID:  senderID,
		ChatID:    chatID,
		Content:   content,
		MessageID: messageID,
		Metadata:  metadata,
	}
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
