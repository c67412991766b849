package bus

import "context"

// InboundMessage represents a message received from a channel webhook (WATI, ManyChat, etc.)
type InboundMessage struct {
	Channel   string            `json:"channel"`
	SenderID  string            `json:"sender_id"`
	ChatID    string            `json:"chat_id"` // peer id within the channel (phone number, subscriber id)
	Content   string            `json:"content"`
	MessageID string            `json:"message_id,omitempty"` // provider message id, used for dedupe
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ConversationID returns the canonical "{channel}:{peer}" key that scopes
// buffering and debounce timers.
func (m InboundMessage) ConversationID() string {
	peer := m.ChatID
	if peer == "" {
		peer = m.SenderID
	}
	return m.Channel + ":" + peer
}

// DedupeKey identifies a provider delivery. Empty when the provider sent no id.
func (m InboundMessage) DedupeKey() string {
	if m.MessageID == "" {
		return ""
	}
	return m.Channel + "|" + m.SenderID + "|" + m.ChatID + "|" + m.MessageID
}

// MessageHandler handles an inbound message from a specific channel.
type MessageHandler func(ctx context.Context, msg InboundMessage) error
