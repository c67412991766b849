package channels

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hacastro22/watibot3-sub002/internal/bus"
)

// watiEvent is the subset of the WATI message webhook we use.
type watiEvent struct {
	ID             string `json:"id"`
	WhatsappMsgID  string `json:"whatsappMessageId"`
	ConversationID string `json:"conversationId"`
	EventType      string `json:"eventType"`
	Type           string `json:"type"`
	Text           string `json:"text"`
	Data           string `json:"data"`
	WaID           string `json:"waId"`
	SenderName     string `json:"senderName"`
	Owner          bool   `json:"owner"`
	Timestamp      string `json:"timestamp"`
}

// WatiChannel parses WATI (WhatsApp Business) message webhooks.
type WatiChannel struct {
	*BaseChannel
}

// NewWatiChannel creates the WATI adapter.
func NewWatiChannel(allowList []string, secret string) *WatiChannel {
	return &WatiChannel{BaseChannel: NewBaseChannel("wati", allowList, secret)}
}

func (c *WatiChannel) Parse(r *http.Request) ([]bus.InboundMessage, error) {
	if err := c.CheckSecret(r); err != nil {
		return nil, err
	}
	var ev watiEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	// Operator and template messages echo back with owner=true.
	if ev.Owner {
		return []bus.InboundMessage{}, nil
	}
	if ev.EventType != "" && ev.EventType != "message" {
		return []bus.InboundMessage{}, nil
	}
	if ev.WaID == "" {
		return nil, fmt.Errorf("%w: missing waId", ErrBadPayload)
	}

	content := strings.TrimSpace(ev.Text)
	if content == "" && ev.Type != "" && ev.Type != "text" {
		content = "[" + ev.Type + "]"
		if ev.Data != "" {
			content += " " + ev.Data
		}
	}
	if content == "" {
		return []bus.InboundMessage{}, nil
	}

	msgID := ev.ID
	if msgID == "" {
		msgID = ev.WhatsappMsgID
	}
	meta := map[string]string{"message_type": ev.Type}
	if ev.SenderName != "" {
		meta["sender_name"] = ev.SenderName
	}
	if ev.ConversationID != "" {
		meta["wati_conversation_id"] = ev.ConversationID
	}
	if ev.Timestamp != "" {
		meta["provider_timestamp"] = ev.Timestamp
	}
	return []bus.InboundMessage{c.newMessage(ev.WaID, ev.WaID, content, msgID, meta)}, nil
}
