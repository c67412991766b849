package channels

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hacastro22/watibot3-sub002/internal/bus"
)

// manychatEvent is the External Request body configured in the ManyChat flow.
type manychatEvent struct {
	ID            string          `json:"id"`
	SubscriberID  json.RawMessage `json:"subscriber_id"` // ManyChat sends numbers or strings depending on the flow
	LastInputText string          `json:"last_input_text"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	Platform      string          `json:"platform"` // "instagram", "messenger", ...
}

// ManyChatChannel parses ManyChat External Request webhooks (Instagram, Messenger).
type ManyChatChannel struct {
	*BaseChannel
}

// NewManyChatChannel creates the ManyChat adapter.
func NewManyChatChannel(allowList []string, secret string) *ManyChatChannel {
	return &ManyChatChannel{BaseChannel: NewBaseChannel("manychat", allowList, secret)}
}

func (c *ManyChatChannel) Parse(r *http.Request) ([]bus.InboundMessage, error) {
	if err := c.CheckSecret(r); err != nil {
		return nil, err
	}
	var ev manychatEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	sub := rawID(ev.SubscriberID)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing subscriber_id", ErrBadPayload)
	}
	content := strings.TrimSpace(ev.LastInputText)
	if content == "" {
		return []bus.InboundMessage{}, nil
	}

	meta := map[string]string{}
	if name := strings.TrimSpace(ev.FirstName + " " + ev.LastName); name != "" {
		meta["sender_name"] = name
	}
	if ev.Platform != "" {
		meta["platform"] = ev.Platform
	}
	return []bus.InboundMessage{c.newMessage(sub, sub, content, ev.ID, meta)}, nil
}

// rawID accepts a JSON string or number.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
