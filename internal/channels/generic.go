package channels

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hacastro22/watibot3-sub002/internal/bus"
)

type genericMessage struct {
	ConversationID string            `json:"conversation_id"`
	SenderID       string            `json:"sender_id"`
	Text           string            `json:"text"`
	MessageID      string            `json:"message_id"`
	Metadata       map[string]string `json:"metadata"`
}

// GenericChannel accepts either one message object or an array of them.
// Useful for internal integrations and load tests.
type GenericChannel struct {
	*BaseChannel
}

// NewGenericChannel creates the generic JSON adapter.
func NewGenericChannel(allowList []string, secret string) *GenericChannel {
	return &GenericChannel{BaseChannel: NewBaseChannel("generic", allowList, secret)}
}

func (c *GenericChannel) Parse(r *http.Request) ([]bus.InboundMessage, error) {
	if err := c.CheckSecret(r); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	var batch []genericMessage
	if trimmed := strings.TrimSpace(string(raw)); strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, &batch); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
	} else {
		var one genericMessage
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		batch = []genericMessage{one}
	}

	out := make([]bus.InboundMessage, 0, len(batch))
	for i, m := range batch {
		peer := m.ConversationID
		if peer == "" {
			peer = m.SenderID
		}
		if peer == "" {
			return nil, fmt.Errorf("%w: message %d has neither conversation_id nor sender_id", ErrBadPayload, i)
		}
		sender := m.SenderID
		if sender == "" {
			sender = peer
		}
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		out = append(out, c.newMessage(sender, peer, text, m.MessageID, m.Metadata))
	}
	return out, nil
}
