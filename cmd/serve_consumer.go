package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hacastro22/watibot3-sub002/internal/bus"
	"github.com/hacastro22/watibot3-sub002/internal/debounce"
	httpapi "github.com/hacastro22/watibot3-sub002/internal/http"
	"github.com/hacastro22/watibot3-sub002/internal/store"
)

// makeInboundHandler turns a parsed webhook message into a buffered message
// and passes it through the ingestion gate. Provider retries of a delivery
// already stored are reported as httpapi.ErrDuplicate.
func makeInboundHandler(d *debounce.Debouncer, dedupe *bus.DedupeCache) bus.MessageHandler {
	return func(ctx context.Context, msg bus.InboundMessage) error {
		key := msg.DedupeKey()
		if key != "" && dedupe != nil && dedupe.IsDuplicate(key) {
			slog.Debug("inbound: duplicate delivery dropped", "channel", msg.Channel, "message_id", msg.MessageID)
			return httpapi.ErrDuplicate
		}

		err := d.Ingest(ctx, toBuffered(msg))
		if err != nil && key != "" && dedupe != nil {
			// Not stored: let the provider's retry through.
			dedupe.Forget(key)
		}
		if errors.Is(err, store.ErrStoreWrite) {
			slog.Error("inbound: message not stored", "channel", msg.Channel, "conversation", msg.ConversationID(), "error", err)
		}
		return err
	}
}

func toBuffered(msg bus.InboundMessage) store.BufferedMessage {
	var meta map[string]string
	if len(msg.Metadata) > 0 || msg.MessageID != "" {
		meta = make(map[string]string, len(msg.Metadata)+1)
		for k, v := range msg.Metadata {
			meta[k] = v
		}
		if msg.MessageID != "" {
			meta["message_id"] = msg.MessageID
		}
	}
	return store.BufferedMessage{
		ConversationID: msg.ConversationID(),
		Channel:        msg.Channel,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Metadata:       meta,
	}
}
