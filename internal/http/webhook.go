package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hacastro22/watibot3-sub002/internal/bus"
	"github.com/hacastro22/watibot3-sub002/internal/channels"
	"github.com/hacastro22/watibot3-sub002/internal/store"
)

// ErrDuplicate is returned by an inbound handler for a message already ingested.
var ErrDuplicate = errors.New("duplicate inbound message")

// RejectionRecorder counts webhook messages that were not ingested.
type RejectionRecorder interface {
	WebhookRejected(channel, reason string)
}

// WebhookHandler receives provider webhooks and hands each parsed message
// to the inbound handler. It answers once every message is durably stored,
// so a 2xx means the provider may forget the delivery.
type WebhookHandler struct {
	channels *channels.Manager
	limiter  *channels.WebhookRateLimiter
	inbound  bus.MessageHandler
	rejects  RejectionRecorder
	maxBody  int64
}

// NewWebhookHandler creates the webhook endpoint handler.
// limiter and rejects may be nil.
func NewWebhookHandler(mgr *channels.Manager, limiter *channels.WebhookRateLimiter, inbound bus.MessageHandler, rejects RejectionRecorder, maxBody int64) *WebhookHandler {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &WebhookHandler{channels: mgr, limiter: limiter, inbound: inbound, rejects: rejects, maxBody: maxBody}
}

// RegisterRoutes registers the webhook route on the given mux.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook/{channel}", h.handleWebhook)
}

func (h *WebhookHandler) reject(channel, reason string) {
	if h.rejects != nil {
		h.rejects.WebhookRejected(channel, reason)
	}
}

func (h *WebhookHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("channel")
	adapter, ok := h.channels.GetChannel(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown channel"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	msgs, err := adapter.Parse(r)
	switch {
	case errors.Is(err, channels.ErrUnauthorized):
		slog.Warn("security.webhook_secret_mismatch", "channel", name, "remote", r.RemoteAddr)
		h.reject(name, "unauthorized")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	case err != nil:
		slog.Warn("webhook: parse failed", "channel", name, "error", err)
		h.reject(name, "bad_payload")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	accepted, skipped := 0, 0
	for _, msg := range msgs {
		if !adapter.IsAllowed(msg.SenderID) {
			slog.Debug("webhook: sender not allowed", "channel", name, "sender", msg.SenderID)
			h.reject(name, "not_allowed")
			skipped++
			continue
		}
		if h.limiter != nil && !h.limiter.Allow(msg.ConversationID()) {
			slog.Warn("security.rate_limited", "channel", name, "conversation", msg.ConversationID())
			h.reject(name, "rate_limited")
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"error":    "rate limited",
				"accepted": accepted,
			})
			return
		}

		err := h.inbound(r.Context(), msg)
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, ErrDuplicate):
			h.reject(name, "duplicate")
			skipped++
		case errors.Is(err, store.ErrStoreWrite):
			// The provider must retry; anything accepted so far is safe and
			// will be deduped on redelivery.
			h.reject(name, "store_unavailable")
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"error":    "buffer unavailable",
				"accepted": accepted,
			})
			return
		default:
			slog.Error("webhook: inbound handler failed", "channel", name, "error", err)
			h.reject(name, "invalid")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted, "skipped": skipped})
}
