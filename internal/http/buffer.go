package http

import (
	"log/slog"
	"net/http"

	"github.com/hacastro22/watibot3-sub002/internal/debounce"
	"github.com/hacastro22/watibot3-sub002/internal/store"
)

// BufferHandler exposes read-only views of the debounce state.
type BufferHandler struct {
	registry *debounce.Registry
	store    store.BufferStore
	token    string
}

// NewBufferHandler creates a handler for the buffer inspection endpoints.
func NewBufferHandler(reg *debounce.Registry, st store.BufferStore, token string) *BufferHandler {
	return &BufferHandler{registry: reg, store: st, token: token}
}

// RegisterRoutes registers all buffer routes on the given mux.
func (h *BufferHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/timers", requireToken(h.token, h.handleTimers))
	mux.HandleFunc("GET /v1/pending", requireToken(h.token, h.handlePending))
}

func (h *BufferHandler) handleTimers(w http.ResponseWriter, r *http.Request) {
	timers := h.registry.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timers": timers,
		"total":  len(timers),
	})
}

func (h *BufferHandler) handlePending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.store.ListPending(r.Context())
	if err != nil {
		slog.Error("buffer.pending", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list pending conversations"})
		return
	}
	if pending == nil {
		pending = []store.PendingConversation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending": pending,
		"total":   len(pending),
	})
}
