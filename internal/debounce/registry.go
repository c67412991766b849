package debounce

import (
	"sort"
	"sync"
	"time"
)

// Registry maps conversation ids to their live Handle.
// The mutex covers map access only; no store or processor call ever runs
// while it is held.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// TryRegister inserts h only if its conversation has no entry.
// A false result means a timer already owns the conversation and the caller
// must not schedule another one.
func (r *Registry) TryRegister(h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[h.ConversationID]; ok {
		return false
	}
	r.handles[h.ConversationID] = h
	return true
}

// Unregister removes the conversation's entry unconditionally. No-op if
// absent. It exists for operators and tests; timer callbacks remove their own
// entry through release, which only deletes the handle they own.
func (r *Registry) Unregister(conversationID string) {
	r.mu.Lock()
	delete(r.handles, conversationID)
	r.mu.Unlock()
}

// Get returns the live handle for a conversation.
func (r *Registry) Get(conversationID string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[conversationID]
	return h, ok
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// replace swaps old for next without a gap in which the conversation looks idle.
func (r *Registry) replace(old, next *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handles[old.ConversationID] != old {
		return false
	}
	r.handles[old.ConversationID] = next
	return true
}

// release removes h only if it is still the registered handle.
func (r *Registry) release(h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handles[h.ConversationID] != h {
		return false
	}
	delete(r.handles, h.ConversationID)
	return true
}

func (r *Registry) list() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	return out
}

// HandleInfo is a point-in-time view of a live handle.
type HandleInfo struct {
	ConversationID string    `json:"conversation_id"`
	OriginalStart  time.Time `json:"original_start"`
	Cycle          int       `json:"cycle"`
	DueAt          time.Time `json:"due_at"`
	State          string    `json:"state"`
}

// Snapshot lists live handles ordered by conversation id.
func (r *Registry) Snapshot() []HandleInfo {
	handles := r.list()
	out := make([]HandleInfo, 0, len(handles))
	for _, h := range handles {
		out = append(out, HandleInfo{
			ConversationID: h.ConversationID,
			OriginalStart:  h.OriginalStart,
			Cycle:          h.Cycle,
			DueAt:          h.DueAt,
			State:          h.State().String(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConversationID < out[j].ConversationID })
	return out
}
