package debounce

import (
	"sync/atomic"
	"time"
)

// State is the lifecycle position of one debounce cycle.
type State int32

const (
	StateScheduled State = iota
	StateRunning
	StateDraining
	StateInvoking
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateInvoking:
		return "invoking"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Handle is the live timer descriptor of a conversation. Exactly one Handle
// per conversation is registered while a cycle is pending or running.
//
// OriginalStart is inherited by follow-up cycles; it is the arrival time of
// the message that started the current unbroken chain of cycles.
type Handle struct {
	ConversationID string
	OriginalStart  time.Time
	Cycle          int       // 1 for the first cycle of a chain
	DueAt          time.Time // when the timer is expected to fire

	state atomic.Int32
	timer Timer // guarded by Debouncer.mu
}

func newHandle(conversationID string, originalStart time.Time, cycle int, dueAt time.Time) *Handle {
	return &Handle{
		ConversationID: conversationID,
		OriginalStart:  originalStart,
		Cycle:          cycle,
		DueAt:          dueAt,
	}
}

// State returns the current cycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

func (h *Handle) setState(s State) { h.state.Store(int32(s)) }
