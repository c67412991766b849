package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStoreWrite means a message could not be persisted. The message is
	// not considered received and the channel should retry delivery.
	ErrStoreWrite = errors.New("buffer store: write failed")

	// ErrStoreRead means buffered messages could not be retrieved or cleared.
	ErrStoreRead = errors.New("buffer store: read failed")
)

// BufferedMessage is one inbound message waiting to be handed to the processor.
// It is immutable once appended.
type BufferedMessage struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Channel        string            `json:"channel,omitempty"`
	SenderID       string            `json:"sender_id,omitempty"`
	Content        string            `json:"content"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ArrivedAt      time.Time         `json:"arrived_at"`
	Seq            int64             `json:"seq"` // assigned by the store on append
}

// PendingConversation summarizes a conversation that still has buffered rows.
type PendingConversation struct {
	ConversationID string    `json:"conversation_id"`
	OldestArrival  time.Time `json:"oldest_arrival"`
	Count          int       `json:"count"`
}

// BufferStore is the durable, per-conversation ordered message buffer.
//
// Implementations must allow Append and Drain to run concurrently, for the
// same or different conversations. A Drain returns only rows visible when its
// transaction started; rows appended while it runs stay buffered.
type BufferStore interface {
	// Append persists msg at the tail of its conversation's buffer and returns
	// the assigned ordering key. Errors wrap ErrStoreWrite.
	Append(ctx context.Context, msg BufferedMessage) (int64, error)

	// Drain atomically reads and clears the conversation's buffer, in Seq
	// order. An empty buffer yields an empty slice and no error.
	// Errors wrap ErrStoreRead.
	Drain(ctx context.Context, conversationID string) ([]BufferedMessage, error)

	// HasPending reports whether the conversation has buffered rows.
	HasPending(ctx context.Context, conversationID string) (bool, error)

	// ListPending returns every conversation with buffered rows, oldest first.
	ListPending(ctx context.Context) ([]PendingConversation, error)

	Close() error
}
