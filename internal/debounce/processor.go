package debounce

import (
	"context"
	"time"

	"github.com/hacastro22/watibot3-sub002/internal/store"
)

// Batch is one drained set of messages handed to the Processor.
type Batch struct {
	ConversationID string
	OriginalStart  time.Time
	// LookbackSince is OriginalStart minus the configured safety margin.
	// Processors computing "messages since the first unanswered one" must
	// use it rather than the current time.
	LookbackSince time.Time
	Cycle         int
	Messages      []store.BufferedMessage // arrival order
}

// Contents returns the message payloads in batch order.
func (b Batch) Contents() []string {
	out := make([]string, len(b.Messages))
	for i, m := range b.Messages {
		out[i] = m.Content
	}
	return out
}

// Response is what the processor produced for a batch.
type Response struct {
	Reply    string            `json:"reply"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Processor consumes drained batches. Latency is unbounded. Errors are logged
// by the debouncer and never retried; retry policy belongs to the processor.
type Processor interface {
	Process(ctx context.Context, batch Batch) (Response, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, batch Batch) (Response, error)

func (f ProcessorFunc) Process(ctx context.Context, batch Batch) (Response, error) {
	return f(ctx, batch)
}
