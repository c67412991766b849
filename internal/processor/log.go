// Package processor provides the batch consumers the debouncer hands
// drained conversations to.
package processor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hacastro22/watibot3-sub002/internal/debounce"
)

// Log writes each batch to the log and replies with nothing. Used for dry
// runs and local development without an AI engine.
type Log struct{}

func (Log) Name() string { return "log" }

func (Log) Process(_ context.Context, b debounce.Batch) (debounce.Response, error) {
	slog.Info("processor: batch",
		"conversation", b.ConversationID,
		"cycle", b.Cycle,
		"size", len(b.Messages),
		"lookback_since", b.LookbackSince,
		"text", strings.Join(b.Contents(), " | "),
	)
	return debounce.Response{}, nil
}
