package debounce

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hacastro22/watibot3-sub002/internal/store"
)

var tracer = otel.Tracer("github.com/hacastro22/watibot3-sub002/internal/debounce")

// fire is the timer body. Every path ends in complete, which either releases
// the registry entry or hands it to a follow-up cycle.
func (d *Debouncer) fire(h *Handle) {
	defer d.inflight.Done()

	ctx, span := tracer.Start(d.baseCtx, "debounce.cycle", trace.WithAttributes(
		attribute.String("conversation.id", h.ConversationID),
		attribute.Int("debounce.cycle", h.Cycle),
		attribute.String("debounce.original_start", h.OriginalStart.UTC().Format(time.RFC3339Nano)),
	))
	defer span.End()

	h.setState(StateRunning)

	h.setState(StateDraining)
	msgs, err := d.drain(ctx, h)
	switch {
	case err != nil:
		// Rows are still in the store; the orphan check reschedules.
		d.metrics.DrainFailed()
		span.RecordError(err)
		span.SetStatus(codes.Error, "drain failed")
		slog.Error("debounce.drain_failed",
			"conversation", h.ConversationID, "cycle", h.Cycle, "error", err)
	case len(msgs) == 0:
		d.metrics.EmptyDrain()
		slog.Info("debounce: empty drain, processor not invoked",
			"conversation", h.ConversationID, "cycle", h.Cycle)
	default:
		h.setState(StateInvoking)
		span.SetAttributes(attribute.Int("debounce.batch_size", len(msgs)))
		if err := d.invoke(ctx, h, msgs); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "processor failed")
		}
	}

	h.setState(StateCompleted)
	d.complete(ctx, h)
}

func (d *Debouncer) drain(ctx context.Context, h *Handle) ([]store.BufferedMessage, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.retry.BaseDelay
	b.MaxInterval = d.retry.MaxDelay

	attempts := uint(d.retry.MaxRetries) + 1
	return backoff.Retry(ctx, func() ([]store.BufferedMessage, error) {
		return d.store.Drain(ctx, h.ConversationID)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("debounce: drain failed, retrying",
				"conversation", h.ConversationID, "retry_in", next, "error", err)
		}),
	)
}

// invoke calls the processor. Errors and panics stay here.
func (d *Debouncer) invoke(ctx context.Context, h *Handle, msgs []store.BufferedMessage) (err error) {
	batch := Batch{
		ConversationID: h.ConversationID,
		OriginalStart:  h.OriginalStart,
		LookbackSince:  h.OriginalStart.Add(-d.margin),
		Cycle:          h.Cycle,
		Messages:       msgs,
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
		if err != nil {
			d.metrics.ProcessorFailed()
			slog.Error("debounce: processing callback failed",
				"conversation", h.ConversationID,
				"batch_size", len(msgs),
				"cycle", h.Cycle,
				"error", err,
			)
		}
	}()

	start := time.Now()
	resp, err := d.proc.Process(ctx, batch)
	if err != nil {
		return err
	}
	d.metrics.BatchProcessed(len(msgs))
	slog.Info("debounce: batch processed",
		"conversation", h.ConversationID,
		"batch_size", len(msgs),
		"cycle", h.Cycle,
		"reply_chars", len(resp.Reply),
		"duration", time.Since(start),
	)
	return nil
}

// complete runs the orphan check.
func (d *Debouncer) complete(ctx context.Context, h *Handle) {
	if d.pendingOrAssume(ctx, h.ConversationID) {
		d.reschedule(h)
		return
	}

	d.registry.release(h)
	d.metrics.TimerRetired()

	// An Ingest that appended before the release saw our entry and did not
	// start a timer; look once more now that the entry is gone.
	if !d.pendingOrAssume(ctx, h.ConversationID) {
		slog.Debug("debounce: timer retired", "conversation", h.ConversationID, "cycle", h.Cycle)
		return
	}
	w := d.QuietPeriod()
	next := newHandle(h.ConversationID, h.OriginalStart, h.Cycle+1, d.clock.Now().Add(w))
	if !d.registry.TryRegister(next) {
		return // a fresh Ingest already owns the conversation
	}
	if d.scheduleOrRelease(next, w) {
		d.metrics.CycleRescheduled()
		slog.Info("debounce.orphan_rescheduled",
			"conversation", h.ConversationID, "cycle", next.Cycle, "original_start", h.OriginalStart)
	}
}

func (d *Debouncer) reschedule(h *Handle) {
	w := d.QuietPeriod()
	next := newHandle(h.ConversationID, h.OriginalStart, h.Cycle+1, d.clock.Now().Add(w))
	if !d.registry.replace(h, next) {
		slog.Warn("debounce: handle no longer registered, not rescheduling",
			"conversation", h.ConversationID, "cycle", h.Cycle)
		return
	}
	if d.scheduleOrRelease(next, w) {
		d.metrics.CycleRescheduled()
		slog.Info("debounce.orphan_rescheduled",
			"conversation", h.ConversationID, "cycle", next.Cycle, "original_start", h.OriginalStart)
	}
}

// pendingOrAssume treats a failed existence check as "pending" so a flaky
// store can only cause an extra cycle, never a stranded message.
func (d *Debouncer) pendingOrAssume(ctx context.Context, conversationID string) bool {
	pending, err := d.store.HasPending(ctx, conversationID)
	if err != nil {
		slog.Warn("debounce: pending check failed, assuming pending",
			"conversation", conversationID, "error", err)
		return true
	}
	return pending
}
