package debounce

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/hacastro22/watibot3-sub002/internal/store"
)

// Recover starts timers for conversations that have buffered rows but no
// live handle, e.g. after a restart. The recovered chain's OriginalStart is
// the oldest buffered arrival, so a conversation whose quiet period already
// elapsed fires immediately. It returns the number of timers started.
func (d *Debouncer) Recover(ctx context.Context) (int, error) {
	pending, err := d.store.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending conversations: %w", err)
	}

	started := 0
	for _, p := range pending {
		if d.resume(p) {
			started++
			slog.Info("debounce: recovered conversation",
				"conversation", p.ConversationID,
				"pending", p.Count,
				"oldest_arrival", p.OldestArrival,
			)
		}
	}
	return started, nil
}

func (d *Debouncer) resume(p store.PendingConversation) bool {
	now := d.clock.Now()
	origin := p.OldestArrival
	if origin.IsZero() || origin.After(now) {
		origin = now
	}
	delay := d.QuietPeriod() - now.Sub(origin)
	if delay < 0 {
		delay = 0
	}

	h := newHandle(p.ConversationID, origin, 1, now.Add(delay))
	if !d.registry.TryRegister(h) {
		return false
	}
	if !d.scheduleOrRelease(h, delay) {
		return false
	}
	d.metrics.TimerStarted()
	return true
}

// ValidateSweepSchedule reports whether expr is a usable cron expression.
func ValidateSweepSchedule(expr string) error {
	if !gronx.New().IsValid(expr) {
		return fmt.Errorf("invalid sweep schedule %q", expr)
	}
	return nil
}

// RunSweep calls Recover at every tick of the cron expression until ctx is
// done. It never duplicates a live timer.
func (d *Debouncer) RunSweep(ctx context.Context, expr string) error {
	if err := ValidateSweepSchedule(expr); err != nil {
		return err
	}
	slog.Info("debounce: orphan sweep enabled", "schedule", expr)

	for {
		next, err := gronx.NextTickAfter(expr, time.Now(), false)
		if err != nil {
			return fmt.Errorf("next sweep tick: %w", err)
		}
		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}

		n, err := d.Recover(ctx)
		if err != nil {
			slog.Warn("debounce: orphan sweep failed", "error", err)
			continue
		}
		if n > 0 {
			slog.Warn("debounce: orphan sweep started timers", "count", n)
		}
	}
}
