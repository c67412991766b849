package debounce

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hacastro22/watibot3-sub002/internal/store"
)

const (
	DefaultQuietPeriod    = 35 * time.Second
	DefaultLookbackMargin = 2 * time.Second
)

// RetryConfig bounds the drain retry loop.
type RetryConfig struct {
	MaxRetries int           // retries after the first attempt; <= 0 selects the default
	BaseDelay  time.Duration // initial backoff
	MaxDelay   time.Duration // backoff ceiling
}

// DefaultRetryConfig returns the drain retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// Options configures a Debouncer. Zero values select defaults.
type Options struct {
	QuietPeriod    time.Duration
	LookbackMargin time.Duration
	DrainRetry     RetryConfig
	Clock          Clock
	Metrics        Metrics
}

// Debouncer is the ingestion gate plus the per-conversation timer machinery.
type Debouncer struct {
	store    store.BufferStore
	proc     Processor
	registry *Registry
	clock    Clock
	metrics  Metrics
	margin   time.Duration
	retry    RetryConfig
	quiet    atomic.Int64 // time.Duration

	// cycles run detached from any caller's cancellation
	baseCtx context.Context

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup // scheduled + running cycles
}

// New creates a Debouncer over st that hands batches to proc.
func New(st store.BufferStore, proc Processor, opts Options) *Debouncer {
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	if opts.LookbackMargin < 0 {
		opts.LookbackMargin = 0
	}
	if opts.DrainRetry.MaxRetries <= 0 {
		opts.DrainRetry.MaxRetries = DefaultRetryConfig().MaxRetries
	}
	if opts.DrainRetry.BaseDelay <= 0 {
		def := DefaultRetryConfig()
		opts.DrainRetry.BaseDelay = def.BaseDelay
		if opts.DrainRetry.MaxDelay <= 0 {
			opts.DrainRetry.MaxDelay = def.MaxDelay
		}
	}
	if opts.DrainRetry.MaxDelay < opts.DrainRetry.BaseDelay {
		opts.DrainRetry.MaxDelay = opts.DrainRetry.BaseDelay
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}

	d := &Debouncer{
		store:    st,
		proc:     proc,
		registry: NewRegistry(),
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		margin:   opts.LookbackMargin,
		retry:    opts.DrainRetry,
		baseCtx:  context.Background(),
	}
	d.quiet.Store(int64(opts.QuietPeriod))
	return d
}

// Registry exposes the live timer registry (read-only use).
func (d *Debouncer) Registry() *Registry { return d.registry }

// QuietPeriod returns the current quiet period W.
func (d *Debouncer) QuietPeriod() time.Duration { return time.Duration(d.quiet.Load()) }

// SetQuietPeriod changes W for timers scheduled from now on.
// Non-positive values are ignored.
func (d *Debouncer) SetQuietPeriod(w time.Duration) {
	if w <= 0 {
		return
	}
	if old := time.Duration(d.quiet.Swap(int64(w))); old != w {
		slog.Info("debounce: quiet period changed", "from", old, "to", w)
	}
}

// Ingest persists msg and starts a timer if its conversation has none.
// It returns as soon as the append (and possibly scheduling) is done.
// A store failure is returned wrapped in store.ErrStoreWrite; in that case
// the message was not received.
func (d *Debouncer) Ingest(ctx context.Context, msg store.BufferedMessage) error {
	if msg.ConversationID == "" {
		return fmt.Errorf("debounce: empty conversation id")
	}
	now := d.clock.Now()
	if msg.ArrivedAt.IsZero() {
		msg.ArrivedAt = now.UTC()
	}

	seq, err := d.store.Append(ctx, msg)
	if err != nil {
		return err
	}
	d.metrics.MessageIngested(msg.Channel)

	w := d.QuietPeriod()
	h := newHandle(msg.ConversationID, now, 1, now.Add(w))
	if !d.registry.TryRegister(h) {
		slog.Debug("debounce: appended to active conversation",
			"conversation", msg.ConversationID, "seq", seq)
		return nil
	}

	if d.scheduleOrRelease(h, w) {
		d.metrics.TimerStarted()
		slog.Debug("debounce: timer started",
			"conversation", msg.ConversationID, "seq", seq, "quiet_period", w)
	}
	return nil
}

// schedule arms h's timer. It fails only after Close.
func (d *Debouncer) schedule(h *Handle, delay time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	if delay < 0 {
		delay = 0
	}
	d.inflight.Add(1)
	h.setState(StateScheduled)
	h.timer = d.clock.AfterFunc(delay, func() { d.fire(h) })
	return true
}

func (d *Debouncer) scheduleOrRelease(h *Handle, delay time.Duration) bool {
	if d.schedule(h, delay) {
		return true
	}
	d.registry.release(h)
	slog.Info("debounce: shutting down, leaving buffered messages for startup recovery",
		"conversation", h.ConversationID)
	return false
}

// Close stops timers that have not fired yet and waits for running cycles.
// Conversations whose timers were stopped keep their buffered rows and are
// picked up by Recover on the next start.
func (d *Debouncer) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	stopped := 0
	for _, h := range d.registry.list() {
		if h.timer != nil && h.State() == StateScheduled && h.timer.Stop() {
			d.registry.release(h)
			d.inflight.Done()
			stopped++
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("debounce: closed", "stopped_timers", stopped)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("debounce: waiting for running cycles: %w", ctx.Err())
	}
}
