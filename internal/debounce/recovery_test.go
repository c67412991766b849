package debounce

import (
	"context"
	"testing"
	"time"

	"github.com/hacastro22/watibot3-sub002/internal/store"
)

func seed(t *testing.T, st *memStore, conv, text string, at time.Time) {
	t.Helper()
	if _, err := st.Append(context.Background(), store.BufferedMessage{ConversationID: conv, Content: text, ArrivedAt: at}); err != nil {
		t.Fatal(err)
	}
}

func TestRecoverUsesOldestArrival(t *testing.T) {
	clk := newFakeClock(t0)
	st := newMemStore()
	seed(t, st, "overdue", "a1", t0.Add(-50*time.Second))
	seed(t, st, "overdue", "a2", t0.Add(-40*time.Second))
	seed(t, st, "recent", "b1", t0.Add(-10*time.Second))

	rec := &recorder{}
	d := newTestDebouncer(st, rec, clk)
	n, err := d.Recover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("Recover started %d timers, want 2", n)
	}

	h, _ := d.Registry().Get("recent")
	if want := t0.Add(25 * time.Second); !h.DueAt.Equal(want) {
		t.Errorf("recent due at %v, want %v", h.DueAt, want)
	}

	clk.Advance(0)
	batches := rec.all()
	if len(batches) != 1 || batches[0].ConversationID != "overdue" {
		t.Fatalf("batches after immediate fire = %+v", batches)
	}
	if want := t0.Add(-50 * time.Second); !batches[0].OriginalStart.Equal(want) {
		t.Errorf("OriginalStart = %v, want %v", batches[0].OriginalStart, want)
	}
	if len(batches[0].Messages) != 2 {
		t.Errorf("overdue batch size = %d, want 2", len(batches[0].Messages))
	}

	clk.Advance(25 * time.Second)
	if got := len(rec.all()); got != 2 {
		t.Fatalf("batches = %d, want 2", got)
	}
	if d.Registry().Len() != 0 {
		t.Error("registry not empty after recovered cycles")
	}
}

func TestRecoverSkipsLiveConversations(t *testing.T) {
	clk := newFakeClock(t0)
	st := newMemStore()
	d := newTestDebouncer(st, &recorder{}, clk)

	ingest(t, d, "live", "x")
	before, _ := d.Registry().Get("live")

	n, err := d.Recover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("Recover started %d timers for a live conversation", n)
	}
	if after, _ := d.Registry().Get("live"); after != before {
		t.Error("Recover replaced a live handle")
	}
	if clk.armed() != 1 {
		t.Errorf("armed timers = %d, want 1", clk.armed())
	}
	clk.Advance(35 * time.Second)
}

func TestCloseStopsScheduledTimers(t *testing.T) {
	clk := newFakeClock(t0)
	st := newMemStore()
	rec := &recorder{}
	d := newTestDebouncer(st, rec, clk)

	ingest(t, d, "a", "x")
	ingest(t, d, "b", "y")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if d.Registry().Len() != 0 || clk.armed() != 0 {
		t.Fatalf("after Close registry=%d armed=%d", d.Registry().Len(), clk.armed())
	}

	// Still accepted and stored, just not scheduled.
	ingest(t, d, "c", "z")
	if d.Registry().Len() != 0 {
		t.Error("closed debouncer scheduled a timer")
	}
	clk.Advance(time.Minute)
	if len(rec.all()) != 0 {
		t.Error("processor invoked after Close")
	}

	next := newTestDebouncer(st, rec, clk)
	n, err := next.Recover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("restart recovered %d conversations, want 3", n)
	}
	clk.Advance(0)
	if got := len(rec.all()); got != 3 {
		t.Errorf("batches after restart = %d, want 3", got)
	}
	if err := d.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestCloseWaitsForRunningCycle(t *testing.T) {
	st := newMemStore()
	started := make(chan struct{})
	release := make(chan struct{})
	proc := ProcessorFunc(func(context.Context, Batch) (Response, error) {
		close(started)
		<-release
		return Response{}, nil
	})
	d := New(st, proc, Options{QuietPeriod: time.Millisecond})
	if err := d.Ingest(context.Background(), store.BufferedMessage{ConversationID: "c", Content: "x"}); err != nil {
		t.Fatal(err)
	}
	<-started

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Close(short); err == nil {
		t.Fatal("Close returned before the running cycle finished")
	}

	close(release)
	ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	// Close already marked the debouncer closed; wait on the cycle directly.
	for d.Registry().Len() > 0 && ctx.Err() == nil {
		time.Sleep(time.Millisecond)
	}
	if d.Registry().Len() != 0 {
		t.Fatal("cycle did not complete")
	}
	d.inflight.Wait()
}

func TestSetQuietPeriod(t *testing.T) {
	clk := newFakeClock(t0)
	rec := &recorder{}
	d := newTestDebouncer(newMemStore(), rec, clk)

	d.SetQuietPeriod(0)
	d.SetQuietPeriod(-time.Second)
	if d.QuietPeriod() != 35*time.Second {
		t.Fatalf("non-positive value changed W to %v", d.QuietPeriod())
	}

	d.SetQuietPeriod(10 * time.Second)
	ingest(t, d, "c", "x")
	h, _ := d.Registry().Get("c")
	if want := t0.Add(10 * time.Second); !h.DueAt.Equal(want) {
		t.Errorf("DueAt = %v, want %v", h.DueAt, want)
	}
	clk.Advance(10 * time.Second)
	if len(rec.all()) != 1 {
		t.Error("timer did not fire after the new quiet period")
	}
}

func TestValidateSweepSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"0 3 * * *", false},
		{"@hourly", false},
		{"", true},
		{"every five minutes", true},
	}
	for _, tt := range tests {
		err := ValidateSweepSchedule(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSweepSchedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestRunSweepStopsOnCancel(t *testing.T) {
	d := newTestDebouncer(newMemStore(), &recorder{}, newFakeClock(t0))
	if err := d.RunSweep(context.Background(), "nope"); err == nil {
		t.Error("RunSweep accepted an invalid schedule")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.RunSweep(ctx, "*/5 * * * *") }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunSweep = %v, want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunSweep did not stop")
	}
}
