package debounce

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hacastro22/watibot3-sub002/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// fakeClock fires timers only from Advance, in due order, on the caller's goroutine.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	nextID int
}

type fakeTimer struct {
	c       *fakeClock
	id      int
	at      time.Time
	f       func()
	done    bool
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.stopped = true
	return true
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	t := &fakeTimer{c: c, id: c.nextID, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Add moves time forward without firing anything.
func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Advance moves time forward by d, firing due timers including ones
// scheduled by timers fired during this call.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.done || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.id < next.id) {
				next = t
			}
		}
		if next == nil {
			break
		}
		next.done = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
		c.mu.Lock()
	}
	if c.now.Before(target) {
		c.now = target
	}
	c.mu.Unlock()
}

func (c *fakeClock) armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

var errInjected = errors.New("injected failure")

// memStore is an in-memory BufferStore with fault injection.
type memStore struct {
	mu              sync.Mutex
	seq             int64
	rows            map[string][]store.BufferedMessage
	failAppend      bool
	drainFailures   int
	pendingFailures int
	drainCalls      int
	afterHasPending func(conversationID string, pending bool)
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string][]store.BufferedMessage)}
}

func (s *memStore) Append(_ context.Context, msg store.BufferedMessage) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend {
		return 0, errors.Join(store.ErrStoreWrite, errInjected)
	}
	s.seq++
	msg.Seq = s.seq
	s.rows[msg.ConversationID] = append(s.rows[msg.ConversationID], msg)
	return msg.Seq, nil
}

func (s *memStore) Drain(_ context.Context, conversationID string) ([]store.BufferedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainCalls++
	if s.drainFailures > 0 {
		s.drainFailures--
		return nil, errors.Join(store.ErrStoreRead, errInjected)
	}
	out := append([]store.BufferedMessage{}, s.rows[conversationID]...)
	delete(s.rows, conversationID)
	return out, nil
}

func (s *memStore) HasPending(_ context.Context, conversationID string) (bool, error) {
	s.mu.Lock()
	if s.pendingFailures > 0 {
		s.pendingFailures--
		s.mu.Unlock()
		return false, errors.Join(store.ErrStoreRead, errInjected)
	}
	pending := len(s.rows[conversationID]) > 0
	hook := s.afterHasPending
	s.mu.Unlock()
	if hook != nil {
		hook(conversationID, pending)
	}
	return pending, nil
}

func (s *memStore) ListPending(_ context.Context) ([]store.PendingConversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.PendingConversation
	for conv, rows := range s.rows {
		if len(rows) == 0 {
			continue
		}
		oldest := rows[0].ArrivedAt
		for _, r := range rows[1:] {
			if r.ArrivedAt.Before(oldest) {
				oldest = r.ArrivedAt
			}
		}
		out = append(out, store.PendingConversation{ConversationID: conv, OldestArrival: oldest, Count: len(rows)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OldestArrival.Before(out[j].OldestArrival) })
	return out, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) pendingCount(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[conversationID])
}

func (s *memStore) conversations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for conv, rows := range s.rows {
		if len(rows) > 0 {
			out = append(out, conv)
		}
	}
	return out
}

// recorder is a Processor that records every batch.
type recorder struct {
	mu        sync.Mutex
	batches   []Batch
	onProcess func(Batch)
	err       error
	panicWith any
}

func (r *recorder) Process(_ context.Context, b Batch) (Response, error) {
	r.mu.Lock()
	r.batches = append(r.batches, b)
	hook, err, p := r.onProcess, r.err, r.panicWith
	r.mu.Unlock()
	if hook != nil {
		hook(b)
	}
	if p != nil {
		panic(p)
	}
	if err != nil {
		return Response{}, err
	}
	return Response{Reply: "ok"}, nil
}

func (r *recorder) all() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Batch(nil), r.batches...)
}

func newTestDebouncer(st store.BufferStore, proc Processor, clk Clock) *Debouncer {
	return New(st, proc, Options{
		QuietPeriod:    35 * time.Second,
		LookbackMargin: 2 * time.Second,
		DrainRetry:     RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		Clock:          clk,
	})
}

func ingest(t *testing.T, d *Debouncer, conv, text string) {
	t.Helper()
	if err := d.Ingest(context.Background(), store.BufferedMessage{ConversationID: conv, Content: text}); err != nil {
		t.Fatalf("Ingest(%s, %q): %v", conv, text, err)
	}
}
