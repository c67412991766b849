package channels

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedKeys caps the number of tracked rate-limit keys to prevent
// memory exhaustion from callers rotating sender ids.
const maxTrackedKeys = 4096

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// WebhookRateLimiter applies a per-key token bucket of rpm requests per
// minute with a burst of rpm. Safe for concurrent use.
type WebhookRateLimiter struct {
	mu      sync.Mutex
	rpm     int
	entries map[string]*limiterEntry
	now     func() time.Time
}

// NewWebhookRateLimiter creates a bounded webhook rate limiter.
// rpm <= 0 disables limiting.
func NewWebhookRateLimiter(rpm int) *WebhookRateLimiter {
	return &WebhookRateLimiter{
		rpm:     rpm,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

// Allow returns true if the key is within rate limits.
// Automatically prunes idle entries and enforces a hard cap on tracked keys.
func (r *WebhookRateLimiter) Allow(key string) bool {
	if r == nil || r.rpm <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.lastSeen) >= time.Minute {
				delete(r.entries, k)
			}
		}
		// Hard eviction if still at cap (FIFO-ish via map iteration)
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(rate.Limit(float64(r.rpm)/60), r.rpm)}
		r.entries[key] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}
