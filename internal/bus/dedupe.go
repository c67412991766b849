package bus

import (
	"container/list"
	"sync"
	"time"
)

// DedupeCache remembers recently seen keys so provider webhook retries and
// double deliveries are ingested once. Entries expire after ttl; when full,
// the oldest entry is evicted.
type DedupeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	order   *list.List // of *dedupeEntry, oldest first
	entries map[string]*list.Element
	now     func() time.Time
}

type dedupeEntry struct {
	key  string
	seen time.Time
}

// NewDedupeCache creates a cache holding at most max keys for ttl each.
func NewDedupeCache(ttl time.Duration, max int) *DedupeCache {
	if max <= 0 {
		max = 1
	}
	return &DedupeCache{
		ttl:     ttl,
		max:     max,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		now:     time.Now,
	}
}

// IsDuplicate reports whether key was seen within the TTL, and records it
// if not. Empty keys are never duplicates.
func (c *DedupeCache) IsDuplicate(key string) bool {
	if key == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.expire(now)
	if _, ok := c.entries[key]; ok {
		return true
	}
	c.entries[key] = c.order.PushBack(&dedupeEntry{key: key, seen: now})
	for c.order.Len() > c.max {
		c.remove(c.order.Front())
	}
	return false
}

// Forget drops key so a later delivery is accepted again. Used when a
// message could not be stored and the provider is expected to retry.
func (c *DedupeCache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
}

// Len returns the number of live keys.
func (c *DedupeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expire(c.now())
	return c.order.Len()
}

func (c *DedupeCache) expire(now time.Time) {
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		if now.Sub(el.Value.(*dedupeEntry).seen) < c.ttl {
			return
		}
		c.remove(el)
	}
}

func (c *DedupeCache) remove(el *list.Element) {
	delete(c.entries, el.Value.(*dedupeEntry).key)
	c.order.Remove(el)
}
