package pubsub

import (
	"sync"
	"time"
)

// seenCache remembers message ids for ttl. Expired ids are swept at most
// once per ttl, during an insert.
type seenCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	entries   map[string]time.Time
	lastSweep time.Time
}

func newSeenCache(ttl time.Duration) *seenCache {
	return &seenCache{
		ttl:       ttl,
		entries:   make(map[string]time.Time),
		lastSweep: time.Now(),
	}
}

func (c *seenCache) add(id string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastSweep) >= c.ttl {
		for k, expires := range c.entries {
			if !now.Before(expires) {
				delete(c.entries, k)
			}
		}
		c.lastSweep = now
	}

	expires, ok := c.entries[id]
	if ok && now.Before(expires) {
		return true
	}
	c.entries[id] = now.Add(c.ttl)
	return false
}

func (c *seenCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
