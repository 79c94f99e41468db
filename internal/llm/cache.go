package llm

import (
	"sync"
	"time"
)

type responseEntry struct {
	expiry   time.Time
	response ClassificationResponse
}

// responseCache remembers model answers per prompt for a short TTL, so a batch
// with repeated lines pays for each distinct prompt once. Expired entries are
// dropped lazily on access and on insert.
type responseCache struct {
	entries map[string]responseEntry
	now     func() time.Time
	ttl     time.Duration
	mu      sync.RWMutex
}

func newResponseCache(ttl time.Duration) *responseCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &responseCache{
		entries: make(map[string]responseEntry),
		now:     time.Now,
		ttl:     ttl,
	}
}

func (c *responseCache) get(key string) (ClassificationResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiry) {
		return ClassificationResponse{}, false
	}
	return entry.response, true
}

func (c *responseCache) set(key string, response ClassificationResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiry) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = responseEntry{response: response, expiry: now.Add(c.ttl)}
}

func (c *responseCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
