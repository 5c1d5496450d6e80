// Package dedupe suppresses reprocessing of duplicate chat events: once by
// exact event id, once by message content hash within a time window. Neither
// cache survives a restart; duplicates across restarts are an accepted
// limitation of the transport.
package dedupe

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"
)

// EventCache is a capacity-bounded set over event fingerprints. Once the set
// grows past capacity, only the most recently inserted half is kept; eviction
// precision is not load-bearing.
type EventCache struct {
	mu       sync.Mutex
	capacity int
	keys     map[string]struct{}
	order    []string
}

func NewEventCache(capacity int) *EventCache {
	if capacity < 2 {
		capacity = 2
	}
	return &EventCache{
		capacity: capacity,
		keys:     make(map[string]struct{}, capacity),
	}
}

// Seen reports whether the fingerprint was already recorded, inserting it on
// first sight.
func (c *EventCache) Seen(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.keys[fingerprint]; ok {
		return true
	}
	c.keys[fingerprint] = struct{}{}
	c.order = append(c.order, fingerprint)

	if len(c.order) > c.capacity {
		keep := c.capacity / 2
		for _, old := range c.order[:len(c.order)-keep] {
			delete(c.keys, old)
		}
		c.order = append(c.order[:0:0], c.order[len(c.order)-keep:]...)
	}
	return false
}

// ContentCache collapses messages with identical normalized text seen within
// the TTL window. Entries older than twice the TTL are purged on every check
// to bound memory.
type ContentCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

func NewContentCache(ttl time.Duration) *ContentCache {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &ContentCache{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Seen reports whether the same text was recorded within the TTL window,
// refreshing the entry otherwise.
func (c *ContentCache) Seen(text string) bool {
	fingerprint := Fingerprint(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, insertedAt := range c.entries {
		if now.Sub(insertedAt) > 2*c.ttl {
			delete(c.entries, key)
		}
	}

	if insertedAt, ok := c.entries[fingerprint]; ok && now.Sub(insertedAt) < c.ttl {
		return true
	}
	c.entries[fingerprint] = now
	return false
}

// Fingerprint hashes normalized message text into a content key.
func Fingerprint(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
