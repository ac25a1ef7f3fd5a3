package remotefs

import (
	"strings"
	"sync"
	"time"

	"github.com/panelfs/panelfs/internal/metrics"
)

type cacheEntry struct {
	meta    Metadata
	hits    int
	created time.Time
	timer   *time.Timer
}

// statCache holds Stat results for a short TTL. Every entry owns an expiry
// timer; the age check on access covers a timer that has not fired yet.
type statCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*cacheEntry
	now     func() time.Time
}

func newStatCache(ttl time.Duration) *statCache {
	return &statCache{
		ttl:     ttl,
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
	}
}

// get returns a live entry and bumps its hit counter.
func (c *statCache) get(path string) (Metadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok || c.now().Sub(e.created) >= c.ttl {
		metrics.RecordStatCache(false)
		return Metadata{}, false
	}
	e.hits++
	metrics.RecordStatCache(true)
	return e.meta, true
}

func (c *statCache) put(path string, meta Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[path]; ok {
		old.timer.Stop()
	}
	e := &cacheEntry{meta: meta, created: c.now()}
	e.timer = time.AfterFunc(c.ttl, func() { c.expire(path, e) })
	c.entries[path] = e
}

// expire removes path only if it still holds the entry the timer was made for.
func (c *statCache) expire(path string, e *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[path] == e {
		delete(c.entries, path)
	}
}

// hits returns the hit counter for path, or -1 when not cached.
func (c *statCache) hits(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok {
		return e.hits
	}
	return -1
}

// invalidate drops path and everything below it.
func (c *statCache) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(path, "/") + "/"
	for k, e := range c.entries {
		if k == path || strings.HasPrefix(k, prefix) {
			e.timer.Stop()
			delete(c.entries, k)
		}
	}
}

func (c *statCache) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		e.timer.Stop()
		delete(c.entries, k)
	}
}

func (c *statCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
