// Package dedupe provides a fast in-memory pre-check for recently seen
// event ids. It is advisory only: the authoritative duplicate check is
// the event-document existence test inside the merge transaction, so a
// cache miss or eviction never affects correctness - a hit just saves a
// store round trip.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Cache records recently seen event IDs.
type Cache interface {
	// Seen reports whether id has been recorded. Read-only: an id enters
	// the cache through Record, never through a lookup.
	Seen(ctx context.Context, id string) bool

	// Record marks id as seen. Callers record an id only once its merge
	// has committed, so a Seen hit is always a confirmed duplicate.
	Record(ctx context.Context, id string)

	Size() int64
}

// recentCache implements Cache with a map plus FIFO eviction ring.
// maxSize <= 0 means unbounded.
type recentCache struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string // insertion order, oldest first
	maxSize int
	size    atomic.Int64
}

// NewRecentCache creates a new cache with configuration options.
func NewRecentCache(opts ...Option) Cache {
	c := &recentCache{
		maxSize: 50000, // default max size
	}

	for _, opt := range opts {
		opt(c)
	}

	c.seen = make(map[string]struct{})
	return c
}

func (c *recentCache) Seen(ctx context.Context, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.seen[id]
	return exists
}

func (c *recentCache) Record(ctx context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.seen[id]; exists {
		return
	}

	if c.maxSize > 0 {
		for len(c.seen) >= c.maxSize {
			c.evictOldest()
		}
		c.order = append(c.order, id)
	}

	c.seen[id] = struct{}{}
	c.size.Store(int64(len(c.seen)))
}

// evictOldest drops the oldest id. Must be called with c.mu held and
// only in bounded mode.
func (c *recentCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.seen, oldest)
}

// Size returns the current number of entries in the cache.
func (c *recentCache) Size() int64 {
	return c.size.Load()
}
