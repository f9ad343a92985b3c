// Package dedupe provides a fast in-memory pre-check for recently seen
// event ids.
package dedupe

// Option applies a configuration option to the recent cache.
type Option func(*recentCache)

// WithMaxSize sets the maximum number of IDs to keep in memory.
// If maxSize > 0: bounded mode with FIFO eviction.
// If maxSize <= 0: unbounded mode (no eviction, no size limit).
func WithMaxSize(maxSize int) Option {
	return func(c *recentCache) {
		c.maxSize = maxSize
	}
}
