package inference

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithMaxSize sets the maximum number of keys kept; the oldest insert is
// evicted first. Non-positive values keep the default.
func WithMaxSize(maxSize int) Option {
	return func(c *Cache) {
		if maxSize > 0 {
			c.maxSize = maxSize
		}
	}
}
