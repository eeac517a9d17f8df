package repository

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithCapacity bounds the store to the best n evaluations. When full, a new
// evaluation replaces the lowest-ranked one if it ranks above it. Zero keeps everything.
func WithCapacity(n int) Option {
	return func(s *TreapStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}
