package dedupe

// Option applies a configuration option to InMemory.
type Option func(*InMemory)

// WithMaxSize sets the maximum number of ids to keep in memory.
// If maxSize > 0: bounded mode, oldest id evicted first.
// If maxSize <= 0: unbounded mode (no eviction, no size limit).
func WithMaxSize(maxSize int) Option {
	return func(d *InMemory) {
		d.maxSize = maxSize
	}
}
