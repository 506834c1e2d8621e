// Package proximity memoizes event distances for one user session, keyed on location.
package proximity

import (
	"time"

	"github.com/okian/pitchside/internal/domain/distance"
	"github.com/okian/pitchside/pkg/logger"
)

// Default cache configuration constants.
const (
	DefaultTTL                 = 5 * time.Minute
	DefaultMovementThresholdKm = 0.1
	defaultFallbackConcurrency = 8
)

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithTTL sets how long an entry stays valid.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMovementThreshold sets the displacement in kilometers that forces a refresh.
func WithMovementThreshold(km float64) Option {
	return func(c *Cache) {
		if km > 0 {
			c.thresholdKm = km
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithBulkResolver sets the resolver used for the single batch call.
func WithBulkResolver(b BulkResolver) Option {
	return func(c *Cache) {
		c.bulk = b
	}
}

// WithResolver sets the per-event resolver used when bulk resolution is absent or fails.
func WithResolver(r PairResolver) Option {
	return func(c *Cache) {
		c.single = r
	}
}

// WithPerEventFallback enables or disables per-event resolution after a bulk failure.
// When disabled a bulk failure aborts the refresh and keeps the previous entry.
func WithPerEventFallback(enabled bool) Option {
	return func(c *Cache) {
		c.perEventFallback = enabled
	}
}

// WithRetryPolicy sets the retry policy applied around resolver calls.
func WithRetryPolicy(p distance.RetryPolicy) Option {
	return func(c *Cache) {
		c.retry = p
	}
}

// WithMode sets the travel mode.
func WithMode(m distance.Mode) Option {
	return func(c *Cache) {
		if m != "" {
			c.mode = m
		}
	}
}

// WithFallbackConcurrency bounds concurrent per-event resolutions.
func WithFallbackConcurrency(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithSnapshotStore persists committed entries under key.
func WithSnapshotStore(s SnapshotStore, key string) Option {
	return func(c *Cache) {
		if s != nil && key != "" {
			c.store = s
			c.storeKey = key
		}
	}
}

// WithLogger sets a custom logger for the cache.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}
