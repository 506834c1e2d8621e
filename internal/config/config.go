// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Durations are configured as integer milliseconds or seconds and exposed
//   through accessor methods.
// - Invalid values are reported as errors wrapping ErrInvalidConfig.
package config

import (
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// MatrixAPIKey authenticates against the distance matrix service. Empty
	// is allowed and routes every lookup to the geodesic estimate.
	MatrixAPIKey     string `koanf:"matrix_api_key"`
	MatrixBaseURL    string `koanf:"matrix_base_url" validate:"omitempty,url"`
	MatrixTimeoutMS  int    `koanf:"matrix_timeout_ms" validate:"gt=0"`
	RetryMaxAttempts int    `koanf:"retry_max_attempts" validate:"gte=1,lte=2"`
	RetryBackoffMS   int    `koanf:"retry_backoff_ms" validate:"gte=0"`

	// TravelMode is the matrix mode: driving, walking, bicycling, transit.
	TravelMode string `koanf:"travel_mode" validate:"oneof=driving walking bicycling transit"`

	// CacheTTLSeconds and MovementThresholdKm drive proximity cache invalidation.
	CacheTTLSeconds     int     `koanf:"cache_ttl_seconds" validate:"gt=0"`
	MovementThresholdKm float64 `koanf:"movement_threshold_km" validate:"gt=0"`

	// FallbackConcurrency bounds per-event resolution after a bulk failure.
	FallbackConcurrency int `koanf:"fallback_concurrency" validate:"gte=1"`

	// ShardCount is the number of single-writer refresh queues.
	ShardCount int `koanf:"shard_count" validate:"gte=1"`

	// QueueSize bounds each shard queue.
	QueueSize int `koanf:"queue_size" validate:"gte=1"`

	// SessionIdleTimeoutSeconds reaps sessions without activity; 0 disables reaping.
	SessionIdleTimeoutSeconds int `koanf:"session_idle_timeout_seconds" validate:"gte=0"`

	// DistanceTieBreak enables the distance pass among fully tied events.
	DistanceTieBreak bool `koanf:"distance_tie_break"`

	// Redis backs session snapshots; empty disables them.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db" validate:"gte=0"`

	// PostgresDSN selects the PostgreSQL event source; empty uses the in-memory one.
	PostgresDSN string `koanf:"postgres_dsn"`

	// AMQP location feed; empty URL disables the consumer.
	AMQPURL      string `koanf:"amqp_url"`
	AMQPQueue    string `koanf:"amqp_queue" validate:"required_with=AMQPURL"`
	AMQPPrefetch int    `koanf:"amqp_prefetch" validate:"gte=0"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                  "info",
		LogFormat:                 "text",
		Addr:                      ":9080",
		MatrixBaseURL:             "https://maps.googleapis.com",
		MatrixTimeoutMS:           10_000,
		RetryMaxAttempts:          2,
		RetryBackoffMS:            500,
		TravelMode:                "driving",
		CacheTTLSeconds:           300,
		MovementThresholdKm:       0.1,
		FallbackConcurrency:       8,
		ShardCount:                4,
		QueueSize:                 1024,
		SessionIdleTimeoutSeconds: 1800,
		AMQPQueue:                 "pitchside.locations",
		AMQPPrefetch:              16,
	}
}

// MatrixTimeout is the per-call matrix timeout.
func (c *Config) MatrixTimeout() time.Duration {
	return time.Duration(c.MatrixTimeoutMS) * time.Millisecond
}

// RetryBackoff is the fixed delay between retry attempts.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// CacheTTL is the proximity cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// SessionIdleTimeout is zero when reaping is disabled.
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleTimeoutSeconds) * time.Second
}
