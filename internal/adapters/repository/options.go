package repository

import (
	"time"

	"github.com/okian/pitchside/pkg/logger"
)

// Default PostgreSQL pool settings.
const (
	defaultConnectTimeout    = 5 * time.Second
	defaultHealthCheckPeriod = 30 * time.Second
	defaultMaxConnIdleTime   = 5 * time.Minute
	defaultMaxConns          = 8
)

type poolOptions struct {
	connectTimeout time.Duration
	maxConns       int32
	logger         logger.Logger
}

// PoolOption applies a configuration option to NewPool.
type PoolOption func(*poolOptions)

// WithConnectTimeout sets the connection and ping timeout.
func WithConnectTimeout(d time.Duration) PoolOption {
	return func(o *poolOptions) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithMaxConns sets the maximum pool size.
func WithMaxConns(n int32) PoolOption {
	return func(o *poolOptions) {
		if n > 0 {
			o.maxConns = n
		}
	}
}

// WithPoolLogger sets a custom logger.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(o *poolOptions) {
		if l != nil {
			o.logger = l
		}
	}
}
