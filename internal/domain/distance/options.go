// Package distance resolves travel distances through a remote matrix service
// with a geodesic fallback.
package distance

import (
	"time"

	"github.com/okian/pitchside/pkg/logger"
)

// DefaultTimeout bounds a single matrix call.
const DefaultTimeout = 10 * time.Second

type options struct {
	service MatrixService
	timeout time.Duration
	logger  logger.Logger
}

func defaultOptions() options {
	return options{
		timeout: DefaultTimeout,
		logger:  logger.Default().Named("distance"),
	}
}

// Option applies a configuration option to Resolver and BulkResolver.
type Option func(*options)

// WithMatrixService sets the remote matrix service. A nil service means no credential is configured.
func WithMatrixService(s MatrixService) Option {
	return func(o *options) {
		o.service = s
	}
}

// WithTimeout sets the per-call timeout for the matrix service.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
