// Package location converts raw device readings into location samples.
package location

import (
	"context"
	"time"

	"github.com/okian/pitchside/internal/domain/geo"
	"github.com/okian/pitchside/pkg/logger"
)

// Reading is a raw location report together with the device permission state.
type Reading struct {
	Latitude          float64
	Longitude         float64
	CapturedAt        time.Time
	Address           string
	PermissionGranted bool
	ServicesEnabled   bool
}

// Option applies a configuration option to the Acquirer.
type Option func(*Acquirer)

// WithClock sets the time source used for readings without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(a *Acquirer) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Acquirer) {
		if l != nil {
			a.logger = l
		}
	}
}

// Acquirer turns readings into samples. Permission and service state are
// consumed here, never stored.
type Acquirer struct {
	now    func() time.Time
	logger logger.Logger
}

// NewAcquirer creates an Acquirer.
func NewAcquirer(opts ...Option) *Acquirer {
	a := &Acquirer{
		now:    time.Now,
		logger: logger.Default().Named("location"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Acquire validates r and returns a sample. A zero CapturedAt is stamped with the clock.
func (a *Acquirer) Acquire(ctx context.Context, r Reading) (geo.LocationSample, error) {
	if !r.PermissionGranted {
		a.logger.Debug(ctx, "location reading rejected", logger.String("reason", "permission"))
		return geo.LocationSample{}, ErrPermissionDenied
	}
	if !r.ServicesEnabled {
		a.logger.Debug(ctx, "location reading rejected", logger.String("reason", "services"))
		return geo.LocationSample{}, ErrServiceDisabled
	}
	at := r.CapturedAt
	if at.IsZero() {
		at = a.now()
	}
	return geo.NewLocationSample(r.Latitude, r.Longitude, at, r.Address)
}
