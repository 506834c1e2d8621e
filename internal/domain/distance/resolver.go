package distance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/pitchside/internal/domain/geo"
	"github.com/okian/pitchside/internal/domain/model"
	"github.com/okian/pitchside/pkg/logger"
	"github.com/okian/pitchside/pkg/metrics"
)

// Fallback reasons recorded in metrics.
const (
	reasonConfiguration = "configuration"
	reasonTransient     = "transient"
)

// Resolver resolves a single origin/destination pair.
// It performs no implicit retry; callers wrap it with a RetryPolicy.
type Resolver struct {
	opts     options
	warnOnce sync.Once
}

// NewResolver creates a new single-pair resolver.
func NewResolver(opts ...Option) *Resolver {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Resolver{opts: o}
}

// Configured reports whether a matrix service is available.
func (r *Resolver) Configured() bool {
	return r.opts.service != nil
}

// Resolve returns the distance between origin and destination. Both are either
// "lat,lng" pairs or opaque place strings understood by the matrix service.
func (r *Resolver) Resolve(ctx context.Context, origin, destination string, mode Mode) (model.DistanceEstimate, error) {
	const op = "distance.Resolve"
	if mode == "" {
		mode = ModeDriving
	}

	res := r.remote(ctx, origin, destination, mode)
	if res.estimate != nil {
		metrics.RecordResolution(string(model.SourceRemote))
		return *res.estimate, nil
	}

	from, errFrom := geo.ParseLatLng(origin)
	to, errTo := geo.ParseLatLng(destination)
	if errFrom != nil || errTo != nil {
		return model.DistanceEstimate{}, WrapKind(op, ErrUnresolvable, errors.Join(res.err, errFrom, errTo))
	}

	reason := reasonTransient
	if errors.Is(res.err, ErrConfiguration) {
		reason = reasonConfiguration
	}
	metrics.RecordFallback(reason)
	r.opts.logger.Debug(ctx, "using geodesic estimate",
		logger.String("origin", origin),
		logger.String("destination", destination),
		logger.String("reason", reason),
		logger.Error(res.err),
	)

	est := EstimateBetween(from, to)
	est.Origin, est.Destination = origin, destination
	metrics.RecordResolution(string(model.SourceEstimated))
	return est, nil
}

type remoteResult struct {
	estimate *model.DistanceEstimate
	err      error
}

func (r *Resolver) remote(ctx context.Context, origin, destination string, mode Mode) remoteResult {
	const op = "distance.Resolve"
	if r.opts.service == nil {
		r.warnOnce.Do(func() {
			r.opts.logger.Warn(ctx, "matrix service credential not configured, using geodesic estimates")
		})
		metrics.RecordConfigurationError()
		return remoteResult{err: NewKind(op, ErrConfiguration)}
	}

	resp, err := callMatrix(ctx, r.opts, MatrixRequest{
		Origins:      []string{origin},
		Destinations: []string{destination},
		Mode:         mode,
	})
	if err != nil {
		return remoteResult{err: WrapKind(op, ErrTransient, err)}
	}
	if len(resp.Rows) != 1 || len(resp.Rows[0].Elements) != 1 {
		return remoteResult{err: WrapKind(op, ErrTransient, fmt.Errorf("unexpected matrix shape: %d rows", len(resp.Rows)))}
	}
	el := resp.Rows[0].Elements[0]
	if !el.ok() {
		return remoteResult{err: WrapKind(op, ErrTransient, fmt.Errorf("element status %q", el.Status))}
	}
	est := remoteEstimate(origin, destination, el)
	return remoteResult{estimate: &est}
}

// callMatrix performs one bounded matrix call and checks the top-level status.
func callMatrix(ctx context.Context, o options, req MatrixRequest) (MatrixResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	resp, err := o.service.Matrix(callCtx, req)
	metrics.RecordResolveLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	if err != nil {
		return MatrixResponse{}, err
	}
	if resp.Status != StatusOK {
		if resp.ErrorMessage != "" {
			return MatrixResponse{}, fmt.Errorf("matrix status %q: %s", resp.Status, resp.ErrorMessage)
		}
		return MatrixResponse{}, fmt.Errorf("matrix status %q", resp.Status)
	}
	return resp, nil
}

func remoteEstimate(origin, destination string, el MatrixElement) model.DistanceEstimate {
	return model.DistanceEstimate{
		Origin:            origin,
		Destination:       destination,
		DistanceMeters:    el.Distance.Value,
		DurationSeconds:   el.Duration.Value,
		Source:            model.SourceRemote,
		FormattedDistance: el.Distance.Text,
		FormattedDuration: el.Duration.Text,
	}
}

// EstimateBetween computes the geodesic fallback estimate between two coordinates.
func EstimateBetween(from, to geo.Coordinate) model.DistanceEstimate {
	meters := geo.DistanceKm(from, to) * metersPerKm
	seconds := meters / FallbackSpeedMps
	return model.DistanceEstimate{
		Origin:            from.String(),
		Destination:       to.String(),
		DistanceMeters:    meters,
		DurationSeconds:   seconds,
		Source:            model.SourceEstimated,
		FormattedDistance: FormatDistance(meters),
		FormattedDuration: FormatDuration(seconds),
	}
}
