package distance

import (
	"context"
	"fmt"

	"github.com/okian/pitchside/internal/domain/geo"
	"github.com/okian/pitchside/internal/domain/model"
	"github.com/okian/pitchside/pkg/logger"
	"github.com/okian/pitchside/pkg/metrics"
)

// BulkEntry is the result for one destination of a bulk call.
// Err is set when the service reported a non-success status for that element.
type BulkEntry struct {
	Estimate model.DistanceEstimate
	Err      error
}

// OK reports whether the entry carries a distance.
func (e BulkEntry) OK() bool { return e.Err == nil }

// BulkResolver resolves one origin against many destinations with a single remote call.
// It never falls back to geodesic estimates: a failed call fails as a whole.
type BulkResolver struct {
	opts options
}

// NewBulkResolver creates a new bulk resolver.
func NewBulkResolver(opts ...Option) *BulkResolver {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &BulkResolver{opts: o}
}

// ResolveBulk returns one entry per destination; entry i corresponds to destinations[i].
func (b *BulkResolver) ResolveBulk(ctx context.Context, origin geo.Coordinate, destinations []geo.Coordinate, mode Mode) ([]BulkEntry, error) {
	const op = "distance.ResolveBulk"
	if len(destinations) == 0 {
		return []BulkEntry{}, nil
	}
	if mode == "" {
		mode = ModeDriving
	}
	if b.opts.service == nil {
		metrics.RecordConfigurationError()
		return nil, WrapKind(op, ErrBulkResolution, NewKind(op, ErrConfiguration))
	}

	dests := make([]string, len(destinations))
	for i, d := range destinations {
		dests[i] = d.String()
	}
	originStr := origin.String()

	resp, err := callMatrix(ctx, b.opts, MatrixRequest{
		Origins:      []string{originStr},
		Destinations: dests,
		Mode:         mode,
	})
	if err == nil && (len(resp.Rows) != 1 || len(resp.Rows[0].Elements) != len(destinations)) {
		err = fmt.Errorf("unexpected matrix shape: %d rows for %d destinations", len(resp.Rows), len(destinations))
	}
	if err != nil {
		metrics.RecordBulkFailure()
		b.opts.logger.Warn(ctx, "bulk distance resolution failed",
			logger.Int("destinations", len(destinations)),
			logger.Error(err),
		)
		return nil, WrapKind(op, ErrBulkResolution, WrapKind(op, ErrTransient, err))
	}

	out := make([]BulkEntry, len(destinations))
	for i, el := range resp.Rows[0].Elements {
		if !el.ok() {
			out[i] = BulkEntry{Err: WrapKind(op, ErrUnresolvable, fmt.Errorf("element %d status %q", i, el.Status))}
			continue
		}
		out[i] = BulkEntry{Estimate: remoteEstimate(originStr, dests[i], el)}
		metrics.RecordResolution(string(model.SourceRemote))
	}
	return out, nil
}
