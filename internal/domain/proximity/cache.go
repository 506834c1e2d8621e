package proximity

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/pitchside/internal/domain/distance"
	"github.com/okian/pitchside/internal/domain/geo"
	"github.com/okian/pitchside/internal/domain/model"
	"github.com/okian/pitchside/pkg/logger"
	"github.com/okian/pitchside/pkg/metrics"
)

// BulkResolver resolves one origin against many destinations in one call.
type BulkResolver interface {
	ResolveBulk(ctx context.Context, origin geo.Coordinate, destinations []geo.Coordinate, mode distance.Mode) ([]distance.BulkEntry, error)
}

// PairResolver resolves a single origin/destination pair.
type PairResolver interface {
	Resolve(ctx context.Context, origin, destination string, mode distance.Mode) (model.DistanceEstimate, error)
}

// SnapshotStore persists entries so a session can resume after a restart.
type SnapshotStore interface {
	Save(ctx context.Context, key string, e Entry, ttl time.Duration) error
	// Load returns false when no snapshot exists.
	Load(ctx context.Context, key string) (Entry, bool, error)
	Delete(ctx context.Context, key string) error
}

// Entry is the full result set computed against one sample location.
// It is replaced wholesale and never patched.
type Entry struct {
	SampleLocation geo.Coordinate
	ComputedAt     time.Time
	Results        map[string]model.DistanceEstimate
	Generation     uint64
}

func (e *Entry) clone() Entry {
	out := *e
	out.Results = maps.Clone(e.Results)
	if out.Results == nil {
		out.Results = map[string]model.DistanceEstimate{}
	}
	return out
}

// Cache wraps the distance resolvers with location-keyed memoization.
// All reads and the wholesale replace of the entry happen under mu.
// Snapshot writes and deletes are serialized by snapMu, taken before mu.
type Cache struct {
	mu         sync.RWMutex
	last       *Entry
	generation uint64
	snapMu     sync.Mutex

	ttl              time.Duration
	thresholdKm      float64
	now              func() time.Time
	bulk             BulkResolver
	single           PairResolver
	perEventFallback bool
	retry            distance.RetryPolicy
	mode             distance.Mode
	concurrency      int
	store            SnapshotStore
	storeKey         string
	logger           logger.Logger
}

// New creates an empty cache. Without resolvers every refresh aborts.
func New(opts ...Option) *Cache {
	c := &Cache{
		ttl:              DefaultTTL,
		thresholdKm:      DefaultMovementThresholdKm,
		now:              time.Now,
		perEventFallback: true,
		retry:            distance.DefaultRetryPolicy(),
		mode:             distance.ModeDriving,
		concurrency:      defaultFallbackConcurrency,
		logger:           logger.Default().Named("proximity"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// ShouldRefresh reports whether sample requires a new refresh.
func (c *Cache) ShouldRefresh(sample geo.LocationSample) bool {
	c.mu.RLock()
	stale := !c.validLocked(sample.Coordinate)
	c.mu.RUnlock()

	if stale {
		metrics.RecordCacheMiss()
	} else {
		metrics.RecordCacheHit()
	}
	return stale
}

func (c *Cache) validLocked(at geo.Coordinate) bool {
	if c.last == nil {
		return false
	}
	if c.now().Sub(c.last.ComputedAt) > c.ttl {
		return false
	}
	return geo.DistanceKm(at, c.last.SampleLocation) <= c.thresholdKm
}

// Lookup returns a copy of the entry only if it is still valid for sample.
func (c *Cache) Lookup(sample geo.LocationSample) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.validLocked(sample.Coordinate) {
		return Entry{}, false
	}
	return c.last.clone(), true
}

// Generation returns the current generation counter.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Supersede marks every in-flight refresh as stale without touching the
// entry, and returns the generation a refresh for a newer sample commits under.
func (c *Cache) Supersede() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	return c.generation
}

// Invalidate clears the entry unconditionally and supersedes any in-flight refresh.
func (c *Cache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.last = nil
	c.generation++
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	if err := c.store.Delete(ctx, c.storeKey); err != nil {
		c.logger.Warn(ctx, "failed to delete snapshot", logger.String("key", c.storeKey), logger.Error(err))
	}
}

// Refresh resolves distances for events against sample and replaces the entry.
// Events whose resolution fails get no estimate. A refresh superseded by a newer
// Refresh, Supersede or Invalidate returns ErrStaleRefresh and leaves the newer
// state alone.
func (c *Cache) Refresh(ctx context.Context, sample geo.LocationSample, events []model.EventCandidate) (Entry, error) {
	return c.RefreshAt(ctx, c.Supersede(), sample, events)
}

// RefreshAt is Refresh for a generation obtained earlier from Supersede. It
// commits only if nothing superseded gen in the meantime.
func (c *Cache) RefreshAt(ctx context.Context, gen uint64, sample geo.LocationSample, events []model.EventCandidate) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRefreshLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	log := c.logger.With(logger.String("refresh_id", uuid.NewString()), logger.Uint64("generation", gen))

	if c.Generation() != gen {
		metrics.RecordRefresh("stale")
		log.Debug(ctx, "sample superseded before refresh started")
		return Entry{}, ErrStaleRefresh
	}

	results, err := c.resolve(ctx, log, sample.Coordinate, events)
	if err != nil {
		metrics.RecordRefresh("aborted")
		log.Warn(ctx, "refresh aborted, keeping previous entry", logger.Error(err))
		return Entry{}, err
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		metrics.RecordRefresh("stale")
		log.Debug(ctx, "discarding stale refresh")
		return Entry{}, ErrStaleRefresh
	}
	entry := &Entry{
		SampleLocation: sample.Coordinate,
		ComputedAt:     c.now(),
		Results:        results,
		Generation:     gen,
	}
	c.last = entry
	snap := entry.clone()
	c.mu.Unlock()

	metrics.RecordRefresh("committed")
	if missing := len(events) - len(results); missing > 0 {
		metrics.RecordMissingDistances(missing)
	}
	log.Debug(ctx, "refresh committed",
		logger.Int("events", len(events)),
		logger.Int("resolved", len(results)),
	)

	c.persist(ctx, log, snap)
	return snap, nil
}

// persist writes e to the snapshot store unless it is no longer the live
// entry. An Invalidate or a newer commit always lands after, never under, it.
func (c *Cache) persist(ctx context.Context, log logger.Logger, e Entry) {
	if c.store == nil {
		return
	}
	c.snapMu.Lock()
	defer c.snapMu.Unlock()

	c.mu.RLock()
	live := c.last != nil && c.last.Generation == e.Generation
	c.mu.RUnlock()
	if !live {
		log.Debug(ctx, "entry replaced before snapshot, skipping save")
		return
	}
	if err := c.store.Save(ctx, c.storeKey, e, c.ttl); err != nil {
		log.Warn(ctx, "failed to save snapshot", logger.Error(err))
	}
}

func (c *Cache) resolve(ctx context.Context, log logger.Logger, origin geo.Coordinate, events []model.EventCandidate) (map[string]model.DistanceEstimate, error) {
	results := make(map[string]model.DistanceEstimate, len(events))
	if len(events) == 0 {
		return results, nil
	}

	if c.bulk != nil {
		dests := make([]geo.Coordinate, len(events))
		for i, ev := range events {
			dests[i] = ev.Coordinate
		}
		entries, err := distance.Retry(ctx, c.retry, func(ctx context.Context) ([]distance.BulkEntry, error) {
			return c.bulk.ResolveBulk(ctx, origin, dests, c.mode)
		})
		if err == nil {
			for i, e := range entries {
				if e.OK() {
					results[events[i].ID] = e.Estimate
				}
			}
			return results, nil
		}
		if c.single == nil || !c.perEventFallback {
			return nil, fmt.Errorf("%w: %w", ErrRefreshAborted, err)
		}
		log.Info(ctx, "bulk resolution failed, resolving per event", logger.Error(err))
	}

	if c.single == nil {
		return nil, fmt.Errorf("%w: no resolver configured", ErrRefreshAborted)
	}
	return c.resolveEach(ctx, log, origin, events)
}

func (c *Cache) resolveEach(ctx context.Context, log logger.Logger, origin geo.Coordinate, events []model.EventCandidate) (map[string]model.DistanceEstimate, error) {
	out := make([]*model.DistanceEstimate, len(events))
	originStr := origin.String()

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, ev := range events {
		g.Go(func() error {
			est, err := distance.Retry(ctx, c.retry, func(ctx context.Context) (model.DistanceEstimate, error) {
				return c.single.Resolve(ctx, originStr, ev.Coordinate.String(), c.mode)
			})
			if err != nil {
				log.Debug(ctx, "no distance for event", logger.String("event_id", ev.ID), logger.Error(err))
				return nil
			}
			out[i] = &est
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshAborted, err)
	}

	results := make(map[string]model.DistanceEstimate, len(events))
	for i, est := range out {
		if est != nil {
			results[events[i].ID] = *est
		}
	}
	return results, nil
}

// Restore loads a persisted entry when the cache is empty. Restored entries
// are subject to the same validity checks as computed ones.
func (c *Cache) Restore(ctx context.Context) (bool, error) {
	if c.store == nil {
		return false, nil
	}
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	e, ok, err := c.store.Load(ctx, c.storeKey)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last != nil {
		return false, nil
	}
	if c.now().Sub(e.ComputedAt) > c.ttl {
		return false, nil
	}
	e.Generation = c.generation
	restored := e.clone()
	c.last = &restored
	return true, nil
}

// IsStale reports whether err is a superseded refresh.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleRefresh)
}
