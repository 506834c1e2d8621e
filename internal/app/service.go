// Package service wires the proximity cache, distance resolvers and ranking
// engine into per-user sessions, and implements the dependencies required by
// the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/pitchside/internal/adapters/location"
	eventqueue "github.com/okian/pitchside/internal/adapters/mq/queue"
	workerpool "github.com/okian/pitchside/internal/adapters/mq/worker"
	"github.com/okian/pitchside/internal/adapters/repository"
	"github.com/okian/pitchside/internal/domain/distance"
	"github.com/okian/pitchside/internal/domain/model"
	"github.com/okian/pitchside/internal/domain/proximity"
	"github.com/okian/pitchside/internal/domain/ranking"
	"github.com/okian/pitchside/pkg/logger"
	"github.com/okian/pitchside/pkg/metrics"
)

// Default service configuration.
const (
	defaultShardCount  = 4
	defaultQueueSize   = 1024
	defaultIdleTimeout = 30 * time.Minute
)

// Service implements the API dependencies for the proximity engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	resolver  *distance.Resolver
	bulk      *distance.BulkResolver
	ranker    *ranking.Engine
	acquirer  *location.Acquirer
	events    repository.EventSource
	skills    repository.SkillSource
	snapshots proximity.SnapshotStore
	sessions  *sessionRegistry
	queue     *eventqueue.Sharded
	pool      *workerpool.Pool

	// Configuration
	matrix           distance.MatrixService
	matrixTimeout    time.Duration
	shardCount       int
	queueSize        int
	ttl              time.Duration
	thresholdKm      float64
	mode             distance.Mode
	retry            distance.RetryPolicy
	concurrency      int
	tieBreak         bool
	idleTimeout      time.Duration
	perEventFallback bool
	now              func() time.Time

	// State
	started bool
	stopCh  chan struct{}

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithMatrixService sets the remote distance matrix. Without one every
// distance is a geodesic estimate.
func WithMatrixService(m distance.MatrixService) Option {
	return func(s *Service) {
		s.matrix = m
	}
}

// WithMatrixTimeout bounds each matrix call.
func WithMatrixTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.matrixTimeout = d
		}
	}
}

// WithEventSource sets where candidate events come from.
func WithEventSource(src repository.EventSource) Option {
	return func(s *Service) {
		if src != nil {
			s.events = src
		}
	}
}

// WithSkillSource sets where skill preferences come from.
func WithSkillSource(src repository.SkillSource) Option {
	return func(s *Service) {
		if src != nil {
			s.skills = src
		}
	}
}

// WithSnapshotStore persists session caches across restarts.
func WithSnapshotStore(store proximity.SnapshotStore) Option {
	return func(s *Service) {
		s.snapshots = store
	}
}

// WithShardCount sets the number of single-writer queues.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithQueueSize sets the capacity of each shard queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithCacheTTL sets the proximity cache lifetime.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMovementThreshold sets the movement threshold in kilometres.
func WithMovementThreshold(km float64) Option {
	return func(s *Service) {
		if km >= 0 {
			s.thresholdKm = km
		}
	}
}

// WithMode sets the travel mode used for refreshes.
func WithMode(m distance.Mode) Option {
	return func(s *Service) {
		if m != "" {
			s.mode = m
		}
	}
}

// WithRetryPolicy sets the retry policy for resolver calls.
func WithRetryPolicy(p distance.RetryPolicy) Option {
	return func(s *Service) {
		s.retry = p
	}
}

// WithFallbackConcurrency bounds per-event resolution after a bulk failure.
func WithFallbackConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithPerEventFallback toggles per-event resolution after a bulk failure.
func WithPerEventFallback(enabled bool) Option {
	return func(s *Service) {
		s.perEventFallback = enabled
	}
}

// WithDistanceTieBreak enables the distance pass among fully tied events.
func WithDistanceTieBreak(enabled bool) Option {
	return func(s *Service) {
		s.tieBreak = enabled
	}
}

// WithSessionIdleTimeout reaps sessions idle for longer than d; 0 disables reaping.
func WithSessionIdleTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.idleTimeout = d
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	mem := repository.NewMemoryStore()
	s := &Service{
		events:           mem,
		skills:           mem,
		matrixTimeout:    distance.DefaultTimeout,
		shardCount:       defaultShardCount,
		queueSize:        defaultQueueSize,
		ttl:              proximity.DefaultTTL,
		thresholdKm:      proximity.DefaultMovementThresholdKm,
		mode:             distance.ModeDriving,
		retry:            distance.DefaultRetryPolicy(),
		concurrency:      8,
		idleTimeout:      defaultIdleTimeout,
		perEventFallback: true,
		now:              time.Now,
		stopCh:           make(chan struct{}),
		logger:           logger.Default().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	resolverOpts := []distance.Option{
		distance.WithMatrixService(s.matrix),
		distance.WithTimeout(s.matrixTimeout),
	}
	s.resolver = distance.NewResolver(resolverOpts...)
	s.bulk = distance.NewBulkResolver(resolverOpts...)
	s.ranker = ranking.New(ranking.WithDistanceTieBreak(s.tieBreak))
	s.acquirer = location.NewAcquirer(location.WithClock(s.now))
	s.sessions = newSessionRegistry(s.newCache, s.now, s.logger.Named("sessions"))
	return s
}

func (s *Service) newCache(userID string) *proximity.Cache {
	opts := []proximity.Option{
		proximity.WithTTL(s.ttl),
		proximity.WithMovementThreshold(s.thresholdKm),
		proximity.WithClock(s.now),
		proximity.WithResolver(s.resolver),
		proximity.WithPerEventFallback(s.perEventFallback),
		proximity.WithRetryPolicy(s.retry),
		proximity.WithMode(s.mode),
		proximity.WithFallbackConcurrency(s.concurrency),
		proximity.WithLogger(s.logger.Named("proximity").With(logger.String("user_id", userID))),
	}
	// Without a matrix service the bulk path can only fail with a
	// configuration error, so go straight to per-event estimates.
	if s.resolver.Configured() {
		opts = append(opts, proximity.WithBulkResolver(s.bulk))
	}
	if s.snapshots != nil {
		opts = append(opts, proximity.WithSnapshotStore(s.snapshots, userID))
	}
	return proximity.New(opts...)
}

// Start creates the shard queues and starts one worker per shard.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting proximity service...")

	s.queue = eventqueue.NewSharded(s.shardCount, s.queueSize)
	s.pool = workerpool.NewPool(s.queue, s)
	s.pool.Start(ctx)

	s.stopCh = make(chan struct{})
	if s.idleTimeout > 0 {
		go s.sessions.runReaper(ctx, s.idleTimeout, s.stopCh)
	}

	if !s.resolver.Configured() {
		s.logger.Warn(ctx, "distance matrix not configured; all distances will be estimated")
	}

	s.started = true
	s.logger.Info(ctx, "proximity service started",
		logger.Int("shards", s.shardCount),
		logger.Int("queueSize", s.queueSize),
		logger.Duration("ttl", s.ttl),
		logger.Float64("movementThresholdKm", s.thresholdKm),
		logger.String("mode", string(s.mode)),
	)
	return nil
}

// Stop drains the queues and shuts the workers down.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping proximity service...")

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Error(ctx, "worker pool shutdown failed", logger.Error(err))
		}
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	s.started = false
	s.logger.Info(ctx, "proximity service stopped")
}

// Report converts a device reading into a sample and submits it.
func (s *Service) Report(ctx context.Context, userID string, r location.Reading) error {
	sample, err := s.acquirer.Acquire(ctx, r)
	if err != nil {
		metrics.RecordLocationSample("http", "rejected")
		return err
	}
	return s.Submit(ctx, model.LocationUpdate{UserID: userID, Sample: sample, ReceivedAt: s.now()})
}

// Submit makes u the user's newest sample, supersedes any refresh still
// running for an older one, and enqueues u on the user's shard. A full shard
// returns eventqueue.ErrQueueFull.
func (s *Service) Submit(ctx context.Context, u model.LocationUpdate) error {
	if strings.TrimSpace(u.UserID) == "" {
		return ErrMissingUser
	}
	s.mu.RLock()
	q, started := s.queue, s.started
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	sess := s.sessions.getOrCreate(ctx, u.UserID)
	u.Generation = sess.advance(u.Sample, s.now())
	return q.Enqueue(ctx, u)
}

// HandleUpdate is run by the user's shard worker: it refreshes the cache when
// the sample moved or the entry expired. An update superseded while queued is
// dropped. Untagged updates are recorded as the newest sample first.
func (s *Service) HandleUpdate(ctx context.Context, u model.LocationUpdate) error { //nolint:gocritic // hugeParam: passed by value for channel semantics
	sess := s.sessions.getOrCreate(ctx, u.UserID)
	gen := u.Generation
	if gen == 0 {
		gen = sess.advance(u.Sample, s.now())
	}
	if sess.cache.Generation() != gen {
		metrics.RecordRefresh("stale")
		return nil
	}

	if !sess.cache.ShouldRefresh(u.Sample) {
		return nil
	}

	candidates, err := s.candidates(ctx)
	if err != nil {
		return err
	}
	_, err = sess.cache.RefreshAt(ctx, gen, u.Sample, candidates)
	if proximity.IsStale(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("refresh for %s: %w", u.UserID, err)
	}
	return nil
}

func (s *Service) candidates(ctx context.Context) ([]model.EventCandidate, error) {
	raws, err := s.events.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	candidates, rejected := model.ProjectAll(raws)
	if len(rejected) > 0 {
		metrics.RecordEventsRejected(len(rejected))
		for _, r := range rejected {
			s.logger.Debug(ctx, "event rejected", logger.String("event_id", r.ID), logger.Error(r.Err))
		}
	}
	return candidates, nil
}

// Nearby ranks all events for userID. Distances are attached only from a
// cache entry still valid for the newest sample submitted for the user.
func (s *Service) Nearby(ctx context.Context, userID string) (model.NearbyResult, error) {
	if strings.TrimSpace(userID) == "" {
		return model.NearbyResult{}, ErrMissingUser
	}
	candidates, err := s.candidates(ctx)
	if err != nil {
		return model.NearbyResult{}, err
	}
	prefs, err := s.skills.SkillPreferences(ctx, userID)
	if err != nil {
		return model.NearbyResult{}, fmt.Errorf("skill preferences: %w", err)
	}

	var res model.NearbyResult
	var distances map[string]model.DistanceEstimate
	if sess, ok := s.sessions.get(userID); ok {
		sess.touch(s.now())
		if sample, ok := sess.latestSample(); ok {
			if entry, ok := sess.cache.Lookup(sample); ok {
				distances = entry.Results
				res.CacheValid = true
				res.ComputedAt = entry.ComputedAt
			}
		}
	}

	res.Events = s.ranker.Rank(candidates, model.NewSkillLookup(prefs), distances)
	return res, nil
}

// Invalidate clears the user's cache and any persisted snapshot.
func (s *Service) Invalidate(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrMissingUser
	}
	if sess, ok := s.sessions.get(userID); ok {
		sess.cache.Invalidate(ctx)
		return nil
	}
	if s.snapshots != nil {
		return s.snapshots.Delete(ctx, userID)
	}
	return nil
}

// Distance resolves a single origin/destination pair.
func (s *Service) Distance(ctx context.Context, origin, destination, mode string) (model.DistanceEstimate, error) {
	m, err := distance.ParseMode(mode)
	if err != nil {
		return model.DistanceEstimate{}, err
	}
	return distance.Retry(ctx, s.retry, func(ctx context.Context) (model.DistanceEstimate, error) {
		return s.resolver.Resolve(ctx, origin, destination, m)
	})
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":             s.started,
		"shardCount":          s.shardCount,
		"queueSize":           s.queueSize,
		"activeSessions":      s.sessions.len(),
		"matrixConfigured":    s.resolver.Configured(),
		"cacheTTLSeconds":     int(s.ttl.Seconds()),
		"movementThresholdKm": s.thresholdKm,
		"travelMode":          string(s.mode),
		"distanceTieBreak":    s.tieBreak,
		"snapshotsEnabled":    s.snapshots != nil,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateActiveSessions(s.sessions.len())
	}
	return stats
}

// IsBackpressure reports whether err means the user's shard is full.
func IsBackpressure(err error) bool {
	return errors.Is(err, eventqueue.ErrQueueFull)
}
