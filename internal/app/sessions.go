package service

import (
	"context"
	"sync"
	"time"

	"github.com/okian/pitchside/internal/domain/geo"
	"github.com/okian/pitchside/internal/domain/proximity"
	"github.com/okian/pitchside/pkg/logger"
	"github.com/okian/pitchside/pkg/metrics"
)

// session owns one user's proximity cache. The cache lives as long as the
// session, not the process.
type session struct {
	userID string
	cache  *proximity.Cache

	mu        sync.Mutex
	latest    *geo.LocationSample
	lastSeen  time.Time
	createdAt time.Time
}

// advance records sample as the user's newest and supersedes any refresh
// still running for an older one. The returned generation tags the update.
func (s *session) advance(sample geo.LocationSample, at time.Time) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &sample
	s.lastSeen = at
	return s.cache.Supersede()
}

func (s *session) touch(at time.Time) {
	s.mu.Lock()
	s.lastSeen = at
	s.mu.Unlock()
}

// latestSample returns the most recent sample submitted for the user.
func (s *session) latestSample() (geo.LocationSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return geo.LocationSample{}, false
	}
	return *s.latest, true
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// sessionRegistry maps user ids to sessions.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	newCache func(userID string) *proximity.Cache
	now      func() time.Time
	logger   logger.Logger
}

func newSessionRegistry(newCache func(string) *proximity.Cache, now func() time.Time, l logger.Logger) *sessionRegistry {
	return &sessionRegistry{
		sessions: make(map[string]*session),
		newCache: newCache,
		now:      now,
		logger:   l,
	}
}

func (r *sessionRegistry) get(userID string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// getOrCreate returns the user's session, restoring a persisted snapshot
// into a freshly created cache.
func (r *sessionRegistry) getOrCreate(ctx context.Context, userID string) *session {
	if s, ok := r.get(userID); ok {
		return s
	}

	r.mu.Lock()
	if s, ok := r.sessions[userID]; ok {
		r.mu.Unlock()
		return s
	}
	now := r.now()
	s := &session{
		userID:    userID,
		cache:     r.newCache(userID),
		lastSeen:  now,
		createdAt: now,
	}
	r.sessions[userID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.UpdateActiveSessions(n)
	restored, err := s.cache.Restore(ctx)
	switch {
	case err != nil:
		r.logger.Warn(ctx, "snapshot restore failed", logger.String("user_id", userID), logger.Error(err))
	case restored:
		r.logger.Debug(ctx, "session restored from snapshot", logger.String("user_id", userID))
	}
	return s
}

func (r *sessionRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// reap drops sessions idle for longer than idle and returns how many went.
func (r *sessionRegistry) reap(ctx context.Context, idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var reaped int
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			delete(r.sessions, id)
			reaped++
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if reaped > 0 {
		metrics.UpdateActiveSessions(n)
		r.logger.Debug(ctx, "reaped idle sessions", logger.Int("reaped", reaped), logger.Int("active", n))
	}
	return reaped
}

// runReaper reaps on a ticker until ctx or stop closes.
func (r *sessionRegistry) runReaper(ctx context.Context, idle time.Duration, stop <-chan struct{}) {
	interval := max(idle/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			r.reap(ctx, idle)
		}
	}
}
