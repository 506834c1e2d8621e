// Package ranking orders candidate events for a user.
package ranking

import (
	"slices"
	"time"

	"github.com/okian/pitchside/internal/domain/model"
	"github.com/okian/pitchside/pkg/metrics"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithDistanceTieBreak enables a separate stable pass that orders events with
// fully equal ranking keys by distance, missing distances last.
func WithDistanceTieBreak(enabled bool) Option {
	return func(e *Engine) {
		e.distanceTieBreak = enabled
	}
}

// Engine ranks events. It holds no state between calls.
type Engine struct {
	distanceTieBreak bool
}

// New creates a ranking engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rank ranks events with the default engine.
func Rank(events []model.EventCandidate, prefs model.SkillLookup, distances map[string]model.DistanceEstimate) []model.RankedEvent {
	return New().Rank(events, prefs, distances)
}

// Rank returns events annotated with skill priority and distance, ordered by
// skill priority, then status, then date. Ties keep input order. Events
// without a distance are never dropped.
func (e *Engine) Rank(events []model.EventCandidate, prefs model.SkillLookup, distances map[string]model.DistanceEstimate) []model.RankedEvent {
	start := time.Now()
	defer func() {
		metrics.RecordRankLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	out := make([]model.RankedEvent, len(events))
	for i, ev := range events {
		r := model.RankedEvent{Event: ev, SkillPriority: prefs.PriorityFor(ev.SportID)}
		if d, ok := distances[ev.ID]; ok {
			r.Distance = &d
		}
		out[i] = r
	}

	if !e.distanceTieBreak {
		slices.SortStableFunc(out, Compare)
		return out
	}
	slices.SortStableFunc(out, func(a, b model.RankedEvent) int {
		if c := Compare(a, b); c != 0 {
			return c
		}
		return compareDistance(a, b)
	})
	return out
}

// Compare is the ranking comparator. Skill priority decides whenever either
// side has one; equal non-zero priorities tie with no further key.
func Compare(a, b model.RankedEvent) int {
	if a.SkillPriority != 0 || b.SkillPriority != 0 {
		return b.SkillPriority - a.SkillPriority
	}

	if c := a.Event.Status.Priority() - b.Event.Status.Priority(); c != 0 {
		return c
	}

	if a.Event.Status.Upcoming() {
		return a.Event.EventDate.Compare(b.Event.EventDate)
	}
	return b.Event.CreatedAt.Compare(a.Event.CreatedAt)
}

func compareDistance(a, b model.RankedEvent) int {
	switch {
	case a.Distance == nil && b.Distance == nil:
		return 0
	case a.Distance == nil:
		return 1
	case b.Distance == nil:
		return -1
	case a.Distance.DistanceMeters < b.Distance.DistanceMeters:
		return -1
	case a.Distance.DistanceMeters > b.Distance.DistanceMeters:
		return 1
	default:
		return 0
	}
}
