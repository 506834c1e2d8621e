// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"

	"github.com/okian/pitchside/internal/domain/geo"
)

// Status is the lifecycle state of an event.
type Status string

// Known event statuses. Anything else is ranked as "other".
const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCanceled  Status = "CANCELED"
	StatusDraft     Status = "DRAFT"
)

// ParseStatus normalises a raw status string. Unknown values are kept verbatim
// (upper-cased) so they still rank, after every known status.
func ParseStatus(s string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(s)))
}

// Priority returns the ascending sort weight of the status.
func (s Status) Priority() int {
	switch s {
	case StatusActive:
		return 1
	case StatusCompleted:
		return 2
	case StatusCanceled:
		return 3
	case StatusDraft:
		return 4
	default:
		return 5
	}
}

// Upcoming reports whether the status orders by event date (soonest first)
// rather than by creation time.
func (s Status) Upcoming() bool {
	return s == StatusActive || s == StatusDraft
}

// EventCandidate is the read-only projection of an event used for ranking.
type EventCandidate struct {
	ID         string
	SportID    string
	Status     Status
	EventDate  time.Time
	CreatedAt  time.Time
	Coordinate geo.Coordinate
}

// RankedEvent is an EventCandidate annotated with its distance (if any) and
// the skill priority derived from the user's preferences.
type RankedEvent struct {
	Event         EventCandidate
	Distance      *DistanceEstimate // nil when no distance is known
	SkillPriority int
}

// NearbyResult is a user's ranked event list.
type NearbyResult struct {
	Events []RankedEvent
	// CacheValid is true when distances come from an entry computed for the
	// user's latest location.
	CacheValid bool
	ComputedAt time.Time
}
