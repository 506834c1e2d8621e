package model

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/pitchside/internal/domain/geo"
)

// RawEvent is the loosely-typed shape an event source hands over. It is only
// ever converted to an EventCandidate through Project.
type RawEvent struct {
	ID        string    `json:"id" validate:"required"`
	SportID   string    `json:"sport_id" validate:"required"`
	Status    string    `json:"status" validate:"required"`
	EventDate time.Time `json:"event_date" validate:"required"`
	CreatedAt time.Time `json:"created_at" validate:"required"`
	Latitude  *float64  `json:"latitude" validate:"required"`
	Longitude *float64  `json:"longitude" validate:"required"`
}

// Rejection records why a raw event was skipped at the ranking boundary.
type Rejection struct {
	ID  string
	Err error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Project validates a raw event and converts it to a candidate.
func Project(raw RawEvent) (EventCandidate, error) {
	if err := validate.Struct(raw); err != nil {
		return EventCandidate{}, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, raw.ID, err)
	}
	coord, err := geo.NewCoordinate(*raw.Latitude, *raw.Longitude)
	if err != nil {
		return EventCandidate{}, fmt.Errorf("%w: %s: %w", ErrInvalidEvent, raw.ID, err)
	}
	return EventCandidate{
		ID:         raw.ID,
		SportID:    raw.SportID,
		Status:     ParseStatus(raw.Status),
		EventDate:  raw.EventDate,
		CreatedAt:  raw.CreatedAt,
		Coordinate: coord,
	}, nil
}

// ProjectAll projects every raw event, preserving input order for the
// accepted ones. Duplicated ids keep the first occurrence.
func ProjectAll(raws []RawEvent) ([]EventCandidate, []Rejection) {
	out := make([]EventCandidate, 0, len(raws))
	var rejected []Rejection
	seen := make(map[string]struct{}, len(raws))
	for _, raw := range raws {
		c, err := Project(raw)
		if err != nil {
			rejected = append(rejected, Rejection{ID: raw.ID, Err: err})
			continue
		}
		if _, dup := seen[c.ID]; dup {
			rejected = append(rejected, Rejection{ID: raw.ID, Err: fmt.Errorf("%w: duplicate id %s", ErrInvalidEvent, raw.ID)})
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out, rejected
}
