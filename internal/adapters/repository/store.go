// Package repository provides the event and skill-preference sources.
package repository

import (
	"context"

	"github.com/okian/pitchside/internal/domain/model"
)

// EventSource supplies raw events. Callers project them with model.ProjectAll;
// sources never validate or mutate events.
type EventSource interface {
	ListEvents(ctx context.Context) ([]model.RawEvent, error)
}

// SkillSource supplies a user's skill preferences, at most one per sport.
// An unknown user has no preferences and is not an error.
type SkillSource interface {
	SkillPreferences(ctx context.Context, userID string) ([]model.SkillPreference, error)
}
