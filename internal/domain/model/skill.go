package model

import (
	"fmt"
	"strings"
)

// SkillLevel is a user's self-reported proficiency in a sport.
type SkillLevel string

// Skill levels, lowest to highest.
const (
	SkillBeginner     SkillLevel = "BEGINNER"
	SkillIntermediate SkillLevel = "INTERMEDIATE"
	SkillAdvanced     SkillLevel = "ADVANCED"
	SkillProfessional SkillLevel = "PROFESSIONAL"
)

// ParseSkillLevel accepts any casing of the four known levels.
func ParseSkillLevel(s string) (SkillLevel, error) {
	l := SkillLevel(strings.ToUpper(strings.TrimSpace(s)))
	if l.Priority() == 0 {
		return "", fmt.Errorf("%w: unknown skill level %q", ErrInvalidSkill, s)
	}
	return l, nil
}

// Priority maps the level to its ranking weight; unknown levels weigh 0.
func (l SkillLevel) Priority() int {
	switch l {
	case SkillProfessional:
		return 4
	case SkillAdvanced:
		return 3
	case SkillIntermediate:
		return 2
	case SkillBeginner:
		return 1
	default:
		return 0
	}
}

// SkillPreference is one sport/level pair from the user profile.
type SkillPreference struct {
	SportID string
	Level   SkillLevel
}

// SkillLookup maps sportID to the user's level for that sport.
type SkillLookup map[string]SkillLevel

// NewSkillLookup folds preferences into a lookup. A later preference for the
// same sport replaces an earlier one.
func NewSkillLookup(prefs []SkillPreference) SkillLookup {
	lookup := make(SkillLookup, len(prefs))
	for _, p := range prefs {
		if p.SportID == "" {
			continue
		}
		lookup[p.SportID] = p.Level
	}
	return lookup
}

// PriorityFor returns the skill priority of a sport, 0 when there is no preference.
func (l SkillLookup) PriorityFor(sportID string) int {
	if l == nil {
		return 0
	}
	return l[sportID].Priority()
}
