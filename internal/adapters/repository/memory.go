package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/okian/pitchside/internal/domain/model"
)

// MemoryStore is an in-memory EventSource and SkillSource, seedable for
// development and tests. Events keep insertion order.
type MemoryStore struct {
	mu     sync.RWMutex
	events []model.RawEvent
	index  map[string]int
	skills map[string][]model.SkillPreference
}

var (
	_ EventSource = (*MemoryStore)(nil)
	_ SkillSource = (*MemoryStore)(nil)
)

// NewMemoryStore creates a store seeded with events.
func NewMemoryStore(seed ...model.RawEvent) *MemoryStore {
	s := &MemoryStore{
		index:  make(map[string]int),
		skills: make(map[string][]model.SkillPreference),
	}
	for _, e := range seed {
		_ = s.PutEvent(context.Background(), e)
	}
	return s
}

// PutEvent inserts or replaces an event by id.
func (s *MemoryStore) PutEvent(_ context.Context, e model.RawEvent) error {
	if e.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidEvent)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[e.ID]; ok {
		s.events[i] = e
		return nil
	}
	s.index[e.ID] = len(s.events)
	s.events = append(s.events, e)
	return nil
}

// DeleteEvent removes an event by id.
func (s *MemoryStore) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}
	s.events = slices.Delete(s.events, i, i+1)
	delete(s.index, id)
	for j := i; j < len(s.events); j++ {
		s.index[s.events[j].ID] = j
	}
	return nil
}

// ListEvents returns a copy of all events in insertion order.
func (s *MemoryStore) ListEvents(_ context.Context) ([]model.RawEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events), nil
}

// Count returns the number of stored events.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// SetSkillPreferences replaces a user's preferences.
func (s *MemoryStore) SetSkillPreferences(_ context.Context, userID string, prefs []model.SkillPreference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skills[userID] = slices.Clone(prefs)
}

// SkillPreferences returns a copy of a user's preferences.
func (s *MemoryStore) SkillPreferences(_ context.Context, userID string) ([]model.SkillPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.skills[userID]), nil
}
