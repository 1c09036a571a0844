// Package memory keeps visitor preferences in process memory.
package memory

import (
	"context"
	"sync"

	"raceview/pkg/domain"
)

var _ domain.PreferenceStore = (*Store)(nil)

// Store is a map-backed PreferenceStore. Contents are lost on restart.
type Store struct {
	mu    sync.RWMutex
	prefs map[string]domain.Preferences
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{prefs: make(map[string]domain.Preferences)}
}

// Get returns the preferences saved for visitorID.
func (s *Store) Get(_ context.Context, visitorID string) (domain.Preferences, bool, error) {
	if visitorID == "" {
		return domain.Preferences{}, false, domain.ErrInvalidVisitor
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[visitorID]
	return p, ok, nil
}

// Put saves prefs for visitorID after normalizing them.
func (s *Store) Put(_ context.Context, visitorID string, prefs domain.Preferences) error {
	if visitorID == "" {
		return domain.ErrInvalidVisitor
	}
	s.mu.Lock()
	s.prefs[visitorID] = prefs.Normalize()
	s.mu.Unlock()
	return nil
}

// Len reports how many visitors have saved preferences.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prefs)
}

func (s *Store) Close() error { return nil }
