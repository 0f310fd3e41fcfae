package prefs

import (
	"context"
	"sync"
)

// MemoryStore keeps preferences in process memory. Suitable for single
// instance deployments and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	prefs map[string]Preferences
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{prefs: make(map[string]Preferences)}
}

func (s *MemoryStore) Get(ctx context.Context, subscriberID string) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.prefs[subscriberID]; ok {
		return p, nil
	}
	return DefaultPreferences(), nil
}

func (s *MemoryStore) Set(ctx context.Context, subscriberID string, prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefs[subscriberID] = prefs
	return nil
}
