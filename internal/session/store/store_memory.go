// Package store persists the session configuration singleton.
package store

import (
	"context"
	"sync"

	"ballotgate/internal/session/models"
	"ballotgate/pkg/platform/sentinel"
)

type MemoryStore struct {
	mu     sync.RWMutex
	config *models.Config
}

func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(_ context.Context) (*models.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.config == nil {
		return nil, sentinel.ErrNotFound
	}
	out := *s.config
	return &out, nil
}

// Upsert replaces the singleton. Concurrent updates race and the later
// write wins whole; configs are never merged.
func (s *MemoryStore) Upsert(_ context.Context, config *models.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := *config
	s.config = &out
	return nil
}
