package store

import (
	"context"
	"fmt"
	"sync"

	"beantrace/internal/identity/models"
	"beantrace/internal/sentinel"
	"beantrace/pkg/domain"
)

// InMemoryStore keeps identity records in a map. It favors clarity over
// performance and is the default store outside production deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.DID]*models.Record
}

// NewInMemory constructs an empty in-memory identity store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.DID]*models.Record)}
}

func (s *InMemoryStore) Save(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.DID]; ok {
		return fmt.Errorf("identity %s: %w", record.DID, sentinel.ErrConflict)
	}
	s.records[record.DID] = record.Clone()
	return nil
}

func (s *InMemoryStore) FindByDID(_ context.Context, did domain.DID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[did]
	if !ok {
		return nil, fmt.Errorf("identity %s: %w", did, sentinel.ErrNotFound)
	}
	return record.Clone(), nil
}

func (s *InMemoryStore) SetApproved(_ context.Context, did domain.DID, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[did]
	if !ok {
		return fmt.Errorf("identity %s: %w", did, sentinel.ErrNotFound)
	}
	record.Approved = approved
	return nil
}
