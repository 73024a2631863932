package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"beantrace/internal/credential/models"
	"beantrace/internal/sentinel"
	"beantrace/pkg/domain"
)

// InMemoryStore keeps credentials in maps, keyed by content-derived ID and
// indexed by subject.
type InMemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]*models.Credential
	bySubject map[domain.DID][]string
}

// NewInMemory constructs an empty in-memory credential store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byID:      make(map[string]*models.Credential),
		bySubject: make(map[domain.DID][]string),
	}
}

func (s *InMemoryStore) Save(_ context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[cred.ID]; ok {
		// Content-derived IDs: same ID means same signed content.
		return nil
	}
	s.byID[cred.ID] = cred.Clone()
	s.bySubject[cred.SubjectDID] = append(s.bySubject[cred.SubjectDID], cred.ID)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	return cred.Clone(), nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subject domain.DID) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.bySubject[subject]
	out := make([]*models.Credential, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuanceDate.Before(out[j].IssuanceDate) })
	return out, nil
}

func (s *InMemoryStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	cred.Revoked = true
	return nil
}
