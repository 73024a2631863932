package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"beantrace/internal/attestation/models"
	"beantrace/internal/sentinel"
	"beantrace/pkg/domain"
)

// InMemoryStore keeps sessions in a map. Sessions are short-lived and
// per-verifier; expired ones are swept by the cleanup worker.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*models.Session
}

// NewInMemory constructs an empty in-memory session store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[domain.SessionID]*models.Session)}
}

func (s *InMemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("session: %w", sentinel.ErrConflict)
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session: %w", sentinel.ErrNotFound)
	}
	return session.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, session *models.Session, expectedState models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[session.ID]
	if !ok {
		return fmt.Errorf("session: %w", sentinel.ErrNotFound)
	}
	if current.State != expectedState {
		return fmt.Errorf("session state is %s, expected %s: %w", current.State, expectedState, sentinel.ErrConflict)
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *InMemoryStore) DeleteExpiredSessions(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}
