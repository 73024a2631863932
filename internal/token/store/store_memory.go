package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"beantrace/internal/sentinel"
	"beantrace/internal/token/models"
)

// InMemoryStore keeps verification tokens in a map. Redeem performs the
// check-and-mark under the write lock, so no interleaving can produce two
// successful redemptions of one token.
type InMemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*models.Record
}

// NewInMemory constructs an empty in-memory token store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{tokens: make(map[string]*models.Record)}
}

func (s *InMemoryStore) Create(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[record.Token]; ok {
		return fmt.Errorf("token: %w", sentinel.ErrConflict)
	}
	s.tokens[record.Token] = record.Clone()
	return nil
}

func (s *InMemoryStore) Redeem(_ context.Context, token string, now time.Time) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[token]
	if !ok {
		return nil, fmt.Errorf("token: %w", sentinel.ErrNotFound)
	}
	if record.Expired(now) {
		return nil, fmt.Errorf("token: %w", sentinel.ErrExpired)
	}
	if record.Used {
		return nil, fmt.Errorf("token: %w", sentinel.ErrAlreadyUsed)
	}

	record.Used = true
	return record.Clone(), nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for token, record := range s.tokens {
		if record.Expired(now) {
			delete(s.tokens, token)
			deleted++
		}
	}
	return deleted, nil
}

func (s *InMemoryStore) DeleteUsed(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for token, record := range s.tokens {
		if record.Used {
			delete(s.tokens, token)
			deleted++
		}
	}
	return deleted, nil
}
