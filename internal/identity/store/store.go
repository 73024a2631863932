package store

import (
	"context"

	"beantrace/internal/identity/models"
	"beantrace/pkg/domain"
)

// Store persists identity records.
//
// Error Contract:
// - FindByDID returns sentinel.ErrNotFound (wrapped) when no record exists
// - Save returns sentinel.ErrConflict when the DID is already registered
// - Other failures are wrapped infrastructure errors
type Store interface {
	Save(ctx context.Context, record *models.Record) error
	FindByDID(ctx context.Context, did domain.DID) (*models.Record, error)
	SetApproved(ctx context.Context, did domain.DID, approved bool) error
}
