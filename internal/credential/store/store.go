package store

import (
	"context"

	"beantrace/internal/credential/models"
	"beantrace/pkg/domain"
)

// Store persists credentials. Issuance is append-only; the only mutation a
// credential ever sees is the revoked flag.
//
// Error Contract:
// - FindByID returns sentinel.ErrNotFound (wrapped) when no credential exists
// - Save of an existing ID is a no-op success (content-derived IDs make
//   re-issuance of identical content idempotent)
type Store interface {
	Save(ctx context.Context, cred *models.Credential) error
	FindByID(ctx context.Context, id string) (*models.Credential, error)
	ListBySubject(ctx context.Context, subject domain.DID) ([]*models.Credential, error)
	Revoke(ctx context.Context, id string) error
}
