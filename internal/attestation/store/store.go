package store

import (
	"context"
	"time"

	"beantrace/internal/attestation/models"
	"beantrace/pkg/domain"
)

// Store persists attestation sessions.
//
// Update is a compare-and-swap on the session state: it applies the new
// session only if the stored state still equals expectedState, returning
// sentinel.ErrConflict otherwise. This serializes concurrent transition
// attempts on one session.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id domain.SessionID) (*models.Session, error)
	Update(ctx context.Context, session *models.Session, expectedState models.State) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}
