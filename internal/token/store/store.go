package store

import (
	"context"
	"time"

	"beantrace/internal/token/models"
)

// Store persists verification tokens.
//
// Redeem is the load-bearing operation: the check-and-mark-used sequence is a
// single atomic transition per token. Under concurrent redemption of the same
// token exactly one caller succeeds; every other caller observes
// sentinel.ErrAlreadyUsed. Implementations serialize via a held lock
// (memory), a transactional conditional update (Postgres), or a single
// server-side script (Redis).
//
// Error Contract:
// - Redeem returns sentinel.ErrNotFound, sentinel.ErrExpired, or
//   sentinel.ErrAlreadyUsed (wrapped); the three are never collapsed
// - Create returns sentinel.ErrConflict when the token string already exists
type Store interface {
	Create(ctx context.Context, record *models.Record) error
	Redeem(ctx context.Context, token string, now time.Time) (*models.Record, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	DeleteUsed(ctx context.Context) (int, error)
}
