package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"beantrace/internal/sentinel"
	"beantrace/internal/token/models"
)

// PostgresStore persists verification tokens in PostgreSQL.
//
// Redeem relies on the conditional UPDATE being atomic per row: concurrent
// redeemers of the same token serialize on the row lock and at most one sees
// used=false.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed token store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, record *models.Record) error {
	if record == nil {
		return fmt.Errorf("token record is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_tokens (token, subject_ref, created_at, expires_at, used)
		VALUES ($1, $2, $3, $4, $5)`,
		record.Token, record.SubjectRef, record.CreatedAt, record.ExpiresAt, record.Used,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("token: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

func (s *PostgresStore) Redeem(ctx context.Context, token string, now time.Time) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE verification_tokens
		SET used = true
		WHERE token = $1 AND used = false AND expires_at >= $2
		RETURNING token, subject_ref, created_at, expires_at, used`,
		token, now,
	)

	var record models.Record
	err := row.Scan(&record.Token, &record.SubjectRef, &record.CreatedAt, &record.ExpiresAt, &record.Used)
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("redeem token: %w", err)
	}

	// The conditional update matched nothing; read the row to report why.
	row = s.db.QueryRowContext(ctx, `
		SELECT expires_at, used FROM verification_tokens WHERE token = $1`, token)
	var expiresAt time.Time
	var used bool
	if err := row.Scan(&expiresAt, &used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("token: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("inspect token: %w", err)
	}
	if used {
		return nil, fmt.Errorf("token: %w", sentinel.ErrAlreadyUsed)
	}
	return nil, fmt.Errorf("token: %w", sentinel.ErrExpired)
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens rows: %w", err)
	}
	return int(rows), nil
}

func (s *PostgresStore) DeleteUsed(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE used = true`)
	if err != nil {
		return 0, fmt.Errorf("delete used tokens: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete used tokens rows: %w", err)
	}
	return int(rows), nil
}
