package store

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"beantrace/internal/identity/models"
	"beantrace/internal/sentinel"
	"beantrace/pkg/domain"
)

// PostgresStore persists identity records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed identity store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, record *models.Record) error {
	if record == nil {
		return fmt.Errorf("identity record is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (did, public_key, encrypted_private_key, role, approved, organization_did, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(record.DID), []byte(record.PublicKey), record.EncryptedPrivateKey,
		string(record.Role), record.Approved, string(record.OrganizationDID), record.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("identity %s: %w", record.DID, sentinel.ErrConflict)
		}
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByDID(ctx context.Context, did domain.DID) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT did, public_key, encrypted_private_key, role, approved, organization_did, created_at
		FROM identities WHERE did = $1`, string(did))

	var record models.Record
	var didStr, role, orgDID string
	var pub []byte
	if err := row.Scan(&didStr, &pub, &record.EncryptedPrivateKey, &role, &record.Approved, &orgDID, &record.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity %s: %w", did, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	record.DID = domain.DID(didStr)
	record.PublicKey = ed25519.PublicKey(pub)
	record.Role = models.Role(role)
	record.OrganizationDID = domain.DID(orgDID)
	return &record, nil
}

func (s *PostgresStore) SetApproved(ctx context.Context, did domain.DID, approved bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE identities SET approved = $2 WHERE did = $1`, string(did), approved)
	if err != nil {
		return fmt.Errorf("set identity approved: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set identity approved rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("identity %s: %w", did, sentinel.ErrNotFound)
	}
	return nil
}
