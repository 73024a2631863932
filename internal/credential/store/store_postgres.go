package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"beantrace/internal/credential/models"
	"beantrace/internal/sentinel"
	"beantrace/pkg/domain"
)

// PostgresStore persists credentials in PostgreSQL, claims as JSONB.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, cred *models.Credential) error {
	if cred == nil {
		return fmt.Errorf("credential is required")
	}
	claims, err := json.Marshal(cred.Claims)
	if err != nil {
		return fmt.Errorf("marshal claims: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, issuer_did, subject_did, claims, issuance_date, proof, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cred.ID, string(cred.IssuerDID), string(cred.SubjectDID), claims,
		cred.IssuanceDate, cred.Proof, cred.Revoked,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Content-derived IDs: same ID means same signed content.
			return nil
		}
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, issuer_did, subject_did, claims, issuance_date, proof, revoked
		FROM credentials WHERE id = $1`, id)
	cred, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return cred, nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject domain.DID) ([]*models.Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issuer_did, subject_did, claims, issuance_date, proof, revoked
		FROM credentials WHERE subject_did = $1 ORDER BY issuance_date ASC`, string(subject))
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []*models.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE credentials SET revoked = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke credential rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*models.Credential, error) {
	var cred models.Credential
	var issuer, subject string
	var claims []byte
	if err := row.Scan(&cred.ID, &issuer, &subject, &claims, &cred.IssuanceDate, &cred.Proof, &cred.Revoked); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(claims, &cred.Claims); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}
	cred.IssuerDID = domain.DID(issuer)
	cred.SubjectDID = domain.DID(subject)
	return &cred, nil
}
