// Package service implements actor onboarding and the signing facade.
//
// Identity creation is the only moment a private key exists outside the
// vault: it is generated, sealed, and discarded within CreateIdentity.
// Everything downstream signs through Sign, which resolves the sealed key
// and delegates to the vault.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"beantrace/internal/identity/did"
	"beantrace/internal/identity/models"
	"beantrace/internal/identity/store"
	"beantrace/internal/identity/vault"
	"beantrace/internal/sentinel"
	"beantrace/pkg/domain"
	dErrors "beantrace/pkg/domain-errors"
)

// CreatedIdentity is the caller-visible result of onboarding. It carries the
// encrypted key record, never plaintext key material.
type CreatedIdentity struct {
	DID                 domain.DID
	PublicKey           []byte
	EncryptedPrivateKey []byte
}

// Service owns identity lifecycle and signing.
type Service struct {
	store  store.Store
	vault  *vault.Vault
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs the identity service.
func NewService(st store.Store, v *vault.Vault, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{store: st, vault: v, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreateIdentity onboards a new actor: generates the keypair, derives the
// DID, seals the private key, and persists the record. New identities start
// unapproved; an operator approves them before they may attest.
func (s *Service) CreateIdentity(ctx context.Context, role models.Role, organizationDID domain.DID) (*CreatedIdentity, error) {
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown role: "+string(role))
	}

	d, pub, priv, err := did.Generate()
	if err != nil {
		return nil, err
	}

	sealed, err := s.vault.Encrypt(priv)
	if err != nil {
		return nil, err
	}
	for i := range priv {
		priv[i] = 0
	}

	record := &models.Record{
		DID:                 d,
		PublicKey:           pub,
		EncryptedPrivateKey: sealed,
		Role:                role,
		Approved:            false,
		OrganizationDID:     organizationDID,
		CreatedAt:           s.now().UTC(),
	}
	if err := s.store.Save(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "identity already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist identity")
	}

	s.logger.InfoContext(ctx, "identity created", "did", d.String(), "role", string(role))

	return &CreatedIdentity{
		DID:                 d,
		PublicKey:           pub,
		EncryptedPrivateKey: sealed,
	}, nil
}

// Get loads an identity record by DID.
func (s *Service) Get(ctx context.Context, d domain.DID) (*models.Record, error) {
	record, err := s.store.FindByDID(ctx, d)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotRegistered, "identity not registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load identity")
	}
	return record, nil
}

// Approve marks an identity as approved to act.
func (s *Service) Approve(ctx context.Context, d domain.DID) error {
	if err := s.store.SetApproved(ctx, d, true); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotRegistered, "identity not registered")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "approve identity")
	}
	s.logger.InfoContext(ctx, "identity approved", "did", d.String())
	return nil
}

// Sign produces a signature over payload with the DID's sealed private key.
// The plaintext key never leaves the vault call.
func (s *Service) Sign(ctx context.Context, d domain.DID, payload []byte) ([]byte, error) {
	record, err := s.Get(ctx, d)
	if err != nil {
		return nil, err
	}
	return s.vault.Sign(record.EncryptedPrivateKey, payload)
}
