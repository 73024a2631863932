// Package service issues and verifies credentials.
//
// Issuance canonicalizes the claim set plus its issuance envelope, signs the
// canonical bytes through the vault-backed signer, and persists the result
// under a content-derived ID. Verification recomputes the canonical bytes and
// checks the proof against the public key decoded from the issuer DID itself;
// no registry is consulted. Self- and third-party attestation are the same
// call, distinguished only by whether issuer and subject DIDs coincide.
package service

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"beantrace/internal/credential/metrics"
	"beantrace/internal/credential/models"
	"beantrace/internal/credential/ports"
	"beantrace/internal/credential/store"
	"beantrace/internal/identity/did"
	"beantrace/internal/sentinel"
	"beantrace/pkg/domain"
	dErrors "beantrace/pkg/domain-errors"
)

// Signer produces signatures with a DID's sealed private key. Satisfied by
// the identity service; private key material never crosses this boundary.
type Signer interface {
	Sign(ctx context.Context, d domain.DID, payload []byte) ([]byte, error)
}

// Service issues, verifies, and revokes credentials.
type Service struct {
	store   store.Store
	signer  Signer
	anchor  ports.AnchorSink
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAnchorSink sets the sink that receives issued-credential digests.
func WithAnchorSink(a ports.AnchorSink) Option {
	return func(s *Service) {
		if a != nil {
			s.anchor = a
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs the credential service.
func NewService(st store.Store, signer Signer, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:  st,
		signer: signer,
		anchor: ports.NoopAnchor{},
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Issue signs a claim set and persists the resulting credential. The same
// call serves self-attestation (issuer == subject) and third-party
// attestation; trust weighting is the consumer's concern.
func (s *Service) Issue(ctx context.Context, issuer, subject domain.DID, claims models.ClaimSet) (*models.Credential, error) {
	if err := claims.Validate(); err != nil {
		return nil, err
	}

	claimMap := claims.ToMap()
	issuanceDate := s.now().UTC().Truncate(time.Second)
	canonical, err := canonicalPayload(issuer, subject, issuanceDate, claimMap)
	if err != nil {
		return nil, err
	}

	sig, err := s.signer.Sign(ctx, issuer, canonical)
	if err != nil {
		return nil, err
	}

	cred := &models.Credential{
		ID:           contentID(canonical),
		IssuerDID:    issuer,
		SubjectDID:   subject,
		Claims:       claimMap,
		IssuanceDate: issuanceDate,
		Proof:        base64.RawURLEncoding.EncodeToString(sig),
	}
	if err := s.store.Save(ctx, cred); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist credential")
	}

	if err := s.anchor.Anchor(ctx, cred.ID, canonicalDigest(canonical)); err != nil {
		// Anchoring is an external sink; its failure must not unwind a
		// signed, persisted credential.
		s.logger.WarnContext(ctx, "anchor emit failed", "credential_id", cred.ID, "error", err)
	}

	if s.metrics != nil {
		s.metrics.IncrementIssued(claims.Type(), cred.IsThirdParty())
	}
	s.logger.InfoContext(ctx, "credential issued",
		"credential_id", cred.ID,
		"credential_type", claims.Type(),
		"third_party", cred.IsThirdParty(),
	)
	return cred, nil
}

// Verify checks a presented credential offline. A nil return means valid.
// Failure modes are typed: invalid_signature, malformed_did,
// expired_credential. Revocation of stored credentials is checked by
// VerifyStored; a presented credential carries no trustworthy revoked flag.
func (s *Service) Verify(ctx context.Context, cred *models.Credential) error {
	err := s.verify(cred)
	if s.metrics != nil {
		result := "valid"
		if err != nil {
			result = string(dErrors.CodeOf(err))
		}
		s.metrics.IncrementVerification(result)
	}
	_ = ctx
	return err
}

func (s *Service) verify(cred *models.Credential) error {
	if cred == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "credential is required")
	}

	pub, err := did.Decode(cred.IssuerDID)
	if err != nil {
		return err
	}

	canonical, err := canonicalPayload(cred.IssuerDID, cred.SubjectDID, cred.IssuanceDate, cred.Claims)
	if err != nil {
		return err
	}

	sig, err := base64.RawURLEncoding.DecodeString(cred.Proof)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidSignature, "proof is not base64url")
	}
	if !ed25519.Verify(pub, canonical, sig) {
		return dErrors.New(dErrors.CodeInvalidSignature, "proof does not match canonical payload")
	}

	expiry, has, err := models.ExpiryOf(cred.Claims)
	if err != nil {
		return err
	}
	if has && s.now().After(expiry) {
		return dErrors.New(dErrors.CodeExpiredCredential, "credential expired at "+expiry.Format(time.RFC3339))
	}
	return nil
}

// VerifyStored verifies a credential held in the store, including its
// revocation flag.
func (s *Service) VerifyStored(ctx context.Context, id string) (*models.Credential, error) {
	cred, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "credential not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load credential")
	}
	if cred.Revoked {
		return cred, dErrors.New(dErrors.CodeInvalidState, "credential is revoked")
	}
	if err := s.Verify(ctx, cred); err != nil {
		return cred, err
	}
	return cred, nil
}

// Revoke flags a stored credential as revoked. Claims and proof are untouched.
func (s *Service) Revoke(ctx context.Context, id string) error {
	if err := s.store.Revoke(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "credential not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "revoke credential")
	}
	if s.metrics != nil {
		s.metrics.CredentialsRevoked.Inc()
	}
	s.logger.InfoContext(ctx, "credential revoked", "credential_id", id)
	return nil
}

func canonicalDigest(canonical []byte) []byte {
	d := digest(canonical)
	return d[:]
}
