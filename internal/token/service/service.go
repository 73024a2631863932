// Package service issues and redeems single-use verification tokens.
//
// A token gates exactly one physical-world attestation event: redemption is
// a one-time transition, enforced atomically by the store. The service layer
// translates store sentinels into the typed token errors transports surface
// verbatim.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"beantrace/internal/sentinel"
	"beantrace/internal/token/metrics"
	"beantrace/internal/token/models"
	"beantrace/internal/token/store"
	dErrors "beantrace/pkg/domain-errors"
)

// tokenBytes of entropy per token; base64url-encoded to a fixed 43-character
// URL-safe string.
const tokenBytes = 32

// Service manages verification token lifecycle.
type Service struct {
	store   store.Store
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

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs the token service.
func NewService(st store.Store, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{store: st, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Issue creates a token bound to a subject entity, expiring after ttl.
func (s *Service) Issue(ctx context.Context, subjectRef string, ttl time.Duration) (string, error) {
	if subjectRef == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject reference is required")
	}
	if ttl < 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "ttl must not be negative")
	}

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate token")
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	now := s.now().UTC()
	record := &models.Record{
		Token:      token,
		SubjectRef: subjectRef,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		Used:       false,
	}
	if err := s.store.Create(ctx, record); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "persist token")
	}

	if s.metrics != nil {
		s.metrics.TokensIssued.Inc()
	}
	s.logger.InfoContext(ctx, "verification token issued",
		"subject_ref", subjectRef,
		"expires_at", record.ExpiresAt,
	)
	return token, nil
}

// Redeem consumes a token exactly once and returns the subject it was bound
// to. The three failure modes stay distinct all the way to the caller.
func (s *Service) Redeem(ctx context.Context, token string) (string, error) {
	record, err := s.store.Redeem(ctx, token, s.now().UTC())
	if err != nil {
		err = s.translateRedeemError(err)
		if s.metrics != nil {
			s.metrics.IncrementRedemption(string(dErrors.CodeOf(err)))
		}
		return "", err
	}

	if s.metrics != nil {
		s.metrics.IncrementRedemption("redeemed")
	}
	s.logger.InfoContext(ctx, "verification token redeemed", "subject_ref", record.SubjectRef)
	return record.SubjectRef, nil
}

func (s *Service) translateRedeemError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeTokenNotFound, "verification token not found")
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.Wrap(err, dErrors.CodeTokenExpired, "verification token expired")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeTokenAlreadyUsed, "verification token already used")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConcurrencyConflict, "token redemption conflicted, retry once")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "redeem token")
	}
}
