// Package jwtauth authenticates the transport channel.
//
// Transports (chat bot, web form) obtain a short-lived bearer token naming
// the acting identity. The attestation endpoints trust only this channel
// identity; nothing in a request body can claim a different verifier DID.
package jwtauth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"beantrace/pkg/domain"
	dErrors "beantrace/pkg/domain-errors"
)

// ChannelClaims are the JWT claims for a channel token.
type ChannelClaims struct {
	ActorDID string `json:"actor_did"`
	Channel  string `json:"channel,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and validates channel tokens.
type Service struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
	now        func() time.Time
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

// NewService constructs the channel token service.
func NewService(signingKey string, tokenTTL time.Duration, opts ...Option) (*Service, error) {
	if signingKey == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signing key is required")
	}
	svc := &Service{
		signingKey: []byte(signingKey),
		issuer:     "beantrace",
		tokenTTL:   tokenTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Generate issues a channel token for the acting identity.
func (s *Service) Generate(actorDID domain.DID, channel string) (string, error) {
	if actorDID.IsZero() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "actor DID is required")
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate jti")
	}
	now := s.now().UTC()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ChannelClaims{
		ActorDID: actorDID.String(),
		Channel:  channel,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorDID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        hex.EncodeToString(b),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign channel token")
	}
	return signed, nil
}

// Validate parses a channel token and returns its claims. Signature,
// algorithm, expiry, and issuer are all checked; failure is never treated as
// an anonymous success.
func (s *Service) Validate(tokenString string) (*ChannelClaims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "empty token")
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &ChannelClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "channel token expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid channel token")
	}

	claims, ok := parsed.Claims.(*ChannelClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid channel token claims")
	}
	if _, err := domain.ParseDID(claims.ActorDID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "channel token carries no valid actor DID")
	}
	return claims, nil
}
