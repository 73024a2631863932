// Package service computes reputation scores on demand. The score is never
// stored; the credential set is the source of truth.
package service

import (
	"context"
	"log/slog"

	credential "beantrace/internal/credential/models"
	"beantrace/internal/credential/store"
	"beantrace/internal/reputation/scorer"
	"beantrace/pkg/domain"
	dErrors "beantrace/pkg/domain-errors"
)

// Service derives reputation scores from the credential store.
type Service struct {
	credentials store.Store
	logger      *slog.Logger
}

// NewService constructs the reputation service.
func NewService(credentials store.Store, logger *slog.Logger) *Service {
	return &Service{credentials: credentials, logger: logger}
}

// Score computes the subject's reputation from its non-revoked credentials.
func (s *Service) Score(ctx context.Context, subject domain.DID) (scorer.Score, error) {
	creds, err := s.credentials.ListBySubject(ctx, subject)
	if err != nil {
		return scorer.Score{}, dErrors.Wrap(err, dErrors.CodeInternal, "list credentials")
	}

	inputs := make([]scorer.Input, 0, len(creds))
	for _, cred := range creds {
		if cred.Revoked {
			continue
		}
		inputs = append(inputs, scorer.Input{
			IssuanceDate: cred.IssuanceDate,
			QuantityKG:   quantityOf(cred.Claims),
		})
	}

	score := scorer.Compute(inputs)
	s.logger.DebugContext(ctx, "reputation computed",
		"subject_did", subject.String(),
		"value", score.Value,
		"credentials", score.CredentialCount,
	)
	return score, nil
}

func quantityOf(claims map[string]any) float64 {
	switch v := claims[credential.ClaimQuantityKG].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
