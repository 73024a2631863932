// Package seeder populates a development instance with sample identities so
// the attestation flow can be exercised end to end without an onboarding UI.
package seeder

import (
	"context"
	"log/slog"
	"time"

	"beantrace/internal/attestation/directory"
	attModels "beantrace/internal/attestation/models"
	identityModels "beantrace/internal/identity/models"
	identityService "beantrace/internal/identity/service"
	"beantrace/internal/jwtauth"
	tokenService "beantrace/internal/token/service"
)

// Seeder creates the sample fixtures.
type Seeder struct {
	identities *identityService.Service
	tokens     *tokenService.Service
	subjects   *directory.InMemory
	channel    *jwtauth.Service
	logger     *slog.Logger
}

// New constructs a Seeder.
func New(
	identities *identityService.Service,
	tokens *tokenService.Service,
	subjects *directory.InMemory,
	channel *jwtauth.Service,
	logger *slog.Logger,
) *Seeder {
	return &Seeder{identities: identities, tokens: tokens, subjects: subjects, channel: channel, logger: logger}
}

// Run creates an approved cooperative, an approved manager belonging to it,
// an unapproved farmer, and one verification token, then logs a channel
// bearer token for the manager. Dev mode only; secrets in logs are
// acceptable there and nowhere else.
func (s *Seeder) Run(ctx context.Context) error {
	org, err := s.identities.CreateIdentity(ctx, identityModels.RoleCooperativeManager, "")
	if err != nil {
		return err
	}
	if err := s.identities.Approve(ctx, org.DID); err != nil {
		return err
	}

	manager, err := s.identities.CreateIdentity(ctx, identityModels.RoleCooperativeManager, org.DID)
	if err != nil {
		return err
	}
	if err := s.identities.Approve(ctx, manager.DID); err != nil {
		return err
	}

	farmer, err := s.identities.CreateIdentity(ctx, identityModels.RoleFarmer, "")
	if err != nil {
		return err
	}

	token, err := s.tokens.Issue(ctx, "BATCH-1", 48*time.Hour)
	if err != nil {
		return err
	}
	if err := s.subjects.Register(ctx, attModels.SubjectBatch, "BATCH-1", farmer.DID); err != nil {
		return err
	}

	bearer, err := s.channel.Generate(manager.DID, "seed")
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "development fixtures seeded",
		"org_did", org.DID.String(),
		"manager_did", manager.DID.String(),
		"farmer_did", farmer.DID.String(),
		"verification_token", token,
		"channel_bearer", bearer,
	)
	return nil
}
