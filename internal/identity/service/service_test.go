package service

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/suite"

	"beantrace/internal/identity/did"
	"beantrace/internal/identity/models"
	"beantrace/internal/identity/store"
	"beantrace/internal/identity/vault"
	"beantrace/internal/platform/logger"
	dErrors "beantrace/pkg/domain-errors"
)

type IdentityServiceSuite struct {
	suite.Suite
	svc *Service
	v   *vault.Vault
}

func TestIdentityServiceSuite(t *testing.T) {
	suite.Run(t, new(IdentityServiceSuite))
}

func (s *IdentityServiceSuite) SetupTest() {
	v, err := vault.New("test-secret")
	s.Require().NoError(err)
	s.v = v
	s.svc = NewService(store.NewInMemory(), v, logger.New())
}

func (s *IdentityServiceSuite) TestCreateIdentityRoundTrip() {
	created, err := s.svc.CreateIdentity(context.Background(), models.RoleFarmer, "")
	s.Require().NoError(err)

	// The DID must decode back to the generated public key.
	pub, err := did.Decode(created.DID)
	s.Require().NoError(err)
	s.Equal(created.PublicKey, []byte(pub))

	// The sealed key must sign payloads that verify under the public key.
	sig, err := s.svc.Sign(context.Background(), created.DID, []byte("payload"))
	s.Require().NoError(err)
	s.True(ed25519.Verify(pub, []byte("payload"), sig))
}

func (s *IdentityServiceSuite) TestCreateIdentityRejectsUnknownRole() {
	_, err := s.svc.CreateIdentity(context.Background(), models.Role("GHOST"), "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *IdentityServiceSuite) TestNewIdentitiesStartUnapproved() {
	created, err := s.svc.CreateIdentity(context.Background(), models.RoleCooperativeManager, "")
	s.Require().NoError(err)

	record, err := s.svc.Get(context.Background(), created.DID)
	s.Require().NoError(err)
	s.False(record.Approved)

	s.Require().NoError(s.svc.Approve(context.Background(), created.DID))
	record, err = s.svc.Get(context.Background(), created.DID)
	s.Require().NoError(err)
	s.True(record.Approved)
}

func (s *IdentityServiceSuite) TestGetUnknownDIDIsNotRegistered() {
	_, err := s.svc.Get(context.Background(), "did:key:zUnknown")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotRegistered))
}

func (s *IdentityServiceSuite) TestSignFailsWithWrongVaultSecret() {
	created, err := s.svc.CreateIdentity(context.Background(), models.RoleExporter, "")
	s.Require().NoError(err)

	otherVault, err := vault.New("different-secret")
	s.Require().NoError(err)

	record, err := s.svc.Get(context.Background(), created.DID)
	s.Require().NoError(err)

	_, err = otherVault.Sign(record.EncryptedPrivateKey, []byte("payload"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeDecryption))
}
