package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"beantrace/internal/attestation/models"
	attStore "beantrace/internal/attestation/store"
	credModels "beantrace/internal/credential/models"
	credService "beantrace/internal/credential/service"
	credStore "beantrace/internal/credential/store"
	identityModels "beantrace/internal/identity/models"
	identityService "beantrace/internal/identity/service"
	identityStore "beantrace/internal/identity/store"
	"beantrace/internal/identity/vault"
	"beantrace/internal/platform/logger"
	tokenService "beantrace/internal/token/service"
	tokenStore "beantrace/internal/token/store"
	"beantrace/pkg/domain"
	dErrors "beantrace/pkg/domain-errors"
)

// staticResolver maps subject references to DIDs, as the batch directory
// would in production.
type staticResolver struct {
	subjects map[string]domain.DID
}

func (r *staticResolver) ResolveSubject(_ context.Context, _ models.SubjectType, ref string) (domain.DID, error) {
	d, ok := r.subjects[ref]
	if !ok {
		return "", fmt.Errorf("unknown subject %s", ref)
	}
	return d, nil
}

type AttestationServiceSuite struct {
	suite.Suite
	ctx context.Context

	identities  *identityService.Service
	tokens      *tokenService.Service
	credentials *credService.Service
	credStore   credStore.Store
	resolver    *staticResolver
	svc         *Service

	managerDID domain.DID
	buyerDID   domain.DID
	farmerDID  domain.DID
	orgDID     domain.DID
}

func TestAttestationServiceSuite(t *testing.T) {
	suite.Run(t, new(AttestationServiceSuite))
}

func (s *AttestationServiceSuite) SetupTest() {
	s.ctx = context.Background()
	log := logger.New()

	v, err := vault.New("test-secret")
	s.Require().NoError(err)
	s.identities = identityService.NewService(identityStore.NewInMemory(), v, log)
	s.tokens = tokenService.NewService(tokenStore.NewInMemory(), log)
	s.credStore = credStore.NewInMemory()
	s.credentials = credService.NewService(s.credStore, s.identities, log)

	org, err := s.identities.CreateIdentity(s.ctx, identityModels.RoleCooperativeManager, "")
	s.Require().NoError(err)
	s.Require().NoError(s.identities.Approve(s.ctx, org.DID))
	s.orgDID = org.DID

	manager, err := s.identities.CreateIdentity(s.ctx, identityModels.RoleCooperativeManager, s.orgDID)
	s.Require().NoError(err)
	s.Require().NoError(s.identities.Approve(s.ctx, manager.DID))
	s.managerDID = manager.DID

	buyer, err := s.identities.CreateIdentity(s.ctx, identityModels.RoleBuyer, "")
	s.Require().NoError(err)
	s.Require().NoError(s.identities.Approve(s.ctx, buyer.DID))
	s.buyerDID = buyer.DID

	farmer, err := s.identities.CreateIdentity(s.ctx, identityModels.RoleFarmer, "")
	s.Require().NoError(err)
	s.farmerDID = farmer.DID

	s.resolver = &staticResolver{subjects: map[string]domain.DID{
		"BATCH-1":  s.farmerDID,
		"FARMER-7": s.farmerDID,
	}}
	s.svc = NewService(
		attStore.NewInMemory(),
		s.identities,
		s.tokens,
		s.resolver,
		s.credentials,
		log,
	)
}

func (s *AttestationServiceSuite) issueToken(subjectRef string) string {
	token, err := s.tokens.Issue(s.ctx, subjectRef, 48*time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *AttestationServiceSuite) TestFullVerifiedFlow() {
	token := s.issueToken("BATCH-1")

	session, err := s.svc.Begin(s.ctx, s.managerDID, models.SubjectBatch)
	s.Require().NoError(err)
	s.Equal(models.StateAuthorized, session.State)
	s.Equal(s.managerDID, session.VerifierDID)

	session, err = s.svc.BindToken(s.ctx, session.ID, token)
	s.Require().NoError(err)
	s.Equal(models.StateAwaitingDecision, session.State)
	s.Equal("BATCH-1", session.SubjectRef)
	s.Equal(s.farmerDID, session.SubjectDID)

	outcome, err := s.svc.SubmitDecision(s.ctx, session.ID, models.DecisionPayload{
		Decision: models.DecisionVerified,
		Attributes: map[string]any{
			"quantity_kg": 120.5,
			"process":     "washed",
			"grade":       "AA",
		},
		EvidenceRefs: []string{"photo:123"},
	})
	s.Require().NoError(err)
	s.Equal(models.DecisionVerified, outcome.Decision)
	s.Equal(s.managerDID, outcome.VerifierDID)
	s.Equal(s.orgDID, outcome.OrganizationDID)
	s.Require().NotEmpty(outcome.CredentialID)

	// Organization is the issuer of record and the credential verifies.
	cred, err := s.credentials.VerifyStored(s.ctx, outcome.CredentialID)
	s.Require().NoError(err)
	s.Equal(s.orgDID, cred.IssuerDID)
	s.Equal(s.farmerDID, cred.SubjectDID)
	s.Equal("BATCH-1", cred.Claims["batch_ref"])
	s.True(cred.IsThirdParty())
}

func (s *AttestationServiceSuite) TestInsufficientRoleConsumesNoToken() {
	token := s.issueToken("BATCH-1")

	_, err := s.svc.Begin(s.ctx, s.buyerDID, models.SubjectBatch)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientRole))

	// The token survives the failed authorization untouched.
	subjectRef, err := s.tokens.Redeem(s.ctx, token)
	s.Require().NoError(err)
	s.Equal("BATCH-1", subjectRef)
}

func (s *AttestationServiceSuite) TestUnapprovedVerifierIsPendingApproval() {
	_, err := s.svc.Begin(s.ctx, s.farmerDID, models.SubjectFarmerRegistration)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePendingApproval))
}

func (s *AttestationServiceSuite) TestUnknownVerifierIsNotRegistered() {
	_, err := s.svc.Begin(s.ctx, "did:key:zUnknown", models.SubjectBatch)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotRegistered))
}

func (s *AttestationServiceSuite) TestVerifierFixedAtAuthorization() {
	token := s.issueToken("BATCH-1")

	session, err := s.svc.Begin(s.ctx, s.managerDID, models.SubjectBatch)
	s.Require().NoError(err)
	_, err = s.svc.BindToken(s.ctx, session.ID, token)
	s.Require().NoError(err)

	// DID-shaped strings in the payload have no channel into the outcome.
	outcome, err := s.svc.SubmitDecision(s.ctx, session.ID, models.DecisionPayload{
		Decision: models.DecisionVerified,
		Attributes: map[string]any{
			"quantity_kg":  50.0,
			"verifier_did": s.buyerDID.String(),
			"verifierDID":  s.buyerDID.String(),
		},
	})
	s.Require().NoError(err)
	s.Equal(s.managerDID, outcome.VerifierDID)
}

func (s *AttestationServiceSuite) TestRejectedIssuesNoCredential() {
	token := s.issueToken("BATCH-1")

	session, err := s.svc.Begin(s.ctx, s.managerDID, models.SubjectBatch)
	s.Require().NoError(err)
	_, err = s.svc.BindToken(s.ctx, session.ID, token)
	s.Require().NoError(err)

	outcome, err := s.svc.SubmitDecision(s.ctx, session.ID, models.DecisionPayload{
		Decision: models.DecisionRejected,
		Reason:   "moisture content out of range",
	})
	s.Require().NoError(err)
	s.Equal(models.DecisionRejected, outcome.Decision)
	s.Empty(outcome.CredentialID)

	creds, err := s.credStore.ListBySubject(s.ctx, s.farmerDID)
	s.Require().NoError(err)
	s.Empty(creds)

	session, err = s.svc.Get(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(models.StateFinalizedRejected, session.State)
}

func (s *AttestationServiceSuite) TestBindFailureAbortsSession() {
	session, err := s.svc.Begin(s.ctx, s.managerDID, models.SubjectBatch)
	s.Require().NoError(err)

	_, err = s.svc.BindToken(s.ctx, session.ID, "no-such-token")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTokenNotFound))

	session, err = s.svc.Get(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(models.StateAborted, session.State)
	s.Equal("token_not_found", session.AbortReason)
}

func (s *AttestationServiceSuite) TestDoubleRedemptionAbortsSecondSession() {
	token := s.issueToken("BATCH-1")

	first, err := s.svc.Begin(s.ctx, s.managerDID, models.SubjectBatch)
	s.Require().NoError(err)
	second, err := s.svc.Begin(s.ctx, s.managerDID, models.SubjectBatch)
	s.Require().NoError(err)

	_, err = s.svc.BindToken(s.ctx, first.ID, token)
	s.Require().NoError(err)

	_, err = s.svc.BindToken(s.ctx, second.ID, token)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTokenAlreadyUsed))

	second, err = s.svc.Get(s.ctx, second.ID)
	s.Require().NoError(err)
	s.Equal(models.StateAborted, second.State)
	s.Equal("token_already_used", second.AbortReason)
}

func (s *AttestationServiceSuite) TestConcurrentDecisionsIssueOneCredential() {
	token := s.issueToken("BATCH-1")

	session, err := s.svc.Begin(s.ctx, s.managerDID, models.SubjectBatch)
	s.Require().NoError(err)
	_, err = s.svc.BindToken(s.ctx, session.ID, token)
	s.Require().NoError(err)

	// Distinct quantities give each would-be credential a distinct content
	// ID, so a second issuance could not hide behind idempotent Save.
	const submitters = 8
	errs := make([]error, submitters)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = s.svc.SubmitDecision(s.ctx, session.ID, models.DecisionPayload{
				Decision:   models.DecisionVerified,
				Attributes: map[string]any{"quantity_kg": float64(10 + i)},
			})
		}(i)
	}
	close(start)
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		s.True(
			dErrors.HasCode(err, dErrors.CodeConcurrencyConflict) || dErrors.HasCode(err, dErrors.CodeInvalidState),
			"unexpected error: %v", err,
		)
	}
	s.Equal(1, successes)

	creds, err := s.credStore.ListBySubject(s.ctx, s.farmerDID)
	s.Require().NoError(err)
	s.Len(creds, 1)

	session, err = s.svc.Get(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(models.StateFinalizedVerified, session.State)
}

func (s *AttestationServiceSuite) TestDecisionBeforeBindIsInvalidState() {
	session, err := s.svc.Begin(s.ctx, s.managerDID, models.SubjectBatch)
	s.Require().NoError(err)

	_, err = s.svc.SubmitDecision(s.ctx, session.ID, models.DecisionPayload{
		Decision: models.DecisionVerified,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *AttestationServiceSuite) TestDoubleFinalizeIsInvalidState() {
	token := s.issueToken("BATCH-1")

	session, err := s.svc.Begin(s.ctx, s.managerDID, models.SubjectBatch)
	s.Require().NoError(err)
	_, err = s.svc.BindToken(s.ctx, session.ID, token)
	s.Require().NoError(err)

	_, err = s.svc.SubmitDecision(s.ctx, session.ID, models.DecisionPayload{Decision: models.DecisionRejected})
	s.Require().NoError(err)

	_, err = s.svc.SubmitDecision(s.ctx, session.ID, models.DecisionPayload{Decision: models.DecisionVerified})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *AttestationServiceSuite) TestExpiredSessionAbortsOnBind() {
	base := time.Now().UTC()
	current := base
	svc := NewService(
		attStore.NewInMemory(),
		s.identities,
		s.tokens,
		s.resolver,
		s.credentials,
		logger.New(),
		WithSessionTTL(10*time.Minute),
		WithClock(func() time.Time { return current }),
	)

	token := s.issueToken("BATCH-1")
	session, err := svc.Begin(s.ctx, s.managerDID, models.SubjectBatch)
	s.Require().NoError(err)

	current = base.Add(11 * time.Minute)
	_, err = svc.BindToken(s.ctx, session.ID, token)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	session, err = svc.Get(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(models.StateAborted, session.State)
	s.Equal("session_expired", session.AbortReason)
}

func (s *AttestationServiceSuite) TestRegistrationSubjectType() {
	token := s.issueToken("FARMER-7")

	session, err := s.svc.Begin(s.ctx, s.managerDID, models.SubjectFarmerRegistration)
	s.Require().NoError(err)
	_, err = s.svc.BindToken(s.ctx, session.ID, token)
	s.Require().NoError(err)

	outcome, err := s.svc.SubmitDecision(s.ctx, session.ID, models.DecisionPayload{
		Decision: models.DecisionVerified,
		Attributes: map[string]any{
			"role":   string(identityModels.RoleFarmer),
			"region": "Sidama",
		},
	})
	s.Require().NoError(err)

	cred, err := s.credentials.VerifyStored(s.ctx, outcome.CredentialID)
	s.Require().NoError(err)
	s.Equal(credModels.TypeRegistration, cred.Claims[credModels.ClaimCredentialType])
	s.Equal("FARMER-7", cred.Claims["actor_ref"])
}
