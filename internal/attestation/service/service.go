// Package service drives the attestation session state machine.
//
// A session fixes who is attesting (the verifier identity, checked against
// the role policy) before any token is consumed and long before the decision
// content exists. The outcome's verifierDID therefore always comes from the
// AUTHORIZED binding; the decision payload has no channel to supply one.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"beantrace/internal/attestation/metrics"
	"beantrace/internal/attestation/models"
	"beantrace/internal/attestation/policy"
	"beantrace/internal/attestation/store"
	"beantrace/internal/attestation/tracer"
	credential "beantrace/internal/credential/models"
	identity "beantrace/internal/identity/models"
	"beantrace/internal/sentinel"
	"beantrace/pkg/domain"
	dErrors "beantrace/pkg/domain-errors"
)

// IdentityDirectory resolves verifier identity records. Satisfied by the
// identity service.
type IdentityDirectory interface {
	Get(ctx context.Context, d domain.DID) (*identity.Record, error)
}

// TokenRedeemer consumes a single-use verification token. Satisfied by the
// token service; redemption atomicity lives there, not here.
type TokenRedeemer interface {
	Redeem(ctx context.Context, token string) (string, error)
}

// SubjectResolver maps a redeemed token's subject reference to the subject's
// DID.
type SubjectResolver interface {
	ResolveSubject(ctx context.Context, subjectType models.SubjectType, subjectRef string) (domain.DID, error)
}

// CredentialIssuer signs and persists the credential for a verified decision.
// Satisfied by the credential service.
type CredentialIssuer interface {
	Issue(ctx context.Context, issuer, subject domain.DID, claims credential.ClaimSet) (*credential.Credential, error)
}

// Service runs attestation sessions.
type Service struct {
	sessions   store.Store
	identities IdentityDirectory
	tokens     TokenRedeemer
	subjects   SubjectResolver
	issuer     CredentialIssuer
	sessionTTL time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     tracer.Tracer
	now        func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithSessionTTL overrides the session expiry window when greater than zero.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer sets the tracer used around state transitions.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
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

// NewService constructs the attestation service.
func NewService(
	sessions store.Store,
	identities IdentityDirectory,
	tokens TokenRedeemer,
	subjects SubjectResolver,
	issuer CredentialIssuer,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	svc := &Service{
		sessions:   sessions,
		identities: identities,
		tokens:     tokens,
		subjects:   subjects,
		issuer:     issuer,
		sessionTTL: 30 * time.Minute,
		logger:     logger,
		tracer:     tracer.NewNoop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Begin authenticates and authorizes the acting verifier and opens a session
// in AUTHORIZED state. On any authorization failure nothing is persisted and
// no token is consumed; the caller receives one of not_registered,
// pending_approval, or insufficient_role.
func (s *Service) Begin(ctx context.Context, verifierDID domain.DID, subjectType models.SubjectType) (*models.Session, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanAuthorize,
		tracer.String(tracer.AttrVerifierDID, verifierDID.String()),
		tracer.String(tracer.AttrSubjectType, string(subjectType)),
	)
	session, err := s.begin(ctx, verifierDID, subjectType)
	span.End(err)
	if err != nil && s.metrics != nil {
		s.metrics.AuthFailures.WithLabelValues(string(dErrors.CodeOf(err))).Inc()
	}
	return session, err
}

func (s *Service) begin(ctx context.Context, verifierDID domain.DID, subjectType models.SubjectType) (*models.Session, error) {
	if !subjectType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown subject type: "+string(subjectType))
	}

	record, err := s.identities.Get(ctx, verifierDID)
	if err != nil {
		return nil, err
	}
	if !record.Approved {
		return nil, dErrors.New(dErrors.CodePendingApproval, "identity is awaiting operator approval")
	}
	if !policy.Allows(subjectType, record.Role) {
		return nil, dErrors.New(dErrors.CodeInsufficientRole,
			fmt.Sprintf("role %s may not attest subject type %s", record.Role, subjectType))
	}

	now := s.now().UTC()
	session := &models.Session{
		ID:              domain.NewSessionID(),
		State:           models.StateAuthorized,
		SubjectType:     subjectType,
		VerifierDID:     record.DID,
		VerifierRole:    string(record.Role),
		OrganizationDID: record.OrganizationDID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.sessionTTL),
		UpdatedAt:       now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist session")
	}

	if s.metrics != nil {
		s.metrics.SessionsStarted.Inc()
	}
	s.logger.InfoContext(ctx, "attestation session authorized",
		"session_id", session.ID.String(),
		"verifier_did", session.VerifierDID.String(),
		"subject_type", string(subjectType),
	)
	return session, nil
}

// BindToken redeems the verification token and binds its subject to the
// session, moving it to AWAITING_DECISION. A redemption failure aborts the
// session, carrying the failure's reason; the typed token error is returned
// to the caller unchanged.
func (s *Service) BindToken(ctx context.Context, id domain.SessionID, token string) (*models.Session, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanBindToken,
		tracer.String(tracer.AttrSessionID, id.String()),
		tracer.String(tracer.AttrTokenHash, tracer.HashToken(token)),
	)
	session, err := s.bindToken(ctx, id, token)
	span.End(err)
	return session, err
}

func (s *Service) bindToken(ctx context.Context, id domain.SessionID, token string) (*models.Session, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.State != models.StateAuthorized {
		return nil, dErrors.New(dErrors.CodeInvalidState,
			"session is "+string(session.State)+", expected "+string(models.StateAuthorized))
	}
	if session.Expired(s.now().UTC()) {
		s.abort(ctx, session, "session_expired")
		return nil, dErrors.New(dErrors.CodeInvalidState, "session expired")
	}

	subjectRef, err := s.tokens.Redeem(ctx, token)
	if err != nil {
		s.abort(ctx, session, string(dErrors.CodeOf(err)))
		return nil, err
	}

	subjectDID, err := s.subjects.ResolveSubject(ctx, session.SubjectType, subjectRef)
	if err != nil {
		s.abort(ctx, session, "subject_unresolved")
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "resolve subject "+subjectRef)
	}

	session.SubjectRef = subjectRef
	session.SubjectDID = subjectDID
	session.State = models.StateAwaitingDecision
	session.UpdatedAt = s.now().UTC()
	if err := s.transition(ctx, session, models.StateAuthorized); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "token bound to session",
		"session_id", session.ID.String(),
		"subject_ref", subjectRef,
	)
	return session, nil
}

// SubmitDecision finalizes the session. A VERIFIED decision issues a
// credential whose issuer is the acting organization's DID when the verifier
// acts on an organization's behalf, or the verifier's own DID otherwise. A
// REJECTED decision issues nothing. The outcome's verifier fields are copied
// from the session; any verifier-shaped content in the payload attributes has
// no effect on them.
func (s *Service) SubmitDecision(ctx context.Context, id domain.SessionID, payload models.DecisionPayload) (*models.Outcome, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanFinalize,
		tracer.String(tracer.AttrSessionID, id.String()),
		tracer.String(tracer.AttrDecision, string(payload.Decision)),
	)
	outcome, err := s.submitDecision(ctx, id, payload, span)
	span.End(err)
	if s.metrics != nil {
		s.metrics.FinalizeLatency.Observe(s.now().Sub(start).Seconds())
		if err == nil {
			s.metrics.SessionsFinalized.WithLabelValues(string(outcome.Decision)).Inc()
		}
	}
	return outcome, err
}

func (s *Service) submitDecision(ctx context.Context, id domain.SessionID, payload models.DecisionPayload, span tracer.Span) (*models.Outcome, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.State != models.StateAwaitingDecision {
		return nil, dErrors.New(dErrors.CodeInvalidState,
			"session is "+string(session.State)+", expected "+string(models.StateAwaitingDecision))
	}
	if session.Expired(s.now().UTC()) {
		s.abort(ctx, session, "session_expired")
		return nil, dErrors.New(dErrors.CodeInvalidState, "session expired")
	}

	var credentialID string
	switch payload.Decision {
	case models.DecisionVerified:
		cred, err := s.finalizeVerified(ctx, session, payload)
		if err != nil {
			return nil, err
		}
		credentialID = cred.ID
		span.AddEvent(tracer.EventCredentialIssued, tracer.String("credential_id", cred.ID))
	case models.DecisionRejected:
		session.State = models.StateFinalizedRejected
		session.UpdatedAt = s.now().UTC()
		if err := s.transition(ctx, session, models.StateAwaitingDecision); err != nil {
			return nil, err
		}
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown decision: "+string(payload.Decision))
	}

	s.logger.InfoContext(ctx, "attestation session finalized",
		"session_id", session.ID.String(),
		"decision", string(payload.Decision),
		"verifier_did", session.VerifierDID.String(),
		"credential_id", credentialID,
	)
	return &models.Outcome{
		SessionID:       session.ID,
		VerifierDID:     session.VerifierDID,
		VerifierRole:    session.VerifierRole,
		OrganizationDID: session.OrganizationDID,
		Decision:        payload.Decision,
		EvidenceRefs:    payload.EvidenceRefs,
		CredentialID:    credentialID,
	}, nil
}

// Abort moves a non-final session to ABORTED with a reason. Abandonment
// timeouts use this path; it has no side effects beyond the state change.
func (s *Service) Abort(ctx context.Context, id domain.SessionID, reason string) error {
	ctx, span := s.tracer.Start(ctx, tracer.SpanAbort,
		tracer.String(tracer.AttrSessionID, id.String()),
	)
	session, err := s.load(ctx, id)
	if err == nil {
		if session.State.Final() {
			err = dErrors.New(dErrors.CodeInvalidState, "session already finalized")
		} else {
			err = s.abort(ctx, session, reason)
		}
	}
	span.End(err)
	return err
}

// Get loads a session by ID.
func (s *Service) Get(ctx context.Context, id domain.SessionID) (*models.Session, error) {
	return s.load(ctx, id)
}

// finalizeVerified wins the session before any credential exists. The CAS
// out of AWAITING_DECISION into FINALIZING is the serialization point: of N
// concurrent submitters exactly one reaches the issuer, so one redeemed token
// cannot yield two credentials. An issue failure hands the session back to
// AWAITING_DECISION so the verifier can resubmit.
func (s *Service) finalizeVerified(ctx context.Context, session *models.Session, payload models.DecisionPayload) (*credential.Credential, error) {
	claims, err := s.claimsFor(session, payload)
	if err != nil {
		return nil, err
	}

	session.State = models.StateFinalizing
	session.UpdatedAt = s.now().UTC()
	if err := s.transition(ctx, session, models.StateAwaitingDecision); err != nil {
		return nil, err
	}

	// Attesting on an organization's behalf makes the organization the
	// issuer of record.
	issuerDID := session.VerifierDID
	if !session.OrganizationDID.IsZero() {
		issuerDID = session.OrganizationDID
	}
	cred, err := s.issuer.Issue(ctx, issuerDID, session.SubjectDID, claims)
	if err != nil {
		session.State = models.StateAwaitingDecision
		session.UpdatedAt = s.now().UTC()
		if revertErr := s.sessions.Update(ctx, session, models.StateFinalizing); revertErr != nil {
			s.logger.ErrorContext(ctx, "revert session after issue failure",
				"session_id", session.ID.String(),
				"error", revertErr,
			)
		}
		return nil, err
	}

	session.State = models.StateFinalizedVerified
	session.UpdatedAt = s.now().UTC()
	if err := s.transition(ctx, session, models.StateFinalizing); err != nil {
		return nil, err
	}
	return cred, nil
}

func (s *Service) transition(ctx context.Context, session *models.Session, from models.State) error {
	if err := s.sessions.Update(ctx, session, from); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeConcurrencyConflict, "session transitioned concurrently")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist session")
	}
	return nil
}

// claimsFor builds the typed claim set for the session's subject type. The
// subject reference always comes from the bound token, never from the
// payload, for the same reason the verifier DID does.
func (s *Service) claimsFor(session *models.Session, payload models.DecisionPayload) (credential.ClaimSet, error) {
	attrs := make(map[string]any, len(payload.Attributes)+2)
	for k, v := range payload.Attributes {
		attrs[k] = v
	}
	if payload.Notes != "" {
		attrs["notes"] = payload.Notes
	}

	switch session.SubjectType {
	case models.SubjectBatch:
		attrs["batch_ref"] = session.SubjectRef
		return credential.BatchAttestationClaimsFromMap(attrs)
	case models.SubjectFarmerRegistration:
		attrs["actor_ref"] = session.SubjectRef
		return credential.RegistrationClaimsFromMap(attrs)
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown subject type: "+string(session.SubjectType))
	}
}

func (s *Service) abort(ctx context.Context, session *models.Session, reason string) error {
	from := session.State
	session.State = models.StateAborted
	session.AbortReason = reason
	session.UpdatedAt = s.now().UTC()
	if err := s.sessions.Update(ctx, session, from); err != nil {
		s.logger.ErrorContext(ctx, "abort session failed",
			"session_id", session.ID.String(),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "abort session")
	}
	if s.metrics != nil {
		s.metrics.SessionsAborted.WithLabelValues(reason).Inc()
	}
	s.logger.WarnContext(ctx, "attestation session aborted",
		"session_id", session.ID.String(),
		"reason", reason,
	)
	return nil
}

func (s *Service) load(ctx context.Context, id domain.SessionID) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load session")
	}
	return session, nil
}
