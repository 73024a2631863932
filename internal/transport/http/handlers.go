package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"beantrace/internal/attestation/directory"
	attModels "beantrace/internal/attestation/models"
	attService "beantrace/internal/attestation/service"
	credModels "beantrace/internal/credential/models"
	credService "beantrace/internal/credential/service"
	identityModels "beantrace/internal/identity/models"
	identityService "beantrace/internal/identity/service"
	"beantrace/internal/reputation/scorer"
	reputationService "beantrace/internal/reputation/service"
	tokenService "beantrace/internal/token/service"
	"beantrace/internal/transport/http/shared"
	"beantrace/internal/transport/http/shared/json"
	"beantrace/pkg/domain"
	dErrors "beantrace/pkg/domain-errors"
	"beantrace/pkg/requestcontext"
	"beantrace/pkg/validation"
)

// defaultTokenTTL applies when a token request omits ttl_seconds.
const defaultTokenTTL = 48 * time.Hour

// Handler is the thin HTTP layer. It delegates to domain services; no
// business rule lives here.
type Handler struct {
	identities   *identityService.Service
	tokens       *tokenService.Service
	attestations *attService.Service
	credentials  *credService.Service
	reputation   *reputationService.Service
	subjects     *directory.InMemory
	logger       *slog.Logger
	tokenTTL     time.Duration
}

// HandlerOption configures the Handler.
type HandlerOption func(*Handler)

// WithTokenTTL overrides the default expiry for tokens issued without an
// explicit ttl_seconds.
func WithTokenTTL(ttl time.Duration) HandlerOption {
	return func(h *Handler) {
		if ttl > 0 {
			h.tokenTTL = ttl
		}
	}
}

// NewHandler constructs the HTTP handler over the domain services.
func NewHandler(
	identities *identityService.Service,
	tokens *tokenService.Service,
	attestations *attService.Service,
	credentials *credService.Service,
	reputation *reputationService.Service,
	subjects *directory.InMemory,
	logger *slog.Logger,
	opts ...HandlerOption,
) *Handler {
	h := &Handler{
		identities:   identities,
		tokens:       tokens,
		attestations: attestations,
		credentials:  credentials,
		reputation:   reputation,
		subjects:     subjects,
		logger:       logger,
		tokenTTL:     defaultTokenTTL,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type createIdentityRequest struct {
	Role            string `json:"role" validate:"required,notblank"`
	OrganizationDID string `json:"organization_did,omitempty"`
}

type createIdentityResponse struct {
	DID       string `json:"did"`
	PublicKey []byte `json:"public_key"`
}

func (h *Handler) handleCreateIdentity(w http.ResponseWriter, r *http.Request) {
	var req createIdentityRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := validation.Validate(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	var orgDID domain.DID
	if req.OrganizationDID != "" {
		var err error
		if orgDID, err = domain.ParseDID(req.OrganizationDID); err != nil {
			shared.WriteError(w, err)
			return
		}
	}

	created, err := h.identities.CreateIdentity(r.Context(), identityModels.Role(req.Role), orgDID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusCreated, createIdentityResponse{
		DID:       created.DID.String(),
		PublicKey: created.PublicKey,
	})
}

func (h *Handler) handleApproveIdentity(w http.ResponseWriter, r *http.Request) {
	d, err := domain.ParseDID(chi.URLParam(r, "did"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.identities.Approve(r.Context(), d); err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]string{"did": d.String(), "status": "approved"})
}

type issueTokenRequest struct {
	SubjectRef  string `json:"subject_ref" validate:"required,notblank"`
	SubjectType string `json:"subject_type" validate:"required,oneof=BATCH FARMER_REGISTRATION"`
	SubjectDID  string `json:"subject_did" validate:"required,notblank"`
	TTLSeconds  int64  `json:"ttl_seconds" validate:"min=0"`
}

// handleIssueToken mints a verification token and records which DID owns the
// subject, so the attestation session can later resolve the redeemed token to
// a credential subject.
func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := validation.Validate(req); err != nil {
		shared.WriteError(w, err)
		return
	}
	subjectDID, err := domain.ParseDID(req.SubjectDID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	if req.TTLSeconds == 0 {
		ttl = h.tokenTTL
	}

	token, err := h.tokens.Issue(r.Context(), req.SubjectRef, ttl)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.subjects.Register(r.Context(), attModels.SubjectType(req.SubjectType), req.SubjectRef, subjectDID); err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "register subject"))
		return
	}
	json.WriteJSON(w, http.StatusCreated, map[string]string{"token": token})
}

type redeemTokenRequest struct {
	Token string `json:"token" validate:"required,notblank"`
}

func (h *Handler) handleRedeemToken(w http.ResponseWriter, r *http.Request) {
	var req redeemTokenRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := validation.Validate(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	subjectRef, err := h.tokens.Redeem(r.Context(), req.Token)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]string{"subject_ref": subjectRef})
}

type beginAttestationRequest struct {
	SubjectType string `json:"subject_type" validate:"required,oneof=BATCH FARMER_REGISTRATION"`
}

type sessionResponse struct {
	SessionID   string `json:"session_id"`
	State       string `json:"state"`
	SubjectType string `json:"subject_type"`
	SubjectRef  string `json:"subject_ref,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

func toSessionResponse(s *attModels.Session) sessionResponse {
	return sessionResponse{
		SessionID:   s.ID.String(),
		State:       string(s.State),
		SubjectType: string(s.SubjectType),
		SubjectRef:  s.SubjectRef,
		ExpiresAt:   s.ExpiresAt.Format(time.RFC3339),
	}
}

// handleBeginAttestation opens a session for the channel-authenticated
// identity. The acting DID comes from the bearer token, never the body.
func (h *Handler) handleBeginAttestation(w http.ResponseWriter, r *http.Request) {
	actorDID, ok := requestcontext.ActorDID(r.Context())
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no authenticated channel identity"))
		return
	}

	var req beginAttestationRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := validation.Validate(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	session, err := h.attestations.Begin(r.Context(), actorDID, attModels.SubjectType(req.SubjectType))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusCreated, toSessionResponse(session))
}

type bindTokenRequest struct {
	Token string `json:"token" validate:"required,notblank"`
}

func (h *Handler) handleBindToken(w http.ResponseWriter, r *http.Request) {
	sessionID, err := domain.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req bindTokenRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := validation.Validate(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	session, err := h.attestations.BindToken(r.Context(), sessionID, req.Token)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, toSessionResponse(session))
}

// submitDecisionRequest deliberately has no verifier field; the verifier was
// fixed when the session was authorized.
type submitDecisionRequest struct {
	Decision     string         `json:"decision" validate:"required,oneof=VERIFIED REJECTED"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	EvidenceRefs []string       `json:"evidence_refs,omitempty"`
	Reason       string         `json:"reason,omitempty"`
}

type outcomeResponse struct {
	SessionID       string   `json:"session_id"`
	VerifierDID     string   `json:"verifier_did"`
	VerifierRole    string   `json:"verifier_role"`
	OrganizationDID string   `json:"organization_did,omitempty"`
	Decision        string   `json:"decision"`
	EvidenceRefs    []string `json:"evidence_refs,omitempty"`
	CredentialID    string   `json:"credential_id,omitempty"`
}

func (h *Handler) handleSubmitDecision(w http.ResponseWriter, r *http.Request) {
	sessionID, err := domain.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req submitDecisionRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := validation.Validate(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	outcome, err := h.attestations.SubmitDecision(r.Context(), sessionID, attModels.DecisionPayload{
		Decision:     attModels.Decision(req.Decision),
		Attributes:   req.Attributes,
		Notes:        req.Notes,
		EvidenceRefs: req.EvidenceRefs,
		Reason:       req.Reason,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, outcomeResponse{
		SessionID:       outcome.SessionID.String(),
		VerifierDID:     outcome.VerifierDID.String(),
		VerifierRole:    outcome.VerifierRole,
		OrganizationDID: outcome.OrganizationDID.String(),
		Decision:        string(outcome.Decision),
		EvidenceRefs:    outcome.EvidenceRefs,
		CredentialID:    outcome.CredentialID,
	})
}

type verifyCredentialRequest struct {
	Credential *credModels.Credential `json:"credential" validate:"required"`
}

func (h *Handler) handleVerifyCredential(w http.ResponseWriter, r *http.Request) {
	var req verifyCredentialRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := validation.Validate(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.credentials.Verify(r.Context(), req.Credential); err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]any{
		"valid":         true,
		"credential_id": req.Credential.ID,
		"third_party":   req.Credential.IsThirdParty(),
	})
}

type reputationResponse struct {
	DID   string       `json:"did"`
	Score scorer.Score `json:"score"`
}

func (h *Handler) handleReputation(w http.ResponseWriter, r *http.Request) {
	d, err := domain.ParseDID(chi.URLParam(r, "did"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	score, err := h.reputation.Score(r.Context(), d)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, reputationResponse{DID: d.String(), Score: score})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	json.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
