package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"beantrace/internal/attestation/directory"
	attService "beantrace/internal/attestation/service"
	attStore "beantrace/internal/attestation/store"
	credService "beantrace/internal/credential/service"
	credStore "beantrace/internal/credential/store"
	identityModels "beantrace/internal/identity/models"
	identityService "beantrace/internal/identity/service"
	identityStore "beantrace/internal/identity/store"
	"beantrace/internal/identity/vault"
	"beantrace/internal/jwtauth"
	"beantrace/internal/platform/logger"
	reputationService "beantrace/internal/reputation/service"
	tokenService "beantrace/internal/token/service"
	tokenStore "beantrace/internal/token/store"
	"beantrace/pkg/domain"
)

type TransportSuite struct {
	suite.Suite
	ctx    context.Context
	server *httptest.Server

	identities  *identityService.Service
	channelAuth *jwtauth.Service

	managerDID domain.DID
	farmerDID  domain.DID
}

func TestTransportSuite(t *testing.T) {
	suite.Run(t, new(TransportSuite))
}

func (s *TransportSuite) SetupTest() {
	s.ctx = context.Background()
	log := logger.New()

	v, err := vault.New("test-secret")
	s.Require().NoError(err)
	s.identities = identityService.NewService(identityStore.NewInMemory(), v, log)
	tokens := tokenService.NewService(tokenStore.NewInMemory(), log)
	credentials := credStore.NewInMemory()
	credentialSvc := credService.NewService(credentials, s.identities, log)
	subjects := directory.NewInMemory()
	attestations := attService.NewService(
		attStore.NewInMemory(), s.identities, tokens, subjects, credentialSvc, log,
	)
	reputation := reputationService.NewService(credentials, log)

	s.channelAuth, err = jwtauth.NewService("test-signing-key", time.Hour)
	s.Require().NoError(err)

	handler := NewHandler(s.identities, tokens, attestations, credentialSvc, reputation, subjects, log)
	s.server = httptest.NewServer(NewRouter(handler, s.channelAuth, log))

	manager, err := s.identities.CreateIdentity(s.ctx, identityModels.RoleCooperativeManager, "")
	s.Require().NoError(err)
	s.Require().NoError(s.identities.Approve(s.ctx, manager.DID))
	s.managerDID = manager.DID

	farmer, err := s.identities.CreateIdentity(s.ctx, identityModels.RoleFarmer, "")
	s.Require().NoError(err)
	s.farmerDID = farmer.DID
}

func (s *TransportSuite) TearDownTest() {
	s.server.Close()
}

func (s *TransportSuite) post(path string, body map[string]any, bearer string) (*http.Response, map[string]any) {
	payload, err := json.Marshal(body)
	s.Require().NoError(err)

	req, err := http.NewRequest(http.MethodPost, s.server.URL+path, bytes.NewReader(payload))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close() //nolint:errcheck

	var decoded map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (s *TransportSuite) get(path string) (*http.Response, map[string]any) {
	resp, err := s.server.Client().Get(s.server.URL + path)
	s.Require().NoError(err)
	defer resp.Body.Close() //nolint:errcheck

	var decoded map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (s *TransportSuite) TestCreateIdentity() {
	resp, body := s.post("/v1/identities", map[string]any{"role": "FARMER"}, "")
	s.Equal(http.StatusCreated, resp.StatusCode)
	s.Contains(body["did"], "did:key:z")
}

func (s *TransportSuite) TestCreateIdentityUnknownRole() {
	resp, body := s.post("/v1/identities", map[string]any{"role": "GHOST"}, "")
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal("invalid_input", body["error"])
}

func (s *TransportSuite) TestAttestationRequiresChannelAuth() {
	resp, body := s.post("/v1/attestations", map[string]any{"subject_type": "BATCH"}, "")
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Equal("unauthorized", body["error"])
}

func (s *TransportSuite) TestFullAttestationFlow() {
	resp, body := s.post("/v1/tokens", map[string]any{
		"subject_ref":  "BATCH-9",
		"subject_type": "BATCH",
		"subject_did":  s.farmerDID.String(),
		"ttl_seconds":  3600,
	}, "")
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	token := body["token"].(string)
	s.Require().NotEmpty(token)

	bearer, err := s.channelAuth.Generate(s.managerDID, "webform")
	s.Require().NoError(err)

	resp, body = s.post("/v1/attestations", map[string]any{"subject_type": "BATCH"}, bearer)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	sessionID := body["session_id"].(string)
	s.Equal("AUTHORIZED", body["state"])

	resp, body = s.post("/v1/attestations/"+sessionID+"/token", map[string]any{"token": token}, bearer)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("AWAITING_DECISION", body["state"])
	s.Equal("BATCH-9", body["subject_ref"])

	// A verifier_did in the body is silently dropped; the outcome names the
	// channel identity.
	resp, body = s.post("/v1/attestations/"+sessionID+"/decision", map[string]any{
		"decision":     "VERIFIED",
		"attributes":   map[string]any{"quantity_kg": 75.0, "grade": "AB"},
		"verifier_did": "did:key:zAttacker",
	}, bearer)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(s.managerDID.String(), body["verifier_did"])
	credentialID := body["credential_id"].(string)
	s.Require().NotEmpty(credentialID)

	resp, repBody := s.get("/v1/reputation/" + s.farmerDID.String())
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	score := repBody["score"].(map[string]any)
	s.Positive(score["value"].(float64))
}

func (s *TransportSuite) TestRedeemUnknownTokenIs404() {
	resp, body := s.post("/v1/tokens/redeem", map[string]any{"token": "nope"}, "")
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal("token_not_found", body["error"])
}

func (s *TransportSuite) TestDoubleRedeemIsGone() {
	resp, body := s.post("/v1/tokens", map[string]any{
		"subject_ref":  "BATCH-2",
		"subject_type": "BATCH",
		"subject_did":  s.farmerDID.String(),
		"ttl_seconds":  3600,
	}, "")
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	token := body["token"].(string)

	resp, body = s.post("/v1/tokens/redeem", map[string]any{"token": token}, "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("BATCH-2", body["subject_ref"])

	resp, body = s.post("/v1/tokens/redeem", map[string]any{"token": token}, "")
	s.Equal(http.StatusGone, resp.StatusCode)
	s.Equal("token_already_used", body["error"])
}

func (s *TransportSuite) TestHealthz() {
	resp, body := s.get("/healthz")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("ok", body["status"])
}
