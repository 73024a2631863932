// Package httptransport wires the HTTP surface over the domain services.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"beantrace/internal/transport/http/middleware"
)

// NewRouter wires all endpoints with the middleware stack. Attestation
// endpoints sit behind channel authentication; everything the verifier does
// is attributed to the bearer token's identity.
func NewRouter(h *Handler, channelAuth middleware.ChannelValidator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/healthz", h.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/identities", h.handleCreateIdentity)
		r.Post("/identities/{did}/approve", h.handleApproveIdentity)

		r.Post("/tokens", h.handleIssueToken)
		r.Post("/tokens/redeem", h.handleRedeemToken)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireChannelAuth(channelAuth, logger))
			r.Post("/attestations", h.handleBeginAttestation)
			r.Post("/attestations/{sessionID}/token", h.handleBindToken)
			r.Post("/attestations/{sessionID}/decision", h.handleSubmitDecision)
		})

		r.Post("/credentials/verify", h.handleVerifyCredential)
		r.Get("/reputation/{did}", h.handleReputation)
	})

	return r
}
