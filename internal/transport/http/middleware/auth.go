package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"beantrace/internal/jwtauth"
	"beantrace/pkg/domain"
	"beantrace/pkg/requestcontext"
)

// ChannelValidator validates channel bearer tokens. Satisfied by the jwtauth
// service.
type ChannelValidator interface {
	Validate(tokenString string) (*jwtauth.ChannelClaims, error)
}

// RequireChannelAuth authenticates the transport channel and stores the
// acting identity in the request context. Handlers read the verifier DID from
// there and nowhere else; request bodies cannot override it.
func RequireChannelAuth(validator ChannelValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access, missing bearer token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access, invalid channel token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithActorDID(ctx, domain.DID(claims.ActorDID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
