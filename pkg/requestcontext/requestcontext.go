// Package requestcontext carries request-scoped values between transport
// middleware and services without leaking transport types into the domain.
package requestcontext

import (
	"context"

	"beantrace/pkg/domain"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	actorDIDKey
)

// WithRequestID stores the request ID for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID or an empty string.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithActorDID stores the authenticated acting identity.
func WithActorDID(ctx context.Context, did domain.DID) context.Context {
	return context.WithValue(ctx, actorDIDKey, did)
}

// ActorDID returns the authenticated acting identity, if any.
func ActorDID(ctx context.Context) (domain.DID, bool) {
	v, ok := ctx.Value(actorDIDKey).(domain.DID)
	return v, ok && !v.IsZero()
}
