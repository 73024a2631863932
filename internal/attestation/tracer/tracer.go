// Package tracer provides a lightweight tracing abstraction for the
// attestation module.
//
// The interface keeps the session state machine decoupled from OpenTelemetry
// APIs while still emitting spans around the authorize, bind, and finalize
// transitions.
//
// Implementations:
//   - NoopTracer: for tests (zero overhead)
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording any error that occurred.
	// End must be called exactly once, typically via defer.
	End(err error)

	// SetAttributes adds key-value pairs to the span.
	SetAttributes(attrs ...Attribute)

	// AddEvent records a timestamped event within the span.
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a new span with the given name and attributes. The
	// returned context carries the span and should flow to child operations.
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashToken returns a short SHA-256 prefix of a verification token for safe
// trace correlation without exposing the token itself.
func HashToken(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

// Span names used by the attestation module.
const (
	SpanAuthorize = "attestation.authorize"
	SpanBindToken = "attestation.bind_token"
	SpanFinalize  = "attestation.finalize"
	SpanAbort     = "attestation.abort"
)

// Attribute keys used by the attestation module.
const (
	AttrSessionID   = "session_id"
	AttrSubjectType = "subject_type"
	AttrVerifierDID = "verifier_did"
	AttrDecision    = "decision"
	AttrTokenHash   = "token_hash"
	AttrState       = "state"
)

// Event names used by the attestation module.
const (
	EventCredentialIssued = "credential.issued"
	EventSessionAborted   = "session.aborted"
)
