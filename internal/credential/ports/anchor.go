// Package ports declares the external collaborators the credential module
// depends on. Implementations are injected; the core performs no network I/O
// of its own.
package ports

import "context"

// AnchorSink receives the content digest of every issued credential.
// Blockchain anchoring (or any other tamper-evidence ledger) lives behind
// this interface; the core only emits hashes.
type AnchorSink interface {
	Anchor(ctx context.Context, credentialID string, digest []byte) error
}

// NoopAnchor discards digests. Default when no anchoring backend is configured.
type NoopAnchor struct{}

func (NoopAnchor) Anchor(context.Context, string, []byte) error { return nil }
