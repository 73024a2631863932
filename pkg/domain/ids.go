// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "beantrace/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing an ActorID where a SessionID is expected.
type (
	ActorID   uuid.UUID
	SessionID uuid.UUID
)

// DID is a decentralized identifier string. The public key it names is
// recoverable from the string itself; no registry lookup is ever required.
// Structural validation and key extraction live in internal/identity/did.
type DID string

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseActorID(s string) (ActorID, error) {
	id, err := parseUUID(s, "actor ID")
	return ActorID(id), err
}

func ParseSessionID(s string) (SessionID, error) {
	id, err := parseUUID(s, "session ID")
	return SessionID(id), err
}

// ParseDID performs a shape check only; it does not decode the key material.
func ParseDID(s string) (DID, error) {
	if !strings.HasPrefix(s, "did:") || strings.Count(s, ":") < 2 {
		return "", dErrors.New(dErrors.CodeMalformedDID, "invalid DID format")
	}
	return DID(s), nil
}

func parseUUID(s, label string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return id, nil
}

// String methods - for logging and debugging.

func (id ActorID) String() string   { return uuid.UUID(id).String() }
func (id SessionID) String() string { return uuid.UUID(id).String() }
func (d DID) String() string        { return string(d) }

// IsNil checks for zero-value IDs.

func (id ActorID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (d DID) IsZero() bool       { return d == "" }

// NewActorID generates a random actor ID.
func NewActorID() ActorID { return ActorID(uuid.New()) }

// NewSessionID generates a random session ID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }
