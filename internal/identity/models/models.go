package models

import (
	"crypto/ed25519"
	"time"

	"beantrace/pkg/domain"
)

// Role is an actor's function in the supply chain. It gates which subject
// types the actor may attest; the mapping lives in internal/attestation/policy.
type Role string

const (
	RoleFarmer             Role = "FARMER"
	RoleCooperativeManager Role = "COOPERATIVE_MANAGER"
	RoleExporter           Role = "EXPORTER"
	RoleBuyer              Role = "BUYER"
	RoleAdmin              Role = "ADMIN"
)

// IsValid reports whether the role is one of the known values.
func (r Role) IsValid() bool {
	switch r {
	case RoleFarmer, RoleCooperativeManager, RoleExporter, RoleBuyer, RoleAdmin:
		return true
	}
	return false
}

// Record is the persisted identity of an actor. Each actor owns exactly one
// DID; the pair is created once at onboarding and never rotated.
//
// EncryptedPrivateKey is vault ciphertext. The cleartext key exists only
// inside vault signing calls.
type Record struct {
	DID                 domain.DID
	PublicKey           ed25519.PublicKey
	EncryptedPrivateKey []byte

	Role     Role
	Approved bool

	// OrganizationDID names the organization the actor acts on behalf of,
	// empty for independent actors and for organizations themselves.
	OrganizationDID domain.DID

	CreatedAt time.Time
}

// Clone returns a deep copy so store reads cannot alias internal state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.PublicKey = append(ed25519.PublicKey(nil), r.PublicKey...)
	cp.EncryptedPrivateKey = append([]byte(nil), r.EncryptedPrivateKey...)
	return &cp
}
