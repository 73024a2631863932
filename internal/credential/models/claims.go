package models

import (
	"fmt"
	"time"

	dErrors "beantrace/pkg/domain-errors"
)

// Claim keys shared across credential types.
const (
	ClaimCredentialType = "credential_type"
	ClaimQuantityKG     = "quantity_kg"
	ClaimExpiresAt      = "expires_at"
)

// Credential type tags.
const (
	TypeBatchAttestation = "BatchAttestation"
	TypeRegistration     = "RegistrationAttestation"
)

// ClaimSet is a schema-validated claim variant. Typed variants keep
// canonicalization unambiguous and reproducible across implementations;
// loosely-typed dictionaries only appear at the persistence boundary.
type ClaimSet interface {
	// Type tags the credential variant.
	Type() string
	// Validate checks the variant's schema.
	Validate() error
	// ToMap converts to an untyped map for canonicalization and persistence.
	ToMap() map[string]any
}

// BatchAttestationClaims describes a verified coffee batch.
type BatchAttestationClaims struct {
	BatchRef      string
	Process       string
	QuantityKG    float64
	Grade         string
	HarvestSeason string
	Notes         string
}

func (c BatchAttestationClaims) Type() string { return TypeBatchAttestation }

func (c BatchAttestationClaims) Validate() error {
	if c.BatchRef == "" {
		return dErrors.New(dErrors.CodeValidation, "batch_ref is required")
	}
	if c.QuantityKG < 0 {
		return dErrors.New(dErrors.CodeValidation, "quantity_kg must not be negative")
	}
	return nil
}

func (c BatchAttestationClaims) ToMap() map[string]any {
	m := map[string]any{
		ClaimCredentialType: TypeBatchAttestation,
		"batch_ref":         c.BatchRef,
		ClaimQuantityKG:     c.QuantityKG,
	}
	if c.Process != "" {
		m["process"] = c.Process
	}
	if c.Grade != "" {
		m["grade"] = c.Grade
	}
	if c.HarvestSeason != "" {
		m["harvest_season"] = c.HarvestSeason
	}
	if c.Notes != "" {
		m["notes"] = c.Notes
	}
	return m
}

// BatchAttestationClaimsFromMap reconstructs the typed variant from untyped
// attributes, as supplied by a decision payload or loaded from persistence.
func BatchAttestationClaimsFromMap(m map[string]any) (BatchAttestationClaims, error) {
	c := BatchAttestationClaims{}
	c.BatchRef, _ = m["batch_ref"].(string)
	c.Process, _ = m["process"].(string)
	c.Grade, _ = m["grade"].(string)
	c.HarvestSeason, _ = m["harvest_season"].(string)
	c.Notes, _ = m["notes"].(string)
	switch v := m[ClaimQuantityKG].(type) {
	case float64:
		c.QuantityKG = v
	case int:
		c.QuantityKG = float64(v)
	case nil:
	default:
		return c, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("quantity_kg has unsupported type %T", v))
	}
	return c, c.Validate()
}

// RegistrationClaims attests that an actor is registered in a given role.
type RegistrationClaims struct {
	ActorRef string
	Role     string
	Region   string
}

func (c RegistrationClaims) Type() string { return TypeRegistration }

func (c RegistrationClaims) Validate() error {
	if c.ActorRef == "" {
		return dErrors.New(dErrors.CodeValidation, "actor_ref is required")
	}
	if c.Role == "" {
		return dErrors.New(dErrors.CodeValidation, "role is required")
	}
	return nil
}

func (c RegistrationClaims) ToMap() map[string]any {
	m := map[string]any{
		ClaimCredentialType: TypeRegistration,
		"actor_ref":         c.ActorRef,
		"role":              c.Role,
	}
	if c.Region != "" {
		m["region"] = c.Region
	}
	return m
}

// RegistrationClaimsFromMap reconstructs the typed variant from untyped attributes.
func RegistrationClaimsFromMap(m map[string]any) (RegistrationClaims, error) {
	c := RegistrationClaims{}
	c.ActorRef, _ = m["actor_ref"].(string)
	c.Role, _ = m["role"].(string)
	c.Region, _ = m["region"].(string)
	return c, c.Validate()
}

// ExpiryOf extracts the optional expiry claim. The second return reports
// whether the claim set carries one.
func ExpiryOf(claims map[string]any) (time.Time, bool, error) {
	raw, ok := claims[ClaimExpiresAt]
	if !ok {
		return time.Time{}, false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, true, dErrors.New(dErrors.CodeValidation, "expires_at must be an RFC3339 string")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, true, dErrors.Wrap(err, dErrors.CodeValidation, "expires_at is not RFC3339")
	}
	return t, true, nil
}
