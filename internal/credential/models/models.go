package models

import (
	"time"

	"beantrace/pkg/domain"
)

// Credential is a signed, immutable set of claims about a subject.
//
// Invariants:
//   - Proof validates against the public key embedded in IssuerDID
//   - Claims never change after signing
//   - IssuerDID == SubjectDID means self-attestation (low trust); a distinct
//     issuer means third-party attestation. Who signed is the only difference;
//     there is no separate code path.
type Credential struct {
	ID           string         `json:"id"`
	IssuerDID    domain.DID     `json:"issuer_did"`
	SubjectDID   domain.DID     `json:"subject_did"`
	Claims       map[string]any `json:"claims"`
	IssuanceDate time.Time      `json:"issuance_date"`
	Proof        string         `json:"proof"`
	Revoked      bool           `json:"revoked"`
}

// IsThirdParty reports whether issuer and subject differ.
func (c *Credential) IsThirdParty() bool {
	return c.IssuerDID != c.SubjectDID
}

// Clone returns a deep copy so store reads cannot alias internal state.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Claims = cloneMap(c.Claims)
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
