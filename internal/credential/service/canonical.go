package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"beantrace/pkg/domain"
	dErrors "beantrace/pkg/domain-errors"
)

// canonicalPayload serializes claims plus the issuance envelope into a
// deterministic byte sequence. encoding/json sorts map keys, so identical
// claim sets always produce identical bytes; that is what makes proofs
// recomputable and credential IDs content-derived.
//
// Issuance dates are truncated to whole UTC seconds so the wire form
// round-trips exactly through RFC3339.
func canonicalPayload(issuer, subject domain.DID, issuanceDate time.Time, claims map[string]any) ([]byte, error) {
	envelope := map[string]any{
		"issuer_did":    issuer.String(),
		"subject_did":   subject.String(),
		"issuance_date": issuanceDate.UTC().Truncate(time.Second).Format(time.RFC3339),
		"claims":        claims,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncoding, "canonicalize claims")
	}
	return payload, nil
}

// contentID derives the credential identifier from the canonical payload,
// enabling content-addressed storage and hash-based deduplication.
func contentID(canonical []byte) string {
	d := digest(canonical)
	return "urn:beantrace:cred:" + hex.EncodeToString(d[:])
}

func digest(canonical []byte) [sha256.Size]byte {
	return sha256.Sum256(canonical)
}
