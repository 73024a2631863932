package models

import "time"

// Record is a single-use verification token gating one physical-world
// attestation event.
//
// Invariants:
//   - Used transitions false→true exactly once, ever
//   - unusable once now > ExpiresAt
//   - bound to exactly one subject entity
type Record struct {
	Token      string
	SubjectRef string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Used       bool
}

// Expired reports whether the record is past its expiry at the given time.
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Clone returns a copy so store reads cannot alias internal state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}
