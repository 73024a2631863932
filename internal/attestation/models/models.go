package models

import (
	"time"

	"beantrace/pkg/domain"
)

// State of an attestation session.
//
// Transitions:
//
//	AWAITING_AUTH → AUTHORIZED → AWAITING_DECISION → FINALIZING → FINALIZED_VERIFIED
//	                                               → FINALIZED_REJECTED
//	FINALIZING → AWAITING_DECISION (credential issue failed)
//	any non-final state → ABORTED
type State string

const (
	StateAwaitingAuth     State = "AWAITING_AUTH"
	StateAuthorized       State = "AUTHORIZED"
	StateAwaitingDecision State = "AWAITING_DECISION"

	// StateFinalizing is held by the one submitter that won the session.
	// Credentials are only ever issued from this state.
	StateFinalizing State = "FINALIZING"

	StateFinalizedVerified State = "FINALIZED_VERIFIED"
	StateFinalizedRejected State = "FINALIZED_REJECTED"
	StateAborted           State = "ABORTED"
)

// Final reports whether the state admits no further transitions.
func (s State) Final() bool {
	switch s {
	case StateFinalizedVerified, StateFinalizedRejected, StateAborted:
		return true
	}
	return false
}

// SubjectType identifies what kind of entity a session attests.
type SubjectType string

const (
	SubjectBatch              SubjectType = "BATCH"
	SubjectFarmerRegistration SubjectType = "FARMER_REGISTRATION"
)

func (t SubjectType) IsValid() bool {
	switch t {
	case SubjectBatch, SubjectFarmerRegistration:
		return true
	}
	return false
}

// Decision values a verifier may submit.
type Decision string

const (
	DecisionVerified Decision = "VERIFIED"
	DecisionRejected Decision = "REJECTED"
)

// Session is one attestation attempt by one verifier against one subject.
//
// VerifierDID, VerifierRole, and OrganizationDID are fixed when the session
// reaches AUTHORIZED and never change afterwards. The decision payload has no
// say over them.
type Session struct {
	ID              domain.SessionID
	State           State
	SubjectType     SubjectType
	VerifierDID     domain.DID
	VerifierRole    string
	OrganizationDID domain.DID
	SubjectRef      string
	SubjectDID      domain.DID
	AbortReason     string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	UpdatedAt       time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Clone returns a copy so store reads cannot alias internal state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// DecisionPayload is what a transport captures from the human verifier.
// There is deliberately no verifier field anywhere in it.
type DecisionPayload struct {
	Decision     Decision
	Attributes   map[string]any
	Notes        string
	EvidenceRefs []string
	Reason       string
}

// Outcome is the caller-visible result of a finalized session. VerifierDID is
// always the identity authorized at session start.
type Outcome struct {
	SessionID       domain.SessionID
	VerifierDID     domain.DID
	VerifierRole    string
	OrganizationDID domain.DID
	Decision        Decision
	EvidenceRefs    []string
	CredentialID    string
}
