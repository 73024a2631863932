package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in business logic terms, not HTTP terms.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeValidation   Code = "validation_failed"
	CodeInternal     Code = "internal_error"
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeInvalidState Code = "invalid_state"

	// Identity and key material failures. Fatal to the calling workflow;
	// a cryptographic check never defaults to success.
	CodeEncoding   Code = "encoding_error"
	CodeDecryption Code = "decryption_error"

	// Verification token failures. Recoverable, surfaced verbatim to the
	// attestation channel and never collapsed into one generic error.
	CodeTokenNotFound    Code = "token_not_found"
	CodeTokenExpired     Code = "token_expired"
	CodeTokenAlreadyUsed Code = "token_already_used"

	// Authorization failures for attestation sessions.
	CodeNotRegistered    Code = "not_registered"
	CodePendingApproval  Code = "pending_approval"
	CodeInsufficientRole Code = "insufficient_role"

	// Credential verification failures. The credential fails closed.
	CodeInvalidSignature  Code = "invalid_signature"
	CodeMalformedDID      Code = "malformed_did"
	CodeExpiredCredential Code = "expired_credential"

	// CodeConcurrencyConflict marks the loser of a token-redemption race.
	// Callers may retry at most once.
	CodeConcurrencyConflict Code = "concurrency_conflict"
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the domain code from an error chain, or CodeInternal when
// the chain carries no domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
