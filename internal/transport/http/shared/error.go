package shared

import (
	"errors"
	"net/http"

	"beantrace/internal/transport/http/shared/json"
	dErrors "beantrace/pkg/domain-errors"
)

// WriteError centralizes domain error translation to HTTP responses. Domain
// codes stay visible in the body so transports can surface token and
// authorization failures verbatim to the human channel.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		response := map[string]string{
			"error": string(domainErr.Code),
		}
		if domainErr.Message != "" {
			response["error_description"] = domainErr.Message
		}
		json.WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), response)
		return
	}

	json.WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": string(dErrors.CodeInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound, dErrors.CodeTokenNotFound, dErrors.CodeNotRegistered:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeMalformedDID:
		return http.StatusBadRequest
	case dErrors.CodeConflict, dErrors.CodeInvalidState, dErrors.CodeConcurrencyConflict:
		return http.StatusConflict
	case dErrors.CodeTokenExpired, dErrors.CodeTokenAlreadyUsed, dErrors.CodeExpiredCredential:
		return http.StatusGone
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodePendingApproval, dErrors.CodeInsufficientRole:
		return http.StatusForbidden
	case dErrors.CodeInvalidSignature:
		return http.StatusUnprocessableEntity
	case dErrors.CodeEncoding, dErrors.CodeDecryption, dErrors.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
