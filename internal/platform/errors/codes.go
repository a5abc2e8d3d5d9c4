// Package errors provides structured error handling for the auth core.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Token errors
	CodeInvalidToken Code = "INVALID_TOKEN"

	// WebAuthn ceremony errors
	CodeNoChallenge        Code = "NO_CHALLENGE"
	CodeChallengeExpired   Code = "CHALLENGE_EXPIRED"
	CodeChallengeMismatch  Code = "CHALLENGE_MISMATCH"
	CodeVerificationFailed Code = "VERIFICATION_FAILED"

	// Lookup errors
	CodeAccountNotFound Code = "ACCOUNT_NOT_FOUND"
	CodePasskeyNotFound Code = "PASSKEY_NOT_FOUND"
	CodeNotFound        Code = "NOT_FOUND"

	// Account errors
	CodeEmailTaken      Code = "EMAIL_TAKEN"
	CodeInvalidEmail    Code = "INVALID_EMAIL"
	CodeInvalidPassword Code = "INVALID_PASSWORD"

	// Authentication errors
	CodeAuthenticationFailed Code = "AUTHENTICATION_FAILED"
	CodeUnauthenticated      Code = "UNAUTHENTICATED"
	CodeEmailUnverified      Code = "EMAIL_UNVERIFIED"

	// Infrastructure errors
	CodeConfiguration       Code = "CONFIGURATION_ERROR"
	CodeEmailDeliveryFailed Code = "EMAIL_DELIVERY_FAILED"
)

// HTTPStatus maps domain codes to HTTP status codes.
//
// Ceremony and lookup failures collapse onto 400/401 responses so the
// status code never reveals whether an account or credential exists.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidToken,
		CodeNoChallenge,
		CodeChallengeExpired,
		CodeChallengeMismatch,
		CodeVerificationFailed,
		CodeInvalidEmail,
		CodeInvalidPassword:
		return http.StatusBadRequest
	case CodeAuthenticationFailed,
		CodeUnauthenticated,
		CodeAccountNotFound,
		CodePasskeyNotFound:
		return http.StatusUnauthorized
	case CodeEmailUnverified:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeEmailTaken:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
