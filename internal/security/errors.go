package security

import "errors"

// Domain errors for the security package.
var (
	// ErrTokenRequestFailed is returned when the identity service does not issue a token.
	ErrTokenRequestFailed = errors.New("security: token request failed")

	// ErrInvalidTrust is returned when the identity service rejects the trust.
	ErrInvalidTrust = errors.New("security: invalid trust")

	// ErrMissingTrust is returned when GetToken is called with an empty trust.
	ErrMissingTrust = errors.New("security: trust is required")

	// ErrTokenInvalid is returned when a locally issued token fails validation.
	ErrTokenInvalid = errors.New("security: invalid token")
)
