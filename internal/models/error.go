package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Two-factor state errors
	ErrTwoFactorNotEnabled     = errors.New("two-factor authentication is not enabled")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication is already enabled")
	ErrSetupNotPending         = errors.New("no pending two-factor setup")
	ErrSetupExpired            = errors.New("two-factor setup has expired")

	// Verification errors
	ErrInvalidCode = errors.New("invalid verification code")
	ErrRateLimited = errors.New("too many failed verification attempts")
)
