package entity

import "errors"

// OTP verification outcomes.
var (
	ErrOTPNotFound        = errors.New("otp not found")
	ErrOTPExpired         = errors.New("otp expired")
	ErrOTPInvalid         = errors.New("otp invalid")
	ErrOTPTooManyAttempts = errors.New("otp too many attempts")
)

// Session token outcomes.
var (
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenRevoked          = errors.New("token revoked")
)

// Consent and authorization outcomes.
var (
	ErrNoGrant         = errors.New("no consent grant")
	ErrGrantExpired    = errors.New("consent grant expired")
	ErrSubjectMismatch = errors.New("consent grant is for another subject")
	ErrUnauthorized    = errors.New("unauthorized")
)

// Directory outcomes.
var (
	ErrPrincipalNotFound    = errors.New("principal not found")
	ErrChannelNotRegistered = errors.New("channel is not a registered contact of the subject")
)
