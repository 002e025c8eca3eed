// Package common defines shared constants and sentinel errors used across
// the Authority and Worker. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrValidation     = errors.New("validation error")
	ErrRateLimited    = errors.New("rate limited")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidTokenType = errors.New("invalid token type")
	ErrMissingClaim     = errors.New("missing required claim")
	ErrTokenExpired     = errors.New("token expired")

	// Key registry errors.
	ErrNoActiveKey       = errors.New("no active client key")
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrMissingSigningKey = errors.New("signing keys are not configured")

	// Worker-side errors.
	ErrMemoryTimeout = errors.New("timed out waiting for free memory")
	ErrNotifyFailed  = errors.New("failed to notify authority")
)
