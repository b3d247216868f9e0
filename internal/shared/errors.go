// Package shared contains the sentinel errors and small helpers used across
// whisperkit components. Callers match errors with errors.Is.
package shared

import "errors"

var (
	// Key material errors.
	ErrNotInitialized = errors.New("key material not initialized")
	ErrKeyGeneration  = errors.New("key generation failed")
	ErrDerivation     = errors.New("secret derivation failed")

	// Cipher errors.
	ErrEncryption = errors.New("encryption failed")
	ErrDecryption = errors.New("decryption failed")

	// Chat-level errors.
	ErrAuthorization    = errors.New("not authorized")
	ErrDelivery         = errors.New("delivery failed")
	ErrRotationConflict = errors.New("key rotation conflict")

	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Session errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
