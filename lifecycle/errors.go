package lifecycle

import "errors"

var (
	// ErrTokenExpired signals that the account must go back through the
	// login flow before its credential can be read.
	ErrTokenExpired = errors.New("token expired, re-authentication required")

	// ErrCorruptCredential is returned when a stored ciphertext cannot be
	// decrypted (tampered, truncated or written under a different key).
	// The record is unrecoverable; the secret must be re-entered.
	ErrCorruptCredential = errors.New("stored credential is corrupt")

	// ErrInvalidInput is returned when a required field is missing or blank
	ErrInvalidInput = errors.New("invalid input")
)
