// Package common defines shared sentinel errors and small helpers used across
// crmkeeper components. Callers should use errors.Is to match these values.
//
// Errors are grouped by category. Every specific error wraps exactly one
// category error, so a caller at the UI boundary can decide how to react with
// a single errors.Is check against the category:
//
//	ErrValidation  bad user input (short or mismatched password, bad phone/email)
//	ErrAuth        wrong password, not registered, locked out
//	ErrSession     no valid session where one is required
//	ErrCrypto      encryption or decryption failure
//	ErrStorage     durable or ephemeral storage failure
//	ErrFormat      import/export schema mismatch
package common

import (
	"errors"
	"fmt"
)

var (
	// categories
	ErrValidation = errors.New("validation error")
	ErrAuth       = errors.New("authentication error")
	ErrSession    = errors.New("session error")
	ErrCrypto     = errors.New("crypto error")
	ErrStorage    = errors.New("storage error")
	ErrFormat     = errors.New("format error")

	// validation errors
	ErrPasswordTooShort = fmt.Errorf("%w: password too short", ErrValidation)
	ErrPasswordMismatch = fmt.Errorf("%w: passwords do not match", ErrValidation)
	ErrInvalidPhone     = fmt.Errorf("%w: invalid phone number", ErrValidation)
	ErrInvalidEmail     = fmt.Errorf("%w: invalid email", ErrValidation)
	ErrEmptyName        = fmt.Errorf("%w: name is required", ErrValidation)

	// auth errors
	ErrNotRegistered     = fmt.Errorf("%w: password is not set", ErrAuth)
	ErrAlreadyRegistered = fmt.Errorf("%w: password is already set", ErrAuth)
	ErrWrongPassword     = fmt.Errorf("%w: wrong password", ErrAuth)
	ErrLocked            = fmt.Errorf("%w: account is locked", ErrAuth)

	// session errors
	ErrNoValidSession = fmt.Errorf("%w: no valid session, please log in again", ErrSession)

	// crypto errors
	ErrNoEncryptionKey = fmt.Errorf("%w: encryption key not found", ErrCrypto)
	ErrDecryption      = fmt.Errorf("%w: decryption failed", ErrCrypto)
	ErrEncryption      = fmt.Errorf("%w: encryption failed", ErrCrypto)

	// storage errors
	ErrQuotaExceeded   = fmt.Errorf("%w: storage quota exceeded, export and prune data", ErrStorage)
	ErrVersionConflict = fmt.Errorf("%w: version conflict", ErrStorage)

	// repository errors
	ErrorNotFound = errors.New("not found")
)
