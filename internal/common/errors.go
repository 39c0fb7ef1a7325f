// Package common defines the sentinel errors shared by the auth, posts and
// handlers packages. Callers match them with errors.Is.
package common

import (
	"errors"
	"fmt"
)

var (
	// Credential store / authenticator.
	ErrDuplicateIdentity  = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidInput       = errors.New("invalid input")
	ErrPasswordTooLong    = errors.New("password must be at most 72 bytes")
	// Local usernames may not contain '@' or ':', which are reserved for
	// OAuth accounts, and are limited in length.
	ErrInvalidUsername = fmt.Errorf("%w: invalid username", ErrInvalidInput)

	// Session guards.
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Posts.
	ErrNotFound          = errors.New("not found")
	ErrNoFile            = errors.New("no file provided")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrCaptionTooLong    = errors.New("caption too long")

	// Disk or database write failed.
	ErrStorageFailure = errors.New("storage failure")
)
