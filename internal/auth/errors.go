package auth

import "errors"

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")

	// ErrInvalidCredentials covers both an unknown login identifier and a
	// wrong password so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidRefreshToken covers malformed, unsigned, mismatched and
	// expired refresh credentials.
	ErrInvalidRefreshToken = errors.New("auth: invalid refresh token")

	// ErrUserNotFound is returned when a refresh credential resolves to a
	// subject that no longer exists.
	ErrUserNotFound = errors.New("auth: user not found")

	// ErrStaleCredential is returned when an otherwise valid access
	// credential carries a security stamp that no longer matches the
	// principal's current one.
	ErrStaleCredential = errors.New("auth: stale credential")
)
