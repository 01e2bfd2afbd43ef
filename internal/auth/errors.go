package auth

import "errors"

var (
	// ErrInvalidInput reports a malformed request; nothing was persisted.
	ErrInvalidInput = errors.New("auth: invalid input")
	// ErrConflict reports that an identity with the same email already exists.
	ErrConflict = errors.New("auth: already exists")
	// ErrUnauthenticated covers bad credentials and every token failure alike.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrForbidden reports an authenticated caller that does not own the resource.
	ErrForbidden = errors.New("auth: forbidden")
	// ErrNotFound reports a missing identity or resource.
	ErrNotFound = errors.New("auth: not found")
	// ErrUnavailable wraps persistence failures that callers may retry.
	ErrUnavailable = errors.New("auth: store unavailable")
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("auth: password is empty")
)
