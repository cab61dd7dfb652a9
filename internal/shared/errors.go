package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated indicates a request without an authenticated principal.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInactiveUser indicates the identity is known but disabled.
	ErrInactiveUser = errors.New("user inactive")
)
