package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: resource conflict")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrUnavailable marks infrastructure failures (store unreachable, pool
	// exhausted). Callers map it to 503 and must never fold it into an
	// authentication or authorization decision.
	ErrUnavailable = errors.New("auth: store unavailable")
)
