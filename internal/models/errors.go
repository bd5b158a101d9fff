package models

import "errors"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailExists     = errors.New("email already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrTodoNotFound    = errors.New("todo not found")

	// ErrStoreUnavailable marks transient storage failures (timeouts, lost
	// connections). Callers may retry; it must never be reported as an
	// authentication failure.
	ErrStoreUnavailable = errors.New("store unavailable")
)
