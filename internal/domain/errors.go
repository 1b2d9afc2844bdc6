package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session id is unknown or expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPoolNotFound indicates the item pool could not be loaded.
	ErrPoolNotFound = errors.New("item pool not found")
	// ErrItemNotFound indicates an item id is no longer resolvable in its pool.
	ErrItemNotFound = errors.New("item not found")
	// ErrInvalidState is returned for operations on a terminal session.
	ErrInvalidState = errors.New("session is in a terminal state")
	// ErrMismatch is returned when a response targets an item other than the
	// current pending item (stale or duplicate client submission).
	ErrMismatch = errors.New("response does not match pending item")
	// ErrConflict is returned when a concurrent mutation won the version race.
	ErrConflict = errors.New("session was modified concurrently")
	// ErrExhausted signals that no unadministered candidate items remain.
	// It is handled inside the engine and forces termination.
	ErrExhausted = errors.New("item pool exhausted")
	// ErrStoreUnavailable is returned when the state store times out or is
	// unreachable. The engine never retries; callers decide.
	ErrStoreUnavailable = errors.New("state store unavailable")
)
