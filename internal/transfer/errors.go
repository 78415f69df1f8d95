package transfer

import "errors"

// Typed failures surfaced to front ends. Anything not covered here is wrapped
// in ErrStorage; the detail stays in the server logs.
var (
	// ErrTooLarge means the declared or observed size exceeds the maximum.
	// No partial data is retained.
	ErrTooLarge = errors.New("object exceeds maximum size")
	// ErrRateLimited means admission was denied; the caller should retry
	// after the window has moved on. No bytes were written.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrNotFound means the identifier is unknown or already deleted.
	ErrNotFound = errors.New("object not found")
	// ErrConflict means a freshly generated identifier collided on insert.
	// With 122 random bits this is effectively unreachable but still handled.
	ErrConflict = errors.New("identifier conflict")
	// ErrInvalidID means the identifier string is malformed. It is returned
	// before any lookup happens, distinct from ErrNotFound.
	ErrInvalidID = errors.New("invalid identifier")
	// ErrStorage wraps disk or ledger I/O failures after cleanup has run.
	ErrStorage = errors.New("storage failure")
)
