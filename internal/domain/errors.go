package domain

import "errors"

var (
	// ErrTransientData means an upstream fetch kept failing after its retry
	// budget was spent. The current cycle is skipped.
	ErrTransientData = errors.New("transient data error")
	// ErrUnresolvedInstrument means a symbol has no instrument identity.
	ErrUnresolvedInstrument = errors.New("unresolved instrument")
	// ErrStaleData means the latest bar is too old to trust.
	ErrStaleData = errors.New("stale data")
	// ErrInvariantViolation marks a holding with no recorded position.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrCacheMismatch means a stored digest disagrees with the recomputed one.
	ErrCacheMismatch = errors.New("cache digest mismatch")

	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidOrder   = errors.New("invalid order parameters")
	ErrDuplicateOrder = errors.New("duplicate order")
	ErrStreamClosed   = errors.New("stream closed")
	ErrLockHeld       = errors.New("lock already held")
	ErrLockLost       = errors.New("lock lost")
)
