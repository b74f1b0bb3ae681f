package domain

import "errors"

var (
	// ErrOutOfOrderEvent is returned when an event falls outside the writable day window.
	ErrOutOfOrderEvent = errors.New("answer event outside writable window")
	// ErrDuplicateEvent signals an already-applied event identity. Callers treat it as a no-op.
	ErrDuplicateEvent = errors.New("answer event already applied")
	// ErrInvalidEvent indicates a malformed answer event.
	ErrInvalidEvent = errors.New("invalid answer event")
	// ErrInvalidDayKey indicates an unparsable day key.
	ErrInvalidDayKey = errors.New("invalid day key")
	// ErrUserNotFound is returned by identity lookups that have no profile.
	ErrUserNotFound = errors.New("user not found")
	// ErrTransient wraps retryable store or ledger failures.
	ErrTransient = errors.New("transient storage failure")
)
