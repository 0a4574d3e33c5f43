package store

import "errors"

var (
	// ErrClosed is returned for work submitted after Close.
	ErrClosed = errors.New("store is closed")

	// ErrDuplicateCheckin is returned when the contract already has a
	// check-in by the same employee on the same civil date.
	ErrDuplicateCheckin = errors.New("contract already checked in today")

	// ErrLockRetriesExhausted is wrapped by the store-fatal error returned
	// when a statement stays locked through every retry.
	ErrLockRetriesExhausted = errors.New("database locked after retries")
)
