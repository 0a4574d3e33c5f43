// Package fault classifies failures so callers can decide between retrying,
// reporting and falling back to offline storage.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure.
type Kind string

const (
	// KindValidation is invalid input detected before any I/O. Never retried.
	KindValidation Kind = "VALIDATION"

	// KindTransient is a network error, timeout or 5xx. Retried by the caller.
	KindTransient Kind = "TRANSIENT_REMOTE"

	// KindOffline means no connectivity. The call was not attempted.
	KindOffline Kind = "OFFLINE"

	// KindAuth is a 401 that persisted after one refresh and retry.
	KindAuth Kind = "AUTH"

	// KindRejected is a well-formed response the server did not accept.
	KindRejected Kind = "REJECTED"

	// KindContention is a store lock that may clear on retry.
	KindContention Kind = "STORE_CONTENTION"

	// KindStoreFatal is a store failure that retrying will not fix.
	KindStoreFatal Kind = "STORE_FATAL"

	// KindDuplicate is a write rejected by a uniqueness rule.
	KindDuplicate Kind = "DUPLICATE"
)

// Error is a classified failure.
type Error struct {
	// Kind identifies the failure category.
	Kind Kind

	// Op names the operation that failed, e.g. "store.insert_checkin".
	Op string

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf creates a classified error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether a caller may retry the failed operation.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindContention, KindAuth:
		return true
	default:
		return false
	}
}
