package fault

import "errors"

// ErrOffline is the cause carried by an offline Result.
var ErrOffline = errors.New("no connectivity")

// Result is the outcome of a remote call. Exactly one of three states holds:
// a value, an offline marker, or a classified error.
type Result[T any] struct {
	Value   T
	offline bool
	err     error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Offline returns a result for a call that was skipped for lack of connectivity.
func Offline[T any]() Result[T] {
	return Result[T]{offline: true}
}

// Fail wraps a classified error. An unclassified error is treated as transient.
func Fail[T any](op string, err error) Result[T] {
	if KindOf(err) == "" {
		err = New(KindTransient, op, err)
	}
	return Result[T]{err: err}
}

// IsOk reports whether the call succeeded.
func (r Result[T]) IsOk() bool {
	return !r.offline && r.err == nil
}

// IsOffline reports whether the call was skipped for lack of connectivity.
func (r Result[T]) IsOffline() bool {
	return r.offline
}

// Err returns the failure, ErrOffline wrapped as KindOffline, or nil.
func (r Result[T]) Err() error {
	if r.offline {
		return New(KindOffline, "", ErrOffline)
	}
	return r.err
}

// Unwrap returns the value and the failure as a conventional pair.
func (r Result[T]) Unwrap() (T, error) {
	return r.Value, r.Err()
}
