package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/fieldsync/internal/fault"
)

// RetryPolicy controls how lock contention is retried.
// The delay before retry n (0-based) is Base + n*Step.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Step        time.Duration
}

// DefaultRetryPolicy returns 3 attempts with 150ms, 300ms backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Base:        150 * time.Millisecond,
		Step:        150 * time.Millisecond,
	}
}

// Delay returns the backoff after the given failed attempt (0-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.Base + time.Duration(attempt)*p.Step
}

// isLockError reports whether err is SQLite lock contention.
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked
	}
	return strings.Contains(err.Error(), "database is locked")
}

// withRetry runs fn, retrying lock contention per the store's policy.
// Non-lock errors are returned unchanged. Exhaustion is store-fatal.
func (s *Store) withRetry(ctx context.Context, desc string, fn func() error) error {
	maxAttempts := s.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if !isLockError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		delay := s.retry.Delay(attempt)
		slog.Debug("store locked, retrying", "op", desc, "attempt", attempt+1, "delay", delay)
		if sleepErr := s.clock.Sleep(ctx, delay); sleepErr != nil {
			return fault.New(fault.KindContention, desc, err)
		}
	}

	slog.Error("store lock retries exhausted", "op", desc, "attempts", maxAttempts, "error", err)
	return fault.New(fault.KindStoreFatal, desc, fmt.Errorf("%w: %v", ErrLockRetriesExhausted, err))
}
