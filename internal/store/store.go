package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/fieldsync/internal/clock"
)

// Store provides durable storage for field events.
// All access is serialized through a single-writer FIFO queue.
type Store struct {
	db    *sql.DB
	queue *opQueue
	retry RetryPolicy
	clock clock.Clock
	done  chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithRetryPolicy overrides the lock-contention retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Store) {
		s.retry = p
	}
}

// WithClock sets the clock used for retry backoff. Nil keeps the system clock.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = clock.OrSystem(c)
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically, then starts the
// single-writer worker.
//
// This function is idempotent - safe to call multiple times on the same file.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: the queue already serializes, and pragmas are per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:    db,
		queue: newOpQueue(),
		retry: DefaultRetryPolicy(),
		clock: clock.System{},
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.worker()
	return s, nil
}

// Close stops accepting work, drains queued operations and closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if !s.queue.Close() {
		return nil
	}
	<-s.done
	return s.db.Close()
}

// worker executes queued operations one at a time in arrival order.
func (s *Store) worker() {
	defer close(s.done)
	for {
		op, ok := s.queue.TryDequeue()
		if ok {
			op.done <- s.runOp(op)
			continue
		}
		if s.queue.Drained() {
			return
		}
		<-s.queue.Wait()
	}
}

// runOp executes one operation, retrying lock contention within its slot.
func (s *Store) runOp(op *queuedOp) (err error) {
	if err := op.ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", op.desc, r)
			slog.Error("store operation panicked", "op", op.desc, "panic", r)
		}
	}()
	return s.withRetry(op.ctx, op.desc, func() error {
		return op.fn(op.ctx, s.db)
	})
}

// submit enqueues fn and blocks until the worker has executed it.
//
// Waiting is not interrupted by ctx: once enqueued an operation always runs to
// completion, unless ctx is already done when its turn comes.
func (s *Store) submit(ctx context.Context, desc string, fn func(ctx context.Context, db *sql.DB) error) error {
	op := &queuedOp{ctx: ctx, desc: desc, fn: fn, done: make(chan error, 1)}
	if !s.queue.Enqueue(op) {
		return fmt.Errorf("%s: %w", desc, ErrClosed)
	}
	return <-op.done
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 1000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
