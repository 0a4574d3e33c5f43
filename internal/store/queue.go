package store

import (
	"context"
	"database/sql"
	"sync"
)

// queuedOp is one unit of store work waiting for the single writer.
type queuedOp struct {
	ctx  context.Context
	desc string
	fn   func(ctx context.Context, db *sql.DB) error
	done chan error // buffered, size 1
}

// opQueue is a thread-safe unbounded FIFO of store operations.
//
// Any goroutine may Enqueue; exactly one worker dequeues. The buffered signal
// channel lets the worker sleep until work arrives without polling.
type opQueue struct {
	mu     sync.Mutex
	ops    []*queuedOp
	closed bool
	signal chan struct{} // Signals op availability (buffered, size 1)
}

func newOpQueue() *opQueue {
	return &opQueue{
		ops:    make([]*queuedOp, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds op to the back of the queue.
// Returns false if the queue is closed.
func (q *opQueue) Enqueue(op *queuedOp) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.ops = append(q.ops, op)

	// Non-blocking: a buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front op without blocking.
func (q *opQueue) TryDequeue() (*queuedOp, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) == 0 {
		return nil, false
	}

	op := q.ops[0]
	q.ops[0] = nil // release for GC

	if len(q.ops) == 1 {
		q.ops = q.ops[:0]
	} else {
		q.ops = q.ops[1:]
	}

	return op, true
}

// Wait returns a channel that signals when ops may be available.
// The channel is closed by Close.
func (q *opQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *opQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Drained reports whether the queue is closed and empty.
func (q *opQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.ops) == 0
}

// Close stops accepting ops and wakes the worker.
// Returns false if the queue was already closed.
func (q *opQueue) Close() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.closed = true
	close(q.signal)
	return true
}
