package session

import (
	"context"
	"sync"
)

// EndpointLocks is a set of FIFO mutexes keyed by endpoint path.
//
// Callers hold a lock only while capturing the timestamp and computing the
// signature, never across network I/O.
type EndpointLocks struct {
	mu    sync.Mutex
	locks map[string]*fifoLock
}

type fifoLock struct {
	held    bool
	waiters []chan struct{}
}

// NewEndpointLocks creates an empty lock set.
func NewEndpointLocks() *EndpointLocks {
	return &EndpointLocks{locks: make(map[string]*fifoLock)}
}

// Acquire blocks until the lock for path is granted, in arrival order, or ctx
// is done. The returned release func is idempotent.
func (l *EndpointLocks) Acquire(ctx context.Context, path string) (release func(), err error) {
	l.mu.Lock()
	lk, ok := l.locks[path]
	if !ok {
		lk = &fifoLock{}
		l.locks[path] = lk
	}
	if !lk.held {
		lk.held = true
		l.mu.Unlock()
		return l.releaser(path), nil
	}
	ch := make(chan struct{})
	lk.waiters = append(lk.waiters, ch)
	l.mu.Unlock()

	select {
	case <-ch:
		return l.releaser(path), nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range lk.waiters {
			if w == ch {
				lk.waiters = append(lk.waiters[:i], lk.waiters[i+1:]...)
				l.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		l.mu.Unlock()
		// The lock was handed to us while ctx was being cancelled: pass it on.
		l.release(path)
		return nil, ctx.Err()
	}
}

// Waiting returns the number of callers queued behind the holder of path.
func (l *EndpointLocks) Waiting(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lk, ok := l.locks[path]; ok {
		return len(lk.waiters)
	}
	return 0
}

func (l *EndpointLocks) releaser(path string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(path) })
	}
}

// release hands the lock to the oldest waiter, or frees it.
func (l *EndpointLocks) release(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.locks[path]
	if !ok {
		return
	}
	if len(lk.waiters) > 0 {
		next := lk.waiters[0]
		lk.waiters[0] = nil
		lk.waiters = lk.waiters[1:]
		close(next)
		return
	}
	lk.held = false
	delete(l.locks, path)
}
