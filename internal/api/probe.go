package api

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/fault"
)

// StatusCacheTTL is how long a tracking status answer is reused.
const StatusCacheTTL = 3 * time.Second

// StatusFetcher performs the uncached status call.
type StatusFetcher func(ctx context.Context, employee string) fault.Result[TrackingStatus]

// StatusProbe caches tracking status answers per employee and joins
// concurrent lookups into a single request.
type StatusProbe struct {
	fetch StatusFetcher
	clock clock.Clock
	ttl   time.Duration

	group singleflight.Group

	mu    sync.Mutex
	cache map[string]cachedStatus
}

type cachedStatus struct {
	status TrackingStatus
	at     time.Time
}

// NewStatusProbe wraps fetch with a ttl cache.
func NewStatusProbe(fetch StatusFetcher, clk clock.Clock, ttl time.Duration) *StatusProbe {
	return &StatusProbe{
		fetch: fetch,
		clock: clock.OrSystem(clk),
		ttl:   ttl,
		cache: make(map[string]cachedStatus),
	}
}

// Status returns the cached answer when fresh, otherwise fetches it. Only
// successful answers are cached.
func (p *StatusProbe) Status(ctx context.Context, employee string) fault.Result[TrackingStatus] {
	now := p.clock.Now()
	p.mu.Lock()
	c, ok := p.cache[employee]
	p.mu.Unlock()
	if ok && now.Sub(c.at) < p.ttl {
		return fault.Ok(c.status)
	}

	v, _, _ := p.group.Do(employee, func() (any, error) {
		res := p.fetch(ctx, employee)
		if res.IsOk() {
			p.mu.Lock()
			p.cache[employee] = cachedStatus{status: res.Value, at: p.clock.Now()}
			p.mu.Unlock()
		}
		return res, nil
	})
	return v.(fault.Result[TrackingStatus])
}

// Forget drops the cached answer for employee.
func (p *StatusProbe) Forget(employee string) {
	p.mu.Lock()
	delete(p.cache, employee)
	p.mu.Unlock()
}
