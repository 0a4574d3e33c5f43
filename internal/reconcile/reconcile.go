// Package reconcile brings the local store in line with things outside it:
// the legacy flat pending list, the retention window, the server's record of
// the day and the civil-day rollover.
package reconcile

import (
	"context"
	"time"

	"github.com/roach88/fieldsync/internal/api"
	"github.com/roach88/fieldsync/internal/capture"
	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/fault"
	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/store"
)

// Remote fetches the server's record list of one employee.
type Remote interface {
	GetRecords(ctx context.Context, employee, createdDate string) fault.Result[[]api.Record]
}

// Syncer uploads the pending tracking stream of one employee.
type Syncer interface {
	SyncTracking(ctx context.Context, employee string) error
}

// Deps are the collaborators of a Reconciler. Remote, Syncer and Capture may
// be nil.
type Deps struct {
	Store        *store.Store
	Remote       Remote
	Syncer       Syncer
	Connectivity api.Connectivity
	Capture      capture.BackgroundCapture
	Clock        clock.Clock
}

// Config holds the civil zone used for dates.
type Config struct {
	Location *time.Location
}

// Reconciler runs migration, pruning and reconciliation against one store.
type Reconciler struct {
	deps  Deps
	loc   *time.Location
	clock clock.Clock
}

// New creates a reconciler.
func New(deps Deps, cfg Config) *Reconciler {
	if deps.Connectivity == nil {
		deps.Connectivity = api.AlwaysOnline{}
	}
	loc := cfg.Location
	if loc == nil {
		loc = model.WIB
	}
	return &Reconciler{deps: deps, loc: loc, clock: clock.OrSystem(deps.Clock)}
}

func (r *Reconciler) today() string {
	return model.Today(r.clock.Now(), r.loc)
}
