// Package agent wires the store, capture filter, sync engine and reconciler
// into the operations a device front end calls.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/fieldsync/internal/api"
	"github.com/roach88/fieldsync/internal/capture"
	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/fault"
	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/reconcile"
	"github.com/roach88/fieldsync/internal/session"
	"github.com/roach88/fieldsync/internal/store"
	"github.com/roach88/fieldsync/internal/syncer"
)

// NoticeStoredOffline is returned when a foreground event was stored but not
// yet uploaded.
const NoticeStoredOffline = "stored offline, will sync later"

// Remote is the server surface the agent needs. Implemented by *api.Client.
type Remote interface {
	syncer.Remote
	reconcile.Remote
	capture.StatusChecker
	FetchContracts(ctx context.Context, employee string) fault.Result[[]model.Contract]
}

// statusForgetter drops a cached tracking status after a start or stop.
type statusForgetter interface {
	ForgetStatus(employee string)
}

// starter is implemented by capture controllers that can be switched on.
type starter interface {
	Start(ctx context.Context) error
}

// Config bundles the per-component settings.
type Config struct {
	Capture capture.Config
	Sync    syncer.Config

	// MaintenanceEvery is how often Start checks for the daily rollover.
	MaintenanceEvery time.Duration
	Location         *time.Location
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Capture:          capture.DefaultConfig(),
		Sync:             syncer.DefaultConfig(),
		MaintenanceEvery: time.Minute,
		Location:         model.WIB,
	}
}

// Deps are the collaborators of an Agent. Capture defaults to an in-process
// controller and Connectivity to always online.
type Deps struct {
	Store        *store.Store
	Remote       Remote
	Identity     session.Identity
	Connectivity api.Connectivity
	Capture      capture.BackgroundCapture
	Clock        clock.Clock
	IDs          syncer.IDGenerator
}

// Agent is the device-side core.
type Agent struct {
	deps   Deps
	cfg    Config
	clock  clock.Clock
	filter *capture.Filter
	engine *syncer.Engine
	rec    *reconcile.Reconciler

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New wires an agent. Nothing runs until Start.
func New(deps Deps, cfg Config) *Agent {
	if cfg.Location == nil {
		cfg.Location = model.WIB
	}
	if cfg.MaintenanceEvery <= 0 {
		cfg.MaintenanceEvery = time.Minute
	}
	cfg.Capture.Location = cfg.Location
	cfg.Sync.Location = cfg.Location
	if deps.Connectivity == nil {
		deps.Connectivity = api.AlwaysOnline{}
	}
	if deps.Capture == nil {
		deps.Capture = &capture.Controller{}
	}

	a := &Agent{deps: deps, cfg: cfg, clock: clock.OrSystem(deps.Clock)}
	a.engine = syncer.New(syncer.Deps{
		Store:        deps.Store,
		Remote:       deps.Remote,
		Identity:     deps.Identity,
		Connectivity: deps.Connectivity,
		Clock:        deps.Clock,
		IDs:          deps.IDs,
	}, cfg.Sync)
	a.filter = capture.New(capture.Deps{
		Store:    deps.Store,
		Identity: deps.Identity,
		Status:   deps.Remote,
		Capture:  deps.Capture,
		Uploader: a.engine,
		Clock:    deps.Clock,
	}, cfg.Capture)
	a.rec = reconcile.New(reconcile.Deps{
		Store:        deps.Store,
		Remote:       deps.Remote,
		Syncer:       a.engine,
		Connectivity: deps.Connectivity,
		Capture:      deps.Capture,
		Clock:        deps.Clock,
	}, reconcile.Config{Location: cfg.Location})
	return a
}

// Engine returns the sync engine.
func (a *Agent) Engine() *syncer.Engine { return a.engine }

// Reconciler returns the reconciler.
func (a *Agent) Reconciler() *reconcile.Reconciler { return a.rec }

// ErrNoIdentity is returned by foreground operations when nobody is signed in.
var ErrNoIdentity = fault.Errorf(fault.KindValidation, "agent.identity", "no employee signed in")

func (a *Agent) employee(ctx context.Context) (string, error) {
	if a.deps.Identity == nil {
		return "", ErrNoIdentity
	}
	emp, err := a.deps.Identity.EmployeeID(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve employee: %w", err)
	}
	if emp == "" {
		return "", ErrNoIdentity
	}
	return emp, nil
}

func (a *Agent) now() string {
	return model.FormatCivil(a.clock.Now(), a.cfg.Location)
}

func (a *Agent) today() string {
	return model.Today(a.clock.Now(), a.cfg.Location)
}

// Start runs the daily rollover and a status sync, then starts the sync
// engine and the maintenance ticker.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return syncer.ErrAlreadyRunning
	}

	a.maintain(ctx)
	if emp, err := a.employee(ctx); err == nil {
		if _, err := a.engine.SyncStatus(ctx, emp); err != nil {
			slog.Warn("tracking status sync failed", "error", err)
		}
	}
	if err := a.restoreCapture(ctx); err != nil {
		slog.Warn("restore background capture failed", "error", err)
	}
	if err := a.engine.Start(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.maintenanceLoop(loopCtx, a.done)
	return nil
}

// Stop stops the engine and the maintenance ticker. In-flight work finishes.
func (a *Agent) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	a.engine.Stop()
}

func (a *Agent) maintenanceLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(a.cfg.MaintenanceEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.maintain(context.WithoutCancel(ctx))
		}
	}
}

func (a *Agent) maintain(ctx context.Context) {
	emp, err := a.employee(ctx)
	if err != nil && !errors.Is(err, ErrNoIdentity) {
		slog.Warn("daily maintenance skipped", "error", err)
		return
	}
	if _, err := a.rec.DailyMaintenance(ctx, emp); err != nil {
		slog.Error("daily maintenance failed", "error", err)
	}
}

// Maintain runs the daily rollover now if it has not run today.
func (a *Agent) Maintain(ctx context.Context) (reconcile.MaintenanceReport, error) {
	emp, err := a.employee(ctx)
	if err != nil && !errors.Is(err, ErrNoIdentity) {
		return reconcile.MaintenanceReport{}, err
	}
	return a.rec.DailyMaintenance(ctx, emp)
}

// RecordLocation runs one fix through the capture filter.
func (a *Agent) RecordLocation(ctx context.Context, fix model.Fix) (capture.Outcome, error) {
	return a.filter.Process(ctx, fix)
}

// HandleBatch runs a scheduler callback through the capture filter.
func (a *Agent) HandleBatch(ctx context.Context, b model.Batch) []capture.Outcome {
	return a.filter.HandleBatch(ctx, b)
}

// Receipt is the result of a foreground record operation.
type Receipt struct {
	Timestamp string `json:"timestamp"`
	Uploaded  bool   `json:"uploaded"`
	Notice    string `json:"notice,omitempty"`
}

// RecordStartStop stores a start or stop event and tries to upload it at
// once. A start marks tracking active and remembers the start position; a
// stop marks it inactive and stops background capture.
func (a *Agent) RecordStartStop(ctx context.Context, kind model.EventKind, loc model.Location, address string) (Receipt, error) {
	if !kind.Valid() {
		return Receipt{}, fault.Errorf(fault.KindValidation, "agent.record_start_stop", "invalid kind %q", kind)
	}
	if err := loc.Validate(); err != nil {
		return Receipt{}, err
	}
	emp, err := a.employee(ctx)
	if err != nil {
		return Receipt{}, err
	}
	st := a.deps.Store
	rc := Receipt{Timestamp: a.now()}

	inserted, err := st.InsertStartStop(ctx, model.StartStopEvent{
		EmployeeID: emp,
		Kind:       kind,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		Timestamp:  rc.Timestamp,
		Address:    address,
	})
	if err != nil {
		return rc, err
	}
	if !inserted {
		return rc, fault.Errorf(fault.KindDuplicate, "agent.record_start_stop", "%s already recorded at %s", kind, rc.Timestamp)
	}

	if kind == model.KindStart {
		if err := st.SetJSON(ctx, model.StateLastStartCheckin, map[string]any{
			"latitude":  loc.Latitude,
			"longitude": loc.Longitude,
			"timestamp": rc.Timestamp,
		}); err != nil {
			return rc, err
		}
	}
	if err := a.SetTrackingActive(ctx, kind == model.KindStart); err != nil {
		return rc, err
	}
	if f, ok := a.deps.Remote.(statusForgetter); ok {
		f.ForgetStatus(emp)
	}

	a.syncNow(ctx)
	ev, found, err := st.StartStopByIdentity(ctx, emp, kind, rc.Timestamp)
	if err != nil {
		return rc, err
	}
	rc.Uploaded = found && ev.Uploaded
	if !rc.Uploaded {
		rc.Notice = NoticeStoredOffline
	}
	return rc, nil
}

// RecordContractCheckin stores a check-in and tries to upload it at once.
// An empty contractID records a check-in that is not tied to a contract.
// A second check-in of the same contract on the same civil day fails with
// a fault.KindDuplicate error.
func (a *Agent) RecordContractCheckin(ctx context.Context, contractID string, loc model.Location, comment, address string) (Receipt, error) {
	if err := loc.Validate(); err != nil {
		return Receipt{}, err
	}
	emp, err := a.employee(ctx)
	if err != nil {
		return Receipt{}, err
	}
	if contractID == "" {
		contractID = model.SentinelContractID
	}
	st := a.deps.Store
	rc := Receipt{Timestamp: a.now()}

	inserted, err := st.InsertCheckin(ctx, model.ContractCheckin{
		ContractID: contractID,
		EmployeeID: emp,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		Timestamp:  rc.Timestamp,
		Comment:    comment,
		Address:    address,
	})
	if err != nil {
		return rc, err
	}
	if !inserted {
		return rc, fault.Errorf(fault.KindDuplicate, "agent.record_checkin", "check-in already recorded at %s", rc.Timestamp)
	}
	if contractID != model.SentinelContractID {
		if err := st.SetState(ctx, model.CheckinInProgressKey(contractID), rc.Timestamp); err != nil {
			return rc, err
		}
	}

	a.syncNow(ctx)
	pending, err := st.PendingCheckins(ctx, emp, 0)
	if err != nil {
		return rc, err
	}
	rc.Uploaded = true
	for _, c := range pending {
		if c.ContractID == contractID && c.Timestamp == rc.Timestamp {
			rc.Uploaded = false
			rc.Notice = NoticeStoredOffline
			break
		}
	}
	return rc, nil
}

// CheckinInProgress reports whether a check-in of contractID is waiting for
// upload.
func (a *Agent) CheckinInProgress(ctx context.Context, contractID string) (bool, error) {
	_, ok, err := a.deps.Store.GetState(ctx, model.CheckinInProgressKey(contractID))
	return ok, err
}

func (a *Agent) syncNow(ctx context.Context) {
	if _, err := a.engine.SyncNow(ctx); err != nil {
		slog.Warn("immediate sync failed", "error", err)
	}
}

// LocalEvents returns today's merged local event list of employee.
func (a *Agent) LocalEvents(ctx context.Context, employee string) ([]model.DisplayEvent, error) {
	return a.deps.Store.LocalEvents(ctx, employee, a.today())
}

// TriggerSyncNow runs one sync cycle.
func (a *Agent) TriggerSyncNow(ctx context.Context) (syncer.CycleReport, error) {
	return a.engine.SyncNow(ctx)
}

// TrackingActive reports the local tracking flag.
func (a *Agent) TrackingActive(ctx context.Context) (bool, error) {
	return a.deps.Store.GetBool(ctx, model.StateTrackingActive)
}

// SetTrackingActive sets the local tracking flag and switches background
// capture to match.
func (a *Agent) SetTrackingActive(ctx context.Context, active bool) error {
	if err := a.deps.Store.SetBool(ctx, model.StateTrackingActive, active); err != nil {
		return err
	}
	return a.switchCapture(ctx, active)
}

func (a *Agent) switchCapture(ctx context.Context, active bool) error {
	capt := a.deps.Capture
	switch {
	case active:
		if s, ok := capt.(starter); ok {
			return s.Start(ctx)
		}
	case capt.Active(ctx):
		return capt.Stop(ctx)
	}
	return nil
}

// restoreCapture switches background capture to match the stored tracking
// flag, which may have been set by an earlier process.
func (a *Agent) restoreCapture(ctx context.Context) error {
	active, err := a.TrackingActive(ctx)
	if err != nil {
		return err
	}
	return a.switchCapture(ctx, active)
}

// ConsolidatedView returns today's events reconciled with the server.
func (a *Agent) ConsolidatedView(ctx context.Context) (reconcile.View, error) {
	emp, err := a.employee(ctx)
	if err != nil {
		return reconcile.View{}, err
	}
	return a.rec.ConsolidatedView(ctx, emp)
}
