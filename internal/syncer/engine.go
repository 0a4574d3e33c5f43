package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/fieldsync/internal/api"
	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/fault"
	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/session"
	"github.com/roach88/fieldsync/internal/store"
)

// Stream names.
const (
	StreamTracking  = "tracking"
	StreamStartStop = "start_stop"
	StreamCheckins  = "checkins"
)

// Config controls cycle cadence and the uploader.
type Config struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	RetryDelay  time.Duration
	Location    *time.Location
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Interval:    2 * time.Minute,
		BatchSize:   5,
		MaxAttempts: 3,
		RetryDelay:  5 * time.Second,
		Location:    model.WIB,
	}
}

// Remote is the subset of the API client the engine calls.
type Remote interface {
	Save(ctx context.Context, req api.SaveRequest) fault.Result[api.SaveResponse]
	UpdateStatus(ctx context.Context, req api.UpdateCheckRequest) fault.Result[api.SaveResponse]
	TrackingStatus(ctx context.Context, employee string) fault.Result[api.TrackingStatus]
}

// IDGenerator produces cycle ids. Implemented by UUIDv7Generator and
// testutil.FixedIDs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable cycle ids.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Store        *store.Store
	Remote       Remote
	Identity     session.Identity
	Connectivity api.Connectivity
	Clock        clock.Clock
	IDs          IDGenerator
}

// Engine is the periodic synchronizer.
//
// Thread-safety: all methods are safe for concurrent use. At most one cycle
// runs at a time; overlapping requests are skipped, not queued.
type Engine struct {
	deps  Deps
	cfg   Config
	clock clock.Clock

	cycleMu sync.Mutex // held for the duration of a cycle

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	status Status
}

// New creates an engine. Call Start for periodic cycles.
func New(deps Deps, cfg Config) *Engine {
	if deps.IDs == nil {
		deps.IDs = UUIDv7Generator{}
	}
	if deps.Connectivity == nil {
		deps.Connectivity = api.AlwaysOnline{}
	}
	if cfg.Location == nil {
		cfg.Location = model.WIB
	}
	return &Engine{deps: deps, cfg: cfg, clock: clock.OrSystem(deps.Clock)}
}

// ErrAlreadyRunning is returned by Start when the ticker loop is running.
var ErrAlreadyRunning = errors.New("sync engine already running")

// Start runs one cycle immediately and then one per Interval until Stop or
// ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.loop(loopCtx, e.done)
	slog.Info("sync engine started", "interval", e.cfg.Interval)
	return nil
}

// Stop prevents new cycles and waits for the loop to exit. An in-flight
// cycle runs to completion first.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("sync engine stopped")
}

// Running reports whether the ticker loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		// Cycles ignore loop cancellation so Stop never interrupts one.
		if _, err := e.SyncNow(context.WithoutCancel(ctx)); err != nil {
			slog.Error("sync cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	ID       string          `json:"id"`
	Employee string          `json:"employee,omitempty"`
	Started  time.Time       `json:"started"`
	Duration time.Duration   `json:"duration"`
	Skipped  string          `json:"skipped,omitempty"` // busy | offline | no_identity
	Streams  []StreamSummary `json:"streams,omitempty"`
}

// StreamSummary is the per-stream part of a CycleReport.
type StreamSummary struct {
	Stream    string `json:"stream"`
	Attempted int    `json:"attempted"`
	Uploaded  int    `json:"uploaded"`
	Failed    int    `json:"failed"`
	Offline   bool   `json:"offline,omitempty"`
}

// Uploaded returns the total rows marked uploaded in the cycle.
func (r CycleReport) Uploaded() int {
	n := 0
	for _, s := range r.Streams {
		n += s.Uploaded
	}
	return n
}

// Failed returns the total rows left pending after attempts.
func (r CycleReport) Failed() int {
	n := 0
	for _, s := range r.Streams {
		n += s.Failed
	}
	return n
}

func summarize[T any](rep Report[T]) StreamSummary {
	return StreamSummary{
		Stream:    rep.Stream,
		Attempted: rep.Attempted,
		Uploaded:  len(rep.Uploaded),
		Failed:    rep.Failed,
		Offline:   rep.Offline,
	}
}

// Status is the engine's observable state.
type Status struct {
	Cycles      int64       `json:"cycles"`
	LastCycleAt time.Time   `json:"last_cycle_at"`
	LastError   string      `json:"last_error,omitempty"`
	LastReport  CycleReport `json:"last_report"`
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// SyncNow runs one cycle over all three streams. It returns immediately with
// a skipped report when another cycle is in flight, the device is offline,
// or nobody is signed in.
func (e *Engine) SyncNow(ctx context.Context) (CycleReport, error) {
	rep := CycleReport{ID: e.deps.IDs.Generate(), Started: e.clock.Now()}

	if !e.cycleMu.TryLock() {
		rep.Skipped = "busy"
		return rep, nil
	}
	defer e.cycleMu.Unlock()

	rep, err := e.cycle(ctx, rep)
	rep.Duration = e.clock.Now().Sub(rep.Started)

	e.mu.Lock()
	e.status.Cycles++
	e.status.LastCycleAt = rep.Started
	e.status.LastReport = rep
	e.status.LastError = ""
	if err != nil {
		e.status.LastError = err.Error()
	}
	e.mu.Unlock()

	slog.Info("sync cycle finished",
		"cycle", rep.ID, "skipped", rep.Skipped, "uploaded", rep.Uploaded(), "failed", rep.Failed(), "error", err)
	return rep, err
}

func (e *Engine) cycle(ctx context.Context, rep CycleReport) (CycleReport, error) {
	if !e.deps.Connectivity.Online(ctx) {
		rep.Skipped = "offline"
		return rep, nil
	}
	emp, err := e.employee(ctx)
	if err != nil {
		return rep, err
	}
	if emp == "" {
		rep.Skipped = "no_identity"
		return rep, nil
	}
	rep.Employee = emp

	// Pending rows upload under their own employee, whoever is signed in.
	tr, err := e.syncTracking(ctx, "")
	rep.Streams = append(rep.Streams, tr)
	if err != nil {
		return rep, err
	}
	ss, err := e.syncStartStops(ctx)
	rep.Streams = append(rep.Streams, ss)
	if err != nil {
		return rep, err
	}
	ci, err := e.syncCheckins(ctx)
	rep.Streams = append(rep.Streams, ci)
	return rep, err
}

func (e *Engine) employee(ctx context.Context) (string, error) {
	if e.deps.Identity == nil {
		return "", nil
	}
	return e.deps.Identity.EmployeeID(ctx)
}

// SyncTracking uploads the pending tracking points of employee, or of every
// employee when it is empty. It is a no-op while a full cycle is in flight.
func (e *Engine) SyncTracking(ctx context.Context, employee string) error {
	if !e.cycleMu.TryLock() {
		return nil
	}
	defer e.cycleMu.Unlock()
	if !e.deps.Connectivity.Online(ctx) {
		return nil
	}
	_, err := e.syncTracking(ctx, employee)
	return err
}

// SyncStatus asks the server for the authoritative tracking state and
// stores it in the tracking-active flag. Offline or failed queries leave the
// local flag unchanged and return it.
func (e *Engine) SyncStatus(ctx context.Context, employee string) (bool, error) {
	st := e.deps.Store
	res := e.deps.Remote.TrackingStatus(ctx, employee)
	if !res.IsOk() {
		local, err := st.GetBool(ctx, model.StateTrackingActive)
		if err != nil {
			return false, err
		}
		slog.Debug("status sync skipped", "employee", employee, "error", res.Err())
		return local, nil
	}
	active := res.Value.Active()
	if err := st.SetBool(ctx, model.StateTrackingActive, active); err != nil {
		return false, err
	}
	return active, nil
}

func newUploader[T any](e *Engine, stream string, id func(T) int64,
	save func(context.Context, T) error, mark func(context.Context, []int64) error) *Uploader[T] {
	return &Uploader[T]{
		Stream:      stream,
		BatchSize:   e.cfg.BatchSize,
		MaxAttempts: e.cfg.MaxAttempts,
		RetryDelay:  e.cfg.RetryDelay,
		Clock:       e.clock,
		ID:          id,
		Save:        save,
		Mark:        mark,
	}
}

func (e *Engine) syncTracking(ctx context.Context, emp string) (StreamSummary, error) {
	st := e.deps.Store
	rows, err := st.PendingTrackingPoints(ctx, emp, 0)
	if err != nil {
		return StreamSummary{Stream: StreamTracking}, err
	}
	if len(rows) == 0 {
		return StreamSummary{Stream: StreamTracking}, nil
	}
	slog.Debug("tracking pending", "employee", emp, "rows", len(rows))

	u := newUploader(e, StreamTracking,
		func(p model.TrackingPoint) int64 { return p.ID },
		func(ctx context.Context, p model.TrackingPoint) error {
			req := api.NewSaveRequest(api.SaveTracking, p.EmployeeID,
				model.Location{Latitude: p.Latitude, Longitude: p.Longitude}, p.Timestamp, "")
			return e.deps.Remote.Save(ctx, req).Err()
		},
		st.MarkTrackingUploaded)

	rep, err := u.Run(ctx, rows)
	if err != nil {
		return summarize(rep), err
	}
	if len(rep.Uploaded) > 0 {
		if err := e.afterTrackingUpload(ctx, emp, rep.Uploaded); err != nil {
			return summarize(rep), err
		}
	}
	return summarize(rep), nil
}

// afterTrackingUpload records the last upload and, on the first upload of a
// civil day, drops uploaded rows of previous days.
func (e *Engine) afterTrackingUpload(ctx context.Context, emp string, uploaded []model.TrackingPoint) error {
	st := e.deps.Store
	now := e.clock.Now()

	latest := uploaded[0]
	for _, p := range uploaded[1:] {
		if p.Timestamp > latest.Timestamp {
			latest = p
		}
	}
	if err := st.SetInt(ctx, model.StateLastUpload, now.UnixMilli()); err != nil {
		return err
	}
	if err := st.SetState(ctx, model.StateLastSentTime, latest.Timestamp); err != nil {
		return err
	}
	if err := st.SetJSON(ctx, model.StateLastSentLocation,
		model.Location{Latitude: latest.Latitude, Longitude: latest.Longitude}); err != nil {
		return err
	}

	today := model.Today(now, e.cfg.Location)
	first, _, err := st.GetState(ctx, model.StateFirstSyncDate)
	if err != nil {
		return err
	}
	if first == today {
		return nil
	}
	stats, err := st.PurgeUploaded(ctx, emp, today)
	if err != nil {
		return err
	}
	if stats.Total() > 0 {
		slog.Info("first upload of the day purged older rows", "employee", emp, "rows", stats.Total())
	}
	return st.SetState(ctx, model.StateFirstSyncDate, today)
}

func (e *Engine) syncStartStops(ctx context.Context) (StreamSummary, error) {
	st := e.deps.Store
	rows, err := st.PendingStartStops(ctx, "", 0)
	if err != nil || len(rows) == 0 {
		return StreamSummary{Stream: StreamStartStop}, err
	}

	u := newUploader(e, StreamStartStop,
		func(ev model.StartStopEvent) int64 { return ev.ID },
		func(ctx context.Context, ev model.StartStopEvent) error {
			typ := api.SaveStart
			if ev.Kind == model.KindStop {
				typ = api.SaveStop
			}
			req := api.NewSaveRequest(typ, ev.EmployeeID,
				model.Location{Latitude: ev.Latitude, Longitude: ev.Longitude}, ev.Timestamp, ev.Address)
			return e.deps.Remote.Save(ctx, req).Err()
		},
		st.MarkStartStopUploaded)

	rep, err := u.Run(ctx, rows)
	return summarize(rep), err
}

func (e *Engine) syncCheckins(ctx context.Context) (StreamSummary, error) {
	st := e.deps.Store
	rows, err := st.PendingCheckins(ctx, "", 0)
	if err != nil || len(rows) == 0 {
		return StreamSummary{Stream: StreamCheckins}, err
	}

	u := newUploader(e, StreamCheckins,
		func(c model.ContractCheckin) int64 { return c.ID },
		func(ctx context.Context, c model.ContractCheckin) error {
			return e.deps.Remote.Save(ctx, checkinSaveRequest(c)).Err()
		},
		st.MarkCheckinsUploaded)

	rep, err := u.Run(ctx, rows)
	if err != nil {
		return summarize(rep), err
	}
	for _, c := range rep.Uploaded {
		if err := e.afterCheckinUpload(ctx, c); err != nil {
			return summarize(rep), err
		}
	}
	return summarize(rep), nil
}

// checkinSaveRequest builds the save body of a check-in. Sentinel check-ins
// upload as tracking.
func checkinSaveRequest(c model.ContractCheckin) api.SaveRequest {
	loc := model.Location{Latitude: c.Latitude, Longitude: c.Longitude}
	if c.IsTracking() {
		return api.NewSaveRequest(api.SaveTracking, c.EmployeeID, loc, c.Timestamp, "")
	}
	req := api.NewSaveRequest(api.SaveContract, c.EmployeeID, loc, c.Timestamp, c.Address)
	req.LeaseNo = c.ContractID
	req.Comment = c.Comment
	return req
}

// afterCheckinUpload notifies the server, flags the cached contract and
// clears the in-progress indicator. The status update is best effort.
func (e *Engine) afterCheckinUpload(ctx context.Context, c model.ContractCheckin) error {
	if c.IsTracking() {
		return nil
	}
	st := e.deps.Store

	res := e.deps.Remote.UpdateStatus(ctx, api.UpdateCheckRequest{
		EmployeeName: c.EmployeeID,
		LeaseNo:      c.ContractID,
		Comment:      c.Comment,
		Latitude:     strconv.FormatFloat(c.Latitude, 'f', -1, 64),
		Longitude:    strconv.FormatFloat(c.Longitude, 'f', -1, 64),
		CheckIn:      c.Timestamp,
		CreatedDate:  c.Timestamp,
	})
	if err := res.Err(); err != nil {
		slog.Warn("contract status update failed", "contract", c.ContractID, "error", err)
	}

	if _, err := st.MarkContractCheckedIn(ctx, c.EmployeeID, c.ContractID, c.Comment, c.Timestamp); err != nil {
		return fmt.Errorf("flag contract %s: %w", c.ContractID, err)
	}
	return st.DeleteState(ctx, model.CheckinInProgressKey(c.ContractID))
}
