// Package capture decides which raw location fixes become tracking points.
//
// Each fix runs one cycle of the state machine
//
//	Idle → Validate → CheckMovement → CheckRemoteStopSignal → Persist → MaybeUpload → Idle
//
// A rejected fix ends the cycle with no side effects. Errors are logged and
// swallowed at the cycle boundary so the scheduler callback always returns;
// the filter never marks anything uploaded itself.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/fault"
	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/session"
	"github.com/roach88/fieldsync/internal/store"
)

// Config holds the filter thresholds.
type Config struct {
	MaxAccuracyMeters float64
	MinDistanceMeters float64
	StopCheckThrottle time.Duration
	UploadInterval    time.Duration
	CheckinProximity  time.Duration
	Location          *time.Location
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MaxAccuracyMeters: 30,
		MinDistanceMeters: 10,
		StopCheckThrottle: 15 * time.Second,
		UploadInterval:    2 * time.Minute,
		CheckinProximity:  time.Minute,
		Location:          model.WIB,
	}
}

// StatusChecker asks the server whether background tracking may continue.
type StatusChecker interface {
	IsTrackingAuthorized(ctx context.Context, employee string) fault.Result[bool]
}

// TrackingSyncer uploads the pending tracking stream of one employee.
type TrackingSyncer interface {
	SyncTracking(ctx context.Context, employee string) error
}

// Deps are the collaborators of a Filter. Status, Capture and Uploader may be
// nil, which disables the corresponding stage.
type Deps struct {
	Store    *store.Store
	Identity session.Identity
	Status   StatusChecker
	Capture  BackgroundCapture
	Uploader TrackingSyncer
	Clock    clock.Clock
}

// Filter runs capture cycles. It keeps no state of its own between cycles:
// the last accepted point and the stop-check throttle live in the store.
type Filter struct {
	deps  Deps
	cfg   Config
	clock clock.Clock
}

// New creates a filter.
func New(deps Deps, cfg Config) *Filter {
	if cfg.Location == nil {
		cfg.Location = model.WIB
	}
	return &Filter{deps: deps, cfg: cfg, clock: clock.OrSystem(deps.Clock)}
}

// HandleBatch runs one cycle per fix, in order. A batch carrying an error is
// logged and ignored. HandleBatch always returns.
func (f *Filter) HandleBatch(ctx context.Context, b model.Batch) []Outcome {
	if b.Err != nil {
		slog.Warn("location batch error", "error", b.Err)
		return nil
	}
	out := make([]Outcome, 0, len(b.Fixes))
	for _, fix := range b.Fixes {
		o, err := f.Process(ctx, fix)
		if err != nil {
			slog.Error("capture cycle failed", "outcome", o, "error", err)
		}
		out = append(out, o)
	}
	return out
}

// Process runs a single cycle and reports where it ended.
func (f *Filter) Process(ctx context.Context, fix model.Fix) (Outcome, error) {
	c := &cycle{f: f, fix: fix}
	st := stateValidate
	for st != stateIdle {
		next, err := c.step(ctx, st)
		if err != nil {
			return c.outcome, fmt.Errorf("%s: %w", st, err)
		}
		slog.Debug("capture transition", "from", st, "to", next)
		st = next
	}
	return c.outcome, nil
}

type state int

const (
	stateIdle state = iota
	stateValidate
	stateCheckMovement
	stateCheckRemoteStop
	statePersist
	stateMaybeUpload
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateValidate:
		return "validate"
	case stateCheckMovement:
		return "check_movement"
	case stateCheckRemoteStop:
		return "check_remote_stop"
	case statePersist:
		return "persist"
	case stateMaybeUpload:
		return "maybe_upload"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is where a cycle ended.
type Outcome string

const (
	OutcomeNoIdentity  Outcome = "no_identity"
	OutcomeLowAccuracy Outcome = "low_accuracy"
	OutcomeInvalid     Outcome = "invalid_location"
	OutcomeNoMovement  Outcome = "no_movement"
	OutcomeNearCheckin Outcome = "near_checkin"
	OutcomeStopped     Outcome = "stopped_by_server"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomePersisted   Outcome = "persisted"
	OutcomeUploaded    Outcome = "persisted_and_synced"
	OutcomeFailed      Outcome = "failed"
)

// startCheckin is the stored location and time of the last start event.
type startCheckin struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp string  `json:"timestamp"`
}

type cycle struct {
	f         *Filter
	fix       model.Fix
	employee  string
	timestamp string
	outcome   Outcome
}

func (c *cycle) step(ctx context.Context, st state) (state, error) {
	switch st {
	case stateValidate:
		return c.validate(ctx)
	case stateCheckMovement:
		return c.checkMovement(ctx)
	case stateCheckRemoteStop:
		return c.checkRemoteStop(ctx)
	case statePersist:
		return c.persist(ctx)
	case stateMaybeUpload:
		return c.maybeUpload(ctx)
	}
	return stateIdle, nil
}

func (c *cycle) fail(err error) (state, error) {
	c.outcome = OutcomeFailed
	return stateIdle, err
}

func (c *cycle) validate(ctx context.Context) (state, error) {
	if err := c.fix.Location.Validate(); err != nil {
		slog.Warn("location fix rejected", "error", err)
		c.outcome = OutcomeInvalid
		return stateIdle, nil
	}
	if c.fix.Accuracy > c.f.cfg.MaxAccuracyMeters {
		c.outcome = OutcomeLowAccuracy
		return stateIdle, nil
	}
	if c.f.deps.Identity == nil {
		c.outcome = OutcomeNoIdentity
		return stateIdle, nil
	}
	emp, err := c.f.deps.Identity.EmployeeID(ctx)
	if err != nil {
		return c.fail(err)
	}
	if emp == "" {
		c.outcome = OutcomeNoIdentity
		return stateIdle, nil
	}
	c.employee = emp

	at := c.fix.Timestamp
	if at.IsZero() {
		at = c.f.clock.Now()
	}
	c.timestamp = model.FormatCivil(at.Truncate(time.Second), c.f.cfg.Location)
	return stateCheckMovement, nil
}

func (c *cycle) checkMovement(ctx context.Context) (state, error) {
	st := c.f.deps.Store

	var last model.Location
	found, err := st.GetJSON(ctx, model.StateLastTracked, &last)
	if err != nil {
		return c.fail(err)
	}
	if found && Distance(last, c.fix.Location) < c.f.cfg.MinDistanceMeters {
		c.outcome = OutcomeNoMovement
		return stateIdle, nil
	}

	var sc startCheckin
	found, err = st.GetJSON(ctx, model.StateLastStartCheckin, &sc)
	if err != nil {
		return c.fail(err)
	}
	if found && c.nearCheckin(sc) {
		c.outcome = OutcomeNearCheckin
		return stateIdle, nil
	}
	return stateCheckRemoteStop, nil
}

// nearCheckin reports whether the fix repeats the start check-in position
// within the proximity window.
func (c *cycle) nearCheckin(sc startCheckin) bool {
	if sc.Latitude != c.fix.Latitude || sc.Longitude != c.fix.Longitude {
		return false
	}
	at, err := model.ParseCivil(sc.Timestamp, c.f.cfg.Location)
	if err != nil {
		return false
	}
	fixAt, err := model.ParseCivil(c.timestamp, c.f.cfg.Location)
	if err != nil {
		return false
	}
	diff := fixAt.Sub(at)
	if diff < 0 {
		diff = -diff
	}
	return diff < c.f.cfg.CheckinProximity
}

func (c *cycle) checkRemoteStop(ctx context.Context) (state, error) {
	if c.f.deps.Status == nil {
		return statePersist, nil
	}
	st := c.f.deps.Store
	now := c.f.clock.Now()

	last, err := st.GetInt(ctx, model.StateLastStopCheck)
	if err != nil {
		return c.fail(err)
	}
	if last > 0 && now.Sub(time.UnixMilli(last)) < c.f.cfg.StopCheckThrottle {
		return statePersist, nil
	}
	if err := st.SetInt(ctx, model.StateLastStopCheck, now.UnixMilli()); err != nil {
		return c.fail(err)
	}

	res := c.f.deps.Status.IsTrackingAuthorized(ctx, c.employee)
	if !res.IsOk() {
		// Unknown server state never stops capture.
		slog.Debug("stop check skipped", "employee", c.employee, "error", res.Err())
		return statePersist, nil
	}
	if res.Value {
		return statePersist, nil
	}
	running, err := c.captureRunning(ctx)
	if err != nil {
		return c.fail(err)
	}
	if !running {
		return statePersist, nil
	}

	if bg := c.f.deps.Capture; bg != nil && bg.Active(ctx) {
		if err := bg.Stop(ctx); err != nil {
			return c.fail(err)
		}
	}
	if err := st.SetBool(ctx, model.StateTrackingActive, false); err != nil {
		return c.fail(err)
	}
	slog.Info("tracking stopped by server", "employee", c.employee)
	c.outcome = OutcomeStopped
	return stateIdle, nil
}

// captureRunning reports whether a tracking session is open on this device.
// The stored flag outlives the process; the controller only knows about
// sessions started since it was created.
func (c *cycle) captureRunning(ctx context.Context) (bool, error) {
	if bg := c.f.deps.Capture; bg != nil && bg.Active(ctx) {
		return true, nil
	}
	return c.f.deps.Store.GetBool(ctx, model.StateTrackingActive)
}

func (c *cycle) persist(ctx context.Context) (state, error) {
	st := c.f.deps.Store
	inserted, err := st.InsertTrackingPoint(ctx, model.TrackingPoint{
		EmployeeID: c.employee,
		Latitude:   c.fix.Latitude,
		Longitude:  c.fix.Longitude,
		Timestamp:  c.timestamp,
	})
	if err != nil {
		return c.fail(err)
	}
	if err := st.SetJSON(ctx, model.StateLastTracked, c.fix.Location); err != nil {
		return c.fail(err)
	}
	if inserted {
		c.outcome = OutcomePersisted
	} else {
		c.outcome = OutcomeDuplicate
	}
	slog.Debug("tracking point stored",
		"employee", c.employee, "timestamp", c.timestamp, "inserted", inserted, "mocked", c.fix.Mocked)
	return stateMaybeUpload, nil
}

func (c *cycle) maybeUpload(ctx context.Context) (state, error) {
	if c.f.deps.Uploader == nil {
		return stateIdle, nil
	}
	last, err := c.f.deps.Store.GetInt(ctx, model.StateLastUpload)
	if err != nil {
		return stateIdle, err
	}
	if last > 0 && c.f.clock.Now().Sub(time.UnixMilli(last)) < c.f.cfg.UploadInterval {
		return stateIdle, nil
	}
	if err := c.f.deps.Uploader.SyncTracking(ctx, c.employee); err != nil {
		return stateIdle, err
	}
	if c.outcome == OutcomePersisted {
		c.outcome = OutcomeUploaded
	}
	return stateIdle, nil
}
