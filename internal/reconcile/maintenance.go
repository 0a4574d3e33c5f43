package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/store"
)

// MaintenanceReport describes one daily rollover.
type MaintenanceReport struct {
	Date         string           `json:"date"`
	Ran          bool             `json:"ran"`
	Purged       store.PruneStats `json:"purged"`
	StateCleared int64            `json:"state_cleared"`
	AutoStopped  bool             `json:"auto_stopped"`
}

// DailyMaintenance runs the rollover at most once per civil day. It deletes
// uploaded events and clears app state; pending rows are kept. A tracking
// session left open from an earlier day is closed with a local stop event at
// the last accepted position, which the sync engine uploads like any other.
func (r *Reconciler) DailyMaintenance(ctx context.Context, employee string) (MaintenanceReport, error) {
	st := r.deps.Store
	rep := MaintenanceReport{Date: r.today()}

	last, _, err := st.GetState(ctx, model.StateLastMaintenance)
	if err != nil {
		return rep, err
	}
	if last == rep.Date {
		return rep, nil
	}

	active, err := st.GetBool(ctx, model.StateTrackingActive)
	if err != nil {
		return rep, err
	}
	open, err := r.openEarlierSession(ctx, active)
	if err != nil {
		return rep, err
	}
	// A session started today survives the rollover.
	keep := map[string]string{}
	if active && !open {
		for _, key := range []string{model.StateTrackingActive, model.StateLastStartCheckin, model.StateLastTracked} {
			if v, ok, err := st.GetState(ctx, key); err != nil {
				return rep, err
			} else if ok {
				keep[key] = v
			}
		}
	}
	var lastLoc model.Location
	if _, err := st.GetJSON(ctx, model.StateLastTracked, &lastLoc); err != nil {
		return rep, err
	}

	rep.Purged, err = st.PurgeUploaded(ctx, "", "")
	if err != nil {
		return rep, fmt.Errorf("purge uploaded: %w", err)
	}
	rep.StateCleared, err = st.DeleteStatePrefix(ctx, "")
	if err != nil {
		return rep, fmt.Errorf("clear app state: %w", err)
	}
	for key, v := range keep {
		if err := st.SetState(ctx, key, v); err != nil {
			return rep, err
		}
	}

	if open && employee != "" {
		if _, err := st.InsertStartStop(ctx, model.StartStopEvent{
			EmployeeID: employee,
			Kind:       model.KindStop,
			Latitude:   lastLoc.Latitude,
			Longitude:  lastLoc.Longitude,
			Timestamp:  model.FormatCivil(r.clock.Now(), r.loc),
		}); err != nil {
			return rep, fmt.Errorf("record automatic stop: %w", err)
		}
		rep.AutoStopped = true
		if r.deps.Capture != nil && r.deps.Capture.Active(ctx) {
			if err := r.deps.Capture.Stop(ctx); err != nil {
				slog.Warn("stop background capture failed", "error", err)
			}
		}
	}

	if err := st.SetState(ctx, model.StateLastMaintenance, rep.Date); err != nil {
		return rep, err
	}
	rep.Ran = true
	slog.Info("daily maintenance finished", "date", rep.Date, "purged", rep.Purged.Total(),
		"state_cleared", rep.StateCleared, "auto_stopped", rep.AutoStopped)
	return rep, nil
}

// openEarlierSession reports whether tracking is marked active by a start
// from an earlier civil day. A session started today is left alone.
func (r *Reconciler) openEarlierSession(ctx context.Context, active bool) (bool, error) {
	if !active {
		return false, nil
	}
	st := r.deps.Store
	var start struct {
		Timestamp string `json:"timestamp"`
	}
	found, err := st.GetJSON(ctx, model.StateLastStartCheckin, &start)
	if err != nil {
		return false, err
	}
	if found && model.CivilDate(start.Timestamp) == r.today() {
		return false, nil
	}
	return true, nil
}
