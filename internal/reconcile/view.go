package reconcile

import (
	"context"
	"log/slog"

	"github.com/roach88/fieldsync/internal/api"
	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/store"
)

// View sources.
const (
	SourceServer = "server"
	SourceLocal  = "local"
)

// View is the event list of one employee for today's civil date.
type View struct {
	Employee string               `json:"employee"`
	Date     string               `json:"date"`
	Source   string               `json:"source"`
	Reason   string               `json:"reason,omitempty"`
	Replaced *store.ReplaceStats  `json:"replaced,omitempty"`
	Events   []model.DisplayEvent `json:"events"`
}

// ConsolidatedView returns today's events for employee. When online it first
// pushes pending tracking rows, then replaces the local uploaded rows with the
// server's record of the day. Offline, or when the fetch fails, the local
// events are returned as they are.
func (r *Reconciler) ConsolidatedView(ctx context.Context, employee string) (View, error) {
	v := View{Employee: employee, Date: r.today(), Source: SourceLocal}
	st := r.deps.Store

	switch {
	case r.deps.Remote == nil:
		v.Reason = "no remote"
	case !r.deps.Connectivity.Online(ctx):
		v.Reason = "offline"
	default:
		if err := r.pushPendingTracking(ctx, employee); err != nil {
			return v, err
		}
		res := r.deps.Remote.GetRecords(ctx, employee, model.FormatCivil(r.clock.Now(), r.loc))
		if !res.IsOk() {
			v.Reason = "fetch failed"
			slog.Warn("server records unavailable, showing local events", "employee", employee, "error", res.Err())
			break
		}
		stats, err := st.ReplaceWithServerRecords(ctx, employee, serverRecords(res.Value))
		if err != nil {
			return v, err
		}
		v.Source = SourceServer
		v.Replaced = &stats
		slog.Debug("local events replaced by server records", "employee", employee,
			"deleted", stats.Deleted.Total(), "inserted", stats.Inserted.Total())
	}

	events, err := st.LocalEvents(ctx, employee, v.Date)
	if err != nil {
		return v, err
	}
	v.Events = events
	return v, nil
}

// pushPendingTracking uploads pending tracking rows so the server record
// includes them. Upload failures are logged; the rows stay pending and are
// not touched by the replacement.
func (r *Reconciler) pushPendingTracking(ctx context.Context, employee string) error {
	if r.deps.Syncer == nil {
		return nil
	}
	pending, err := r.deps.Store.HasPendingTracking(ctx, employee)
	if err != nil || !pending {
		return err
	}
	if err := r.deps.Syncer.SyncTracking(ctx, employee); err != nil {
		slog.Warn("tracking sync before reconciliation failed", "employee", employee, "error", err)
	}
	return nil
}

// serverRecords sorts server records into the three local streams.
func serverRecords(recs []api.Record) store.ServerRecords {
	var out store.ServerRecords
	for _, rec := range recs {
		ts := rec.Timestamp()
		if ts == "" {
			continue
		}
		loc := rec.Location()
		switch rec.Kind() {
		case api.SaveStart, api.SaveStop:
			kind := model.KindStart
			if rec.Kind() == api.SaveStop {
				kind = model.KindStop
			}
			out.StartStops = append(out.StartStops, model.StartStopEvent{
				Kind:      kind,
				Latitude:  loc.Latitude,
				Longitude: loc.Longitude,
				Timestamp: ts,
				Address:   rec.Address,
			})
		case api.SaveContract:
			out.Checkins = append(out.Checkins, model.ContractCheckin{
				ContractID: rec.LeaseNo,
				Latitude:   loc.Latitude,
				Longitude:  loc.Longitude,
				Timestamp:  ts,
				Comment:    rec.Comment,
				Address:    rec.Address,
			})
		default:
			out.Tracking = append(out.Tracking, model.TrackingPoint{
				Latitude:  loc.Latitude,
				Longitude: loc.Longitude,
				Timestamp: ts,
			})
		}
	}
	return out
}
