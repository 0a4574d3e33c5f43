package reconcile

import (
	"context"
	"log/slog"

	"github.com/roach88/fieldsync/internal/fault"
	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/store"
)

// PruneReport describes one retention pass.
type PruneReport struct {
	Cutoff string           `json:"cutoff"`
	DryRun bool             `json:"dry_run,omitempty"`
	Stats  store.PruneStats `json:"deleted"`
}

// Prune deletes every event, uploaded or not, whose civil date is before
// today minus days calendar days.
func (r *Reconciler) Prune(ctx context.Context, days int) (PruneReport, error) {
	cutoff, err := r.cutoff(days)
	if err != nil {
		return PruneReport{}, err
	}
	stats, err := r.deps.Store.PruneBefore(ctx, cutoff)
	if err != nil {
		return PruneReport{Cutoff: cutoff}, err
	}
	slog.Info("pruned old events", "cutoff", cutoff, "deleted", stats.Total())
	return PruneReport{Cutoff: cutoff, Stats: stats}, nil
}

// PreviewPrune counts what Prune(days) would delete.
func (r *Reconciler) PreviewPrune(ctx context.Context, days int) (PruneReport, error) {
	cutoff, err := r.cutoff(days)
	if err != nil {
		return PruneReport{}, err
	}
	stats, err := r.deps.Store.CountBefore(ctx, cutoff)
	return PruneReport{Cutoff: cutoff, DryRun: true, Stats: stats}, err
}

func (r *Reconciler) cutoff(days int) (string, error) {
	if days < 0 {
		return "", fault.Errorf(fault.KindValidation, "reconcile.prune", "days must not be negative, got %d", days)
	}
	return model.DaysBefore(r.clock.Now(), r.loc, days), nil
}
