package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/reconcile"
	"github.com/roach88/fieldsync/internal/store"
)

// PruneOptions holds flags for the prune command.
type PruneOptions struct {
	*RootOptions
	Days   int
	DryRun bool
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PruneOptions{RootOptions: rootOpts, Days: -1}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete events older than a number of days",
		Long: `Delete every event whose civil date is before today minus --days calendar
days, uploaded or not. Without --days the configured retention is used.

Example:
  fieldsync prune --days 30 --dry-run
  fieldsync prune`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			days := opts.Days
			if days < 0 {
				days = a.cfg.Maintenance.RetentionDays
			}
			rec := a.agent.Reconciler()
			var rep reconcile.PruneReport
			if opts.DryRun {
				rep, err = rec.PreviewPrune(cmd.Context(), days)
			} else {
				rep, err = rec.Prune(cmd.Context(), days)
			}
			if err != nil {
				return a.out.Fail("prune failed", err)
			}
			return a.out.Success(rep, func(w io.Writer) {
				verb := "deleted"
				if rep.DryRun {
					verb = "would delete"
				}
				fmt.Fprintf(w, "events before %s: %s %d\n", rep.Cutoff, verb, rep.Stats.Total())
				writeStats(w, rep.Stats)
			})
		},
	}

	cmd.Flags().IntVar(&opts.Days, "days", -1, "keep this many calendar days (default from config)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "count without deleting")
	return cmd
}

func writeStats(w io.Writer, s store.PruneStats) {
	fmt.Fprintf(w, "  tracking:   %d\n", s.Tracking)
	fmt.Fprintf(w, "  start/stop: %d\n", s.StartStop)
	fmt.Fprintf(w, "  check-ins:  %d\n", s.Checkins)
}
