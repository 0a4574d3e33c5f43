package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/reconcile"
)

// MigrateLegacyOptions holds flags for the migrate-legacy command.
type MigrateLegacyOptions struct {
	*RootOptions
	Mode       string
	DryRun     bool
	PruneAfter int
}

// NewMigrateLegacyCommand creates the migrate-legacy command.
func NewMigrateLegacyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateLegacyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate-legacy [path]",
		Short: "Adopt a legacy pending-locations file into the store",
		Long: `Adopt the JSON list of pending locations written by older app versions.
Entries are inserted as tracking points; entries already present are skipped.
The file is removed once every entry has been adopted or dropped, so the
command can be repeated safely.

Without a path the configured maintenance.legacy_path is used. By default
only entries of today are adopted; --mode all adopts every entry.

Example:
  fieldsync migrate-legacy pendingLocations.json --dry-run
  fieldsync migrate-legacy --mode all
  fieldsync migrate-legacy --mode all --prune-after 30`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			path := a.cfg.Maintenance.LegacyPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return NewExitError(ExitCommandError, "no legacy file given (argument or maintenance.legacy_path)")
			}

			rep, err := a.agent.Reconciler().MigrateLegacy(cmd.Context(), path, reconcile.MigrateOptions{
				Mode:           reconcile.MigrateMode(opts.Mode),
				Employee:       a.cfg.Identity.EmployeeID,
				DryRun:         opts.DryRun,
				PruneAfterDays: opts.PruneAfter,
			})
			if err != nil {
				return a.out.Fail("legacy migration failed", err)
			}
			if err := a.out.Success(rep, func(w io.Writer) { writeMigrateReport(w, rep) }); err != nil {
				return err
			}
			if rep.Failed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d legacy entries could not be migrated", rep.Failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", string(reconcile.MigrateToday), "which entries to adopt (today|all)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report without writing anything")
	cmd.Flags().IntVar(&opts.PruneAfter, "prune-after", 0, "after a complete all-mode run, prune events older than this many days")
	return cmd
}

func writeMigrateReport(w io.Writer, rep reconcile.MigrateReport) {
	if rep.Found == 0 {
		fmt.Fprintf(w, "%s: nothing to migrate\n", rep.Path)
		return
	}
	verb := "migrated"
	if rep.DryRun {
		verb = "would migrate"
	}
	fmt.Fprintf(w, "%s: %d entries, %s %d\n", rep.Path, rep.Found, verb, rep.Migrated)
	fmt.Fprintf(w, "  duplicates: %d\n", rep.Duplicates)
	fmt.Fprintf(w, "  deferred:   %d\n", rep.Deferred)
	fmt.Fprintf(w, "  invalid:    %d\n", rep.Invalid)
	fmt.Fprintf(w, "  failed:     %d\n", rep.Failed)
	switch {
	case rep.DryRun:
	case rep.FileRemoved:
		fmt.Fprintln(w, "file removed")
	default:
		fmt.Fprintf(w, "%d entries left in file\n", rep.Remaining)
	}
	if rep.Pruned != nil {
		fmt.Fprintf(w, "pruned %d old events\n", rep.Pruned.Total())
	}
}
