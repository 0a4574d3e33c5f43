package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload pending events now",
		Long: `Run one sync cycle: pending tracking points, start/stop events and contract
check-ins are uploaded in batches. Rows that fail stay pending for the next
cycle.

Example:
  fieldsync sync --config fieldsync.yaml
  fieldsync sync --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.agent.TriggerSyncNow(cmd.Context())
			if err != nil {
				return a.out.Fail("sync failed", err)
			}
			if err := a.out.Success(rep, func(w io.Writer) { writeCycle(w, rep) }); err != nil {
				return err
			}
			if rep.Failed() > 0 {
				return NewExitError(ExitFailure, "some events failed to upload")
			}
			return nil
		},
	}
}
