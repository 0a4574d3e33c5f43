package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop all local data and recreate the schema",
		Long: `Drop every table of the local store and recreate the schema. Pending
events that were never uploaded are lost. Requires --yes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "reset deletes all local data; pass --yes to confirm")
			}
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			before, err := a.store.Counts(cmd.Context())
			if err != nil {
				return a.out.Fail("failed to count events", err)
			}
			if before.Pending() > 0 {
				a.out.VerboseLog("dropping %d pending events", before.Pending())
			}
			if err := a.store.Reset(cmd.Context()); err != nil {
				return a.out.Fail("reset failed", err)
			}
			data := map[string]int64{"dropped_pending": before.Pending()}
			return a.out.Success(data, func(w io.Writer) {
				fmt.Fprintf(w, "local store reset (%d pending events dropped)\n", before.Pending())
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting all local data")
	return cmd
}
