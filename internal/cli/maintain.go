package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewMaintainCommand creates the maintain command.
func NewMaintainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Run the daily rollover if it has not run today",
		Long: `Run the daily rollover: uploaded events are deleted, app state is cleared
and a tracking session left open from an earlier day is closed with a stop
event. The rollover runs at most once per day; later calls do nothing.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.agent.Maintain(cmd.Context())
			if err != nil {
				return a.out.Fail("daily maintenance failed", err)
			}
			return a.out.Success(rep, func(w io.Writer) {
				if !rep.Ran {
					fmt.Fprintf(w, "maintenance already ran on %s\n", rep.Date)
					return
				}
				fmt.Fprintf(w, "maintenance ran on %s: purged %d uploaded events, cleared %d state keys\n",
					rep.Date, rep.Purged.Total(), rep.StateCleared)
				if rep.AutoStopped {
					fmt.Fprintln(w, "closed a tracking session left open from an earlier day")
				}
			})
		},
	}
}
