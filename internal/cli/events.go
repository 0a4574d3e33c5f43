package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/reconcile"
)

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	var server bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List today's events",
		Long: `List today's tracking points, start/stop events and check-ins in time order.

With --server the pending tracking points are pushed first and the uploaded
rows are replaced with the server's record of the day. When the server
cannot be reached the local list is shown.`,
		Example: `  fieldsync events
  fieldsync events --server --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if server {
				v, err := a.agent.ConsolidatedView(cmd.Context())
				if err != nil {
					return a.out.Fail("failed to load events", err)
				}
				return a.out.Success(v, func(w io.Writer) { writeView(w, v) })
			}

			emp, err := a.employee()
			if err != nil {
				return err
			}
			events, err := a.agent.LocalEvents(cmd.Context(), emp)
			if err != nil {
				return a.out.Fail("failed to load events", err)
			}
			return a.out.Success(events, func(w io.Writer) { writeEvents(w, events) })
		},
	}

	cmd.Flags().BoolVar(&server, "server", false, "reconcile with the server before listing")
	return cmd
}

func writeView(w io.Writer, v reconcile.View) {
	fmt.Fprintf(w, "%s %s (%s", v.Employee, v.Date, v.Source)
	if v.Reason != "" {
		fmt.Fprintf(w, ": %s", v.Reason)
	}
	fmt.Fprintln(w, ")")
	writeEvents(w, v.Events)
}

func writeEvents(w io.Writer, events []model.DisplayEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "no events")
		return
	}
	for _, e := range events {
		state := "pending"
		if e.Uploaded {
			state = "uploaded"
		}
		label := e.Label
		if e.ContractID != "" && e.ContractID != model.SentinelContractID {
			label += " " + e.ContractID
		}
		fmt.Fprintf(w, "%s  %-16s %10.6f %11.6f  %s\n", e.Timestamp, label, e.Latitude, e.Longitude, state)
	}
}
