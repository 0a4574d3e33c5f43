package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/store"
)

// StatusResult is the output of the status command.
type StatusResult struct {
	Employee       string       `json:"employee"`
	Database       string       `json:"database"`
	SchemaVersion  int          `json:"schema_version"`
	TrackingActive bool         `json:"tracking_active"`
	Counts         store.Counts `json:"counts"`
	Pending        int64        `json:"pending"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show local store status",
		Long: `Show the schema version, the local tracking flag and the row counts of
the local store. Nothing is sent to the server.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			res := StatusResult{Employee: a.cfg.Identity.EmployeeID, Database: a.cfg.Database.Path}
			if res.SchemaVersion, err = a.store.SchemaVersion(ctx); err != nil {
				return a.out.Fail("failed to read schema version", err)
			}
			if res.TrackingActive, err = a.agent.TrackingActive(ctx); err != nil {
				return a.out.Fail("failed to read tracking flag", err)
			}
			if res.Counts, err = a.store.Counts(ctx); err != nil {
				return a.out.Fail("failed to count events", err)
			}
			res.Pending = res.Counts.Pending()

			return a.out.Success(res, func(w io.Writer) {
				emp := res.Employee
				if emp == "" {
					emp = "(none)"
				}
				c := res.Counts
				fmt.Fprintf(w, "employee:        %s\n", emp)
				fmt.Fprintf(w, "schema version:  %d\n", res.SchemaVersion)
				fmt.Fprintf(w, "tracking active: %t\n", res.TrackingActive)
				fmt.Fprintf(w, "tracking:        %d (%d pending)\n", c.Tracking, c.TrackingPending)
				fmt.Fprintf(w, "start/stop:      %d (%d pending)\n", c.StartStop, c.StartStopPending)
				fmt.Fprintf(w, "check-ins:       %d (%d pending)\n", c.Checkins, c.CheckinsPending)
				fmt.Fprintf(w, "contracts:       %d\n", c.Contracts)
			})
		},
	}
}
