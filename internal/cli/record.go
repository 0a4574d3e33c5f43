package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/agent"
	"github.com/roach88/fieldsync/internal/capture"
	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/model"
)

// RecordOptions holds the position flags shared by the record subcommands.
type RecordOptions struct {
	*RootOptions
	Latitude  float64
	Longitude float64
	Address   string
}

func (o *RecordOptions) location() model.Location {
	return model.Location{Latitude: o.Latitude, Longitude: o.Longitude}
}

func (o *RecordOptions) bind(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&o.Latitude, "lat", 0, "latitude in degrees (required)")
	cmd.Flags().Float64Var(&o.Longitude, "lng", 0, "longitude in degrees (required)")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
}

// NewRecordCommand creates the record command and its subcommands.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a location, start/stop event or contract check-in",
		Long: `Record an event in the local store and try to upload it at once.
When the upload is not possible the event stays pending and is synced later.`,
	}

	cmd.AddCommand(newRecordLocationCommand(rootOpts))
	cmd.AddCommand(newRecordStartStopCommand(rootOpts, model.KindStart))
	cmd.AddCommand(newRecordStartStopCommand(rootOpts, model.KindStop))
	cmd.AddCommand(newRecordCheckinCommand(rootOpts))
	return cmd
}

func newRecordLocationCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}
	var accuracy float64
	var at string
	var mocked bool

	cmd := &cobra.Command{
		Use:   "location",
		Short: "Run one location fix through the capture filter",
		Example: `  fieldsync record location --lat -6.2 --lng 106.8 --accuracy 8
  fieldsync record location --lat -6.2 --lng 106.8 --at 2025-03-14T08:30:00+07:00`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			ts := clock.OrSystem(rootOpts.Clock).Now()
			if at != "" {
				ts, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --at", err)
				}
			}
			out, err := a.agent.RecordLocation(cmd.Context(), model.Fix{
				Location:  opts.location(),
				Accuracy:  accuracy,
				Timestamp: ts,
				Mocked:    mocked,
			})
			if err != nil {
				return a.out.Fail("failed to record location", err)
			}
			data := map[string]capture.Outcome{"outcome": out}
			return a.out.Success(data, func(w io.Writer) {
				fmt.Fprintf(w, "outcome: %s\n", out)
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().Float64Var(&accuracy, "accuracy", 0, "horizontal accuracy in meters (0 when unknown)")
	cmd.Flags().StringVar(&at, "at", "", "fix time (RFC 3339, default now)")
	cmd.Flags().BoolVar(&mocked, "mocked", false, "mark the fix as coming from a mock provider")
	return cmd
}

func newRecordStartStopCommand(rootOpts *RootOptions, kind model.EventKind) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           string(kind),
		Short:         fmt.Sprintf("Record a %s event", kind),
		Example:       fmt.Sprintf("  fieldsync record %s --lat -6.2 --lng 106.8 --address \"Jl. Sudirman 1\"", kind),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			rc, err := a.agent.RecordStartStop(cmd.Context(), kind, opts.location(), opts.Address)
			if err != nil {
				return a.out.Fail(fmt.Sprintf("failed to record %s", kind), err)
			}
			return a.out.Success(rc, func(w io.Writer) { writeReceipt(w, string(kind), rc) })
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.Address, "address", "", "street address of the position")
	return cmd
}

func newRecordCheckinCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}
	var contract, comment string

	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Record a contract check-in",
		Long: `Record a check-in at a customer. A contract can be checked in once per day.
Without --contract the check-in is not tied to a contract and uploads as a
tracking point.`,
		Example:       `  fieldsync record checkin --contract L-100 --lat -6.2 --lng 106.8 --comment "met customer"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			rc, err := a.agent.RecordContractCheckin(cmd.Context(), contract, opts.location(), comment, opts.Address)
			if err != nil {
				return a.out.Fail("failed to record check-in", err)
			}
			return a.out.Success(rc, func(w io.Writer) { writeReceipt(w, "check-in", rc) })
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&contract, "contract", "", "contract (lease) number")
	cmd.Flags().StringVar(&comment, "comment", "", "visit comment")
	cmd.Flags().StringVar(&opts.Address, "address", "", "street address of the position")
	return cmd
}

func writeReceipt(w io.Writer, what string, rc agent.Receipt) {
	state := "uploaded"
	if !rc.Uploaded {
		state = rc.Notice
	}
	fmt.Fprintf(w, "%s recorded at %s: %s\n", what, rc.Timestamp, state)
}
