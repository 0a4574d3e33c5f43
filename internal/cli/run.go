package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/capture"
	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/syncer"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Fixes string // JSON-lines file of location fixes, "-" for stdin
	Once  bool
}

// RunResult is the output of the run command.
type RunResult struct {
	Fixes    int                     `json:"fixes"`
	Outcomes map[capture.Outcome]int `json:"outcomes,omitempty"`
	Sync     *syncer.CycleReport     `json:"sync,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent",
		Long: `Run the fieldsync agent: daily maintenance, the periodic sync engine and
the capture filter.

Location fixes are read as JSON lines, one fix per line:
  {"latitude":-6.2,"longitude":106.8,"accuracy":8,"timestamp":"2025-03-14T08:30:00+07:00"}

Without --once the agent runs until interrupted.

Example:
  fieldsync run --config fieldsync.yaml
  gps-feed | fieldsync run --fixes - --config fieldsync.yaml
  fieldsync run --fixes fixes.jsonl --once`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Fixes, "fixes", "", `JSON-lines file of location fixes ("-" for stdin)`)
	cmd.Flags().BoolVar(&opts.Once, "once", false, "process input, run one sync cycle and exit")

	return cmd
}

func runAgent(cmd *cobra.Command, opts *RunOptions) error {
	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if opts.Once {
		if _, err := a.agent.Maintain(ctx); err != nil {
			slog.Warn("daily maintenance failed", "error", err)
		}
	} else {
		if err := a.agent.Start(ctx); err != nil {
			return a.out.Fail("failed to start agent", err)
		}
		defer a.agent.Stop()
		slog.Info("agent started", "db", a.cfg.Database.Path, "api", a.cfg.API.BaseURL)
	}

	result := RunResult{}
	if opts.Fixes != "" {
		r, closeInput, err := openInput(cmd, opts.Fixes)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open fixes", err)
		}
		defer closeInput()

		result.Outcomes, result.Fixes, err = feedFixes(ctx, a, r, clock.OrSystem(opts.Clock))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read fixes", err)
		}
	}

	if opts.Once {
		rep, err := a.agent.TriggerSyncNow(ctx)
		if err != nil {
			return a.out.Fail("sync failed", err)
		}
		result.Sync = &rep
	} else {
		<-ctx.Done()
	}

	return a.out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "fixes: %d\n", result.Fixes)
		outcomes := make([]string, 0, len(result.Outcomes))
		for o := range result.Outcomes {
			outcomes = append(outcomes, string(o))
		}
		sort.Strings(outcomes)
		for _, o := range outcomes {
			fmt.Fprintf(w, "  %-22s %d\n", o, result.Outcomes[capture.Outcome(o)])
		}
		if result.Sync != nil {
			writeCycle(w, *result.Sync)
		}
	})
}

// openInput opens path, or stdin for "-".
func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// feedFixes runs every JSON-lines fix in r through the capture filter.
// Fixes without a timestamp are stamped with the current time.
func feedFixes(ctx context.Context, a *app, r io.Reader, clk clock.Clock) (map[capture.Outcome]int, int, error) {
	outcomes := make(map[capture.Outcome]int)
	n := 0
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var fix model.Fix
		if err := json.Unmarshal([]byte(text), &fix); err != nil {
			return outcomes, n, fmt.Errorf("line %d: %w", line, err)
		}
		if fix.Timestamp.IsZero() {
			fix.Timestamp = clk.Now()
		}
		if ctx.Err() != nil {
			return outcomes, n, ctx.Err()
		}
		out, err := a.agent.RecordLocation(ctx, fix)
		if err != nil {
			slog.Warn("fix not recorded", "line", line, "error", err)
		}
		outcomes[out]++
		n++
	}
	return outcomes, n, sc.Err()
}

func writeCycle(w io.Writer, rep syncer.CycleReport) {
	if rep.Skipped != "" {
		fmt.Fprintf(w, "sync skipped: %s\n", rep.Skipped)
		return
	}
	fmt.Fprintf(w, "sync: %d uploaded, %d failed\n", rep.Uploaded(), rep.Failed())
	for _, s := range rep.Streams {
		fmt.Fprintf(w, "  %-10s attempted=%d uploaded=%d failed=%d", s.Stream, s.Attempted, s.Uploaded, s.Failed)
		if s.Offline {
			fmt.Fprint(w, " offline")
		}
		fmt.Fprintln(w)
	}
}
