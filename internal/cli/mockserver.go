package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/mockapi"
)

// MockServerOptions holds flags for the mock-server command.
type MockServerOptions struct {
	*RootOptions
	Listen    string
	Contracts string // JSON file: employee id -> contract list
}

// NewMockServerCommand creates the mock-server command.
func NewMockServerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MockServerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Serve an in-memory field API for local runs",
		Long: `Serve an in-memory implementation of the field API. It issues tokens for
the configured client credentials, verifies request signatures and keeps
every upload in memory until it exits.

Example:
  fieldsync mock-server --listen 127.0.0.1:8089
  fieldsync mock-server --contracts contracts.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMockServer(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "127.0.0.1:8089", "address to listen on")
	cmd.Flags().StringVar(&opts.Contracts, "contracts", "", "JSON file mapping employee ids to contract lists")
	return cmd
}

func runMockServer(cmd *cobra.Command, opts *MockServerOptions) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := mockapi.New(mockapi.Config{
		ClientID:     cfg.API.ClientID,
		ClientSecret: cfg.API.ClientSecret,
		Clock:        opts.Clock,
	})
	if opts.Contracts != "" {
		if err := seedContracts(srv, opts.Contracts); err != nil {
			return WrapExitError(ExitCommandError, "failed to load contracts", err)
		}
	}

	ln, err := net.Listen("tcp", opts.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	httpSrv := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()
	fmt.Fprintf(cmd.OutOrStdout(), "mock API listening on http://%s\n", ln.Addr())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "mock server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("mock server shutdown", "error", err)
	}
	return nil
}

func seedContracts(srv *mockapi.Server, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var byEmployee map[string][]mockapi.Contract
	if err := json.Unmarshal(data, &byEmployee); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for emp, contracts := range byEmployee {
		srv.SetContracts(emp, contracts)
	}
	return nil
}
