package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/agent"
	"github.com/roach88/fieldsync/internal/api"
	"github.com/roach88/fieldsync/internal/config"
	"github.com/roach88/fieldsync/internal/session"
	"github.com/roach88/fieldsync/internal/store"
)

// app is the wired agent behind one command invocation.
type app struct {
	cfg    config.Config
	store  *store.Store
	client *api.Client
	agent  *agent.Agent
	out    *OutputFormatter
}

// loadConfig reads --config and applies --db.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
	}
	return cfg, nil
}

// openApp loads the configuration, opens the store and wires the agent.
// Callers must Close the result.
func openApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	slog.Debug("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path, store.WithClock(opts.Clock))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	probe, err := api.NewDialProbe(cfg.API.BaseURL, cfg.API.Timeout)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "invalid api.base_url", err)
	}
	clientCfg := cfg.ClientSettings()
	clientCfg.Connectivity = probe
	clientCfg.Clock = opts.Clock
	client := api.NewClient(clientCfg)

	acfg := agent.DefaultConfig()
	acfg.Capture = cfg.CaptureSettings()
	acfg.Sync = cfg.SyncSettings()
	acfg.MaintenanceEvery = cfg.Maintenance.Every
	acfg.Location = cfg.Location()

	a := agent.New(agent.Deps{
		Store:        st,
		Remote:       client,
		Identity:     session.StaticIdentity(cfg.Identity.EmployeeID),
		Connectivity: probe,
		Clock:        opts.Clock,
	}, acfg)

	return &app{
		cfg:    cfg,
		store:  st,
		client: client,
		agent:  a,
		out:    newFormatter(cmd, opts),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}

// employee returns the configured employee id or a command error.
func (a *app) employee() (string, error) {
	if a.cfg.Identity.EmployeeID == "" {
		return "", NewExitError(ExitCommandError, "identity.employee_id is not set (config or "+config.EnvEmployeeID+")")
	}
	return a.cfg.Identity.EmployeeID, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
