package capture

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// BackgroundCapture controls the platform's background location updates.
type BackgroundCapture interface {
	Active(ctx context.Context) bool
	Stop(ctx context.Context) error
}

// Controller is an in-process BackgroundCapture. It only tracks whether
// capture is running; the fixes themselves come from HandleBatch callers.
type Controller struct {
	active atomic.Bool
}

// Active reports whether capture is running.
func (c *Controller) Active(context.Context) bool {
	return c.active.Load()
}

// Start marks capture as running.
func (c *Controller) Start(context.Context) error {
	if !c.active.Swap(true) {
		slog.Info("background capture started")
	}
	return nil
}

// Stop marks capture as stopped.
func (c *Controller) Stop(context.Context) error {
	if c.active.Swap(false) {
		slog.Info("background capture stopped")
	}
	return nil
}
