package workers

import (
	"context"
	"log/slog"
	"time"
)

// MaintenanceFunc performs one maintenance pass and returns the number of
// items it touched.
type MaintenanceFunc func(ctx context.Context) (int, error)

// runMaintenanceLoop runs a maintenance function periodically until ctx is
// done.
func runMaintenanceLoop(ctx context.Context, name string, interval time.Duration, fn MaintenanceFunc) {
	slog.InfoContext(ctx, "Maintenance worker starting",
		slog.String("worker", name),
		slog.Duration("interval", interval),
	)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Maintenance worker stopping", slog.String("worker", name))
			return
		case <-ticker.C:
			runPass(ctx, name, fn)
		}
	}
}

// runPass executes a single pass with a bounded run time.
func runPass(ctx context.Context, name string, fn MaintenanceFunc) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	touched, err := fn(runCtx)
	if err != nil {
		slog.WarnContext(ctx, "Maintenance pass failed",
			slog.String("worker", name),
			slog.Any("error", err),
		)
	} else if touched > 0 {
		slog.InfoContext(ctx, "Maintenance pass completed",
			slog.String("worker", name),
			slog.Int("touched", touched),
		)
	}
}
