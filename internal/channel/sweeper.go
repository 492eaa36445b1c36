package channel

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper runs a background goroutine that periodically drops
// completed sessions older than retention from every channel.
func StartSweeper(ctx context.Context, reg *Registry, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				sweepAll(reg, retention)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepAll(reg *Registry, retention time.Duration) int {
	total := 0
	for _, c := range reg.All() {
		if removed := c.Sweep(retention); removed > 0 {
			slog.Info("Session sweeper removed completed games", "channel", c.Name(), "count", removed)
			total += removed
		}
	}
	return total
}
