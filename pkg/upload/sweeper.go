package upload

import (
	"context"
	"time"

	"github.com/rexpump/mediad/internal/logger"
)

// RunSweeper runs the expiry sweep every interval until ctx is cancelled.
// Per-run failures are logged and the loop continues.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	logger.Info("expiry sweeper started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := e.Sweep(); err != nil {
				logger.Error("expiry sweep failed", "error", err)
			}
		}
	}
}
