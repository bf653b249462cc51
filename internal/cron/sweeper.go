package cron

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PreviewSweeper deletes stale import previews.
type PreviewSweeper interface {
	Sweep(ctx context.Context, now time.Time, maxAge time.Duration) (int, error)
}

// StartPreviewSweeper launches a background goroutine that runs once
// immediately and then every interval, until ctx is cancelled.
func StartPreviewSweeper(ctx context.Context, previews PreviewSweeper, interval, maxAge time.Duration, logger *zap.Logger) {
	go func() {
		runSweep(ctx, previews, maxAge, logger)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runSweep(ctx, previews, maxAge, logger)
			}
		}
	}()

	logger.Info("[cron] teto preview sweeper started",
		zap.Duration("interval", interval),
		zap.Duration("max_age", maxAge))
}

func runSweep(ctx context.Context, previews PreviewSweeper, maxAge time.Duration, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := previews.Sweep(ctx, time.Now(), maxAge)
	if err != nil {
		logger.Error("[cron] teto preview sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		logger.Info("[cron] expired teto previews removed", zap.Int("count", removed))
	}
}
