package devicecode

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"openhands-enterprise/backend/internal/observability/metrics"
)

const (
	defaultCleanupInterval  = time.Hour
	defaultCleanupBatchSize = 100
)

// Cleaner deletes expired device codes in bounded batches so the table stays
// small without long-running deletes.
type Cleaner struct {
	svc       *Service
	interval  time.Duration
	batchSize int
	stats     *metrics.SchedulerMetrics
	log       *zap.Logger
}

// NewCleaner builds a cleaner. Non-positive interval and batch size fall back
// to one hour and 100 rows; stats and log may be nil.
func NewCleaner(svc *Service, interval time.Duration, batchSize int, stats *metrics.SchedulerMetrics, log *zap.Logger) *Cleaner {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	if batchSize <= 0 {
		batchSize = defaultCleanupBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cleaner{
		svc:       svc,
		interval:  interval,
		batchSize: batchSize,
		stats:     stats,
		log:       log,
	}
}

// RunOnce deletes one batch of expired codes and returns the deleted count.
func (c *Cleaner) RunOnce(ctx context.Context) (int64, error) {
	deleted, err := c.svc.CleanupStale(ctx, c.batchSize)
	if err != nil {
		return 0, fmt.Errorf("cleanup stale device codes: %w", err)
	}
	c.stats.AddCleanupDeleted(int(deleted))
	if deleted > 0 {
		c.log.Info("expired device codes deleted", zap.Int64("count", deleted))
	}
	return deleted, nil
}

// RunForever runs a pass immediately and then every interval until ctx is
// cancelled. Failed passes are logged and retried on the next tick.
func (c *Cleaner) RunForever(ctx context.Context) {
	c.log.Info("device code cleanup loop started",
		zap.Duration("interval", c.interval),
		zap.Int("batch_size", c.batchSize))
	for {
		if _, err := c.RunOnce(ctx); err != nil {
			c.log.Error("device code cleanup failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			c.log.Info("device code cleanup loop stopped")
			return
		case <-time.After(c.interval):
		}
	}
}
