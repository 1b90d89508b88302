// Copyright 2025 James Ross
package obs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/holocron/orchestrator/internal/store"
)

// StartQueueDepthUpdater samples work_items/jobs row counts by status and
// updates the QueueDepth gauge, the SQL-backed analog of the teacher's
// Redis LLEN poller.
func StartQueueDepthUpdater(ctx context.Context, queue store.Backend, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if stats, err := queue.WorkItemStats(ctx); err != nil {
					log.Debug("queue depth poll error", String("table", "work_items"), Err(err))
				} else {
					for status, count := range stats.ByStatus {
						QueueDepth.WithLabelValues("work_items", status).Set(float64(count))
					}
				}
				if stats, err := queue.JobStats(ctx); err != nil {
					log.Debug("queue depth poll error", String("table", "jobs"), Err(err))
				} else {
					for status, count := range stats.ByStatus {
						QueueDepth.WithLabelValues("jobs", status).Set(float64(count))
					}
				}
			}
		}
	}()
}
