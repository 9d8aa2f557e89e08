package collector

import (
	"context"
	"time"

	"github.com/grovetools/tabwatt/internal/daemon/store"
	"github.com/sirupsen/logrus"
)

// HistoryCleaner removes history past its retention window.
type HistoryCleaner interface {
	CleanupHistory() (int, error)
}

// RetentionCollector runs history retention cleanup on a slow timer.
type RetentionCollector struct {
	target   HistoryCleaner
	interval time.Duration
	logger   *logrus.Entry
}

// NewRetentionCollector creates a RetentionCollector. If interval is 0,
// defaults to one hour.
func NewRetentionCollector(target HistoryCleaner, interval time.Duration, logger *logrus.Entry) *RetentionCollector {
	if interval == 0 {
		interval = time.Hour
	}
	return &RetentionCollector{target: target, interval: interval, logger: logger}
}

// Name returns the collector's name.
func (c *RetentionCollector) Name() string { return "retention" }

// Run cleans up once at startup and then every interval.
func (c *RetentionCollector) Run(ctx context.Context, st *store.Store, updates chan<- store.Update) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	clean := func() {
		removed, err := c.target.CleanupHistory()
		if err != nil {
			c.logger.WithError(err).Warn("History retention cleanup failed")
			return
		}
		emit(ctx, updates, store.Update{Type: store.UpdateMaintenance, Source: c.Name(), Count: removed})
	}

	clean()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			clean()
		}
	}
}
