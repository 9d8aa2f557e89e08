package collector

import (
	"context"
	"time"

	"github.com/grovetools/tabwatt/internal/daemon/store"
	"github.com/sirupsen/logrus"
)

// Snapshotter persists the tab registry.
type Snapshotter interface {
	SaveSnapshot() (int, error)
}

// SnapshotCollector periodically persists the tab registry so a restarted
// daemon can rehydrate recent sessions.
type SnapshotCollector struct {
	target   Snapshotter
	interval time.Duration
	logger   *logrus.Entry
}

// NewSnapshotCollector creates a new SnapshotCollector with the specified interval.
// If interval is 0, defaults to 30 seconds.
func NewSnapshotCollector(target Snapshotter, interval time.Duration, logger *logrus.Entry) *SnapshotCollector {
	if interval == 0 {
		interval = 30 * time.Second
	}
	return &SnapshotCollector{target: target, interval: interval, logger: logger}
}

// Name returns the collector's name.
func (c *SnapshotCollector) Name() string { return "snapshot" }

// Run saves a snapshot every interval and once more on shutdown.
func (c *SnapshotCollector) Run(ctx context.Context, st *store.Store, updates chan<- store.Update) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	save := func() (int, bool) {
		n, err := c.target.SaveSnapshot()
		if err != nil {
			c.logger.WithError(err).Warn("Failed to save registry snapshot")
			return 0, false
		}
		return n, true
	}

	for {
		select {
		case <-ctx.Done():
			save()
			return nil
		case <-ticker.C:
			if n, ok := save(); ok {
				emit(ctx, updates, store.Update{Type: store.UpdateMaintenance, Source: c.Name(), Count: n})
			}
		}
	}
}
