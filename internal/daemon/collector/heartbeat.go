package collector

import (
	"context"
	"time"

	"github.com/grovetools/tabwatt/internal/daemon/store"
	"github.com/grovetools/tabwatt/pkg/models"
)

// SessionSource lists the tracked sessions.
type SessionSource interface {
	Sessions() []*models.TabSession
}

// HeartbeatCollector republishes the full session list at a fixed interval.
// Stream clients use it to resync and to detect a dead daemon.
type HeartbeatCollector struct {
	source   SessionSource
	interval time.Duration
}

// NewHeartbeatCollector creates a HeartbeatCollector. If interval is 0,
// defaults to 15 seconds.
func NewHeartbeatCollector(source SessionSource, interval time.Duration) *HeartbeatCollector {
	if interval == 0 {
		interval = 15 * time.Second
	}
	return &HeartbeatCollector{source: source, interval: interval}
}

// Name returns the collector's name.
func (c *HeartbeatCollector) Name() string { return "heartbeat" }

// Run publishes the session list every interval.
func (c *HeartbeatCollector) Run(ctx context.Context, st *store.Store, updates chan<- store.Update) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sessions := c.source.Sessions()
			emit(ctx, updates, store.Update{
				Type:    store.UpdateSessions,
				Source:  c.Name(),
				Count:   len(sessions),
				Payload: sessions,
			})
		}
	}
}
