package protocol

import (
	"time"

	"github.com/grovetools/tabwatt/pkg/models"
)

// StreamUpdate is one event on the daemon's /api/stream SSE endpoint.
type StreamUpdate struct {
	UpdateType string               `json:"update_type"` // "initial", "sessions", "session", "session_removed", "active_tab", "tip", "host_command", "maintenance", "config_reload"
	Source     string               `json:"source,omitempty"`
	Count      int                  `json:"count,omitempty"`
	Sessions   []*models.TabSession `json:"sessions,omitempty"`
	Session    *models.TabSession   `json:"session,omitempty"`
	TabID      int                  `json:"tab_id,omitempty"`
	Command    *HostCommand         `json:"command,omitempty"`
	Tip        *models.Tip          `json:"tip,omitempty"`
	ConfigFile string               `json:"config_file,omitempty"`
}

// RunningConfig holds the settings the daemon is actually running with.
// This is exposed via the /api/config endpoint so clients can verify what config is active.
type RunningConfig struct {
	StorageDriver     string        `json:"storage_driver"`
	StoragePath       string        `json:"storage_path"`
	SnapshotInterval  time.Duration `json:"snapshot_interval"`
	CleanupInterval   time.Duration `json:"cleanup_interval"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	SnapshotMaxAge    time.Duration `json:"snapshot_max_age"`
	InjectAttempts    int           `json:"inject_attempts"`
	InjectBackoff     time.Duration `json:"inject_backoff"`
	CollaboratorAddr  string        `json:"collaborator_addr,omitempty"`
	ConfigFile        string        `json:"config_file,omitempty"`
	StartedAt         time.Time     `json:"started_at"`
}
