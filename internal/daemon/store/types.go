// Package store provides the in-memory view and pub/sub hub of the tabwatt daemon.
package store

import (
	"time"

	"github.com/grovetools/tabwatt/pkg/models"
)

// State is what stream subscribers can ask for at any time.
type State struct {
	Sessions    map[int]*models.TabSession `json:"sessions"` // Keyed by tab id
	ActiveTabID int                        `json:"activeTabId,omitempty"`
	LastSave    time.Time                  `json:"lastSave,omitempty"`
	LastCleanup time.Time                  `json:"lastCleanup,omitempty"`
}

// UpdateType defines what kind of data changed.
type UpdateType string

const (
	UpdateSessions       UpdateType = "sessions"
	UpdateSession        UpdateType = "session"
	UpdateSessionRemoved UpdateType = "session_removed"
	UpdateActiveTab      UpdateType = "active_tab"
	UpdateTip            UpdateType = "tip"
	UpdateHostCommand    UpdateType = "host_command"
	UpdateMaintenance    UpdateType = "maintenance"
	UpdateConfigReload   UpdateType = "config_reload"
)

// Update represents a change to the state.
type Update struct {
	Type    UpdateType
	Source  string // Which component sent this update (e.g., "tracker", "snapshot", "retention")
	Count   int    // Items affected (sessions saved, entries removed)
	Payload interface{}
}
