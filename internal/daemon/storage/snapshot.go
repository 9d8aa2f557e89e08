package storage

import (
	"time"

	"github.com/grovetools/tabwatt/pkg/models"
)

// Snapshot is the periodically persisted copy of the tab registry.
type Snapshot struct {
	SavedAt     time.Time            `json:"savedAt"`
	ActiveTabID int                  `json:"activeTabId,omitempty"`
	Sessions    []*models.TabSession `json:"sessions"`
}

// SaveSnapshot persists snap.
func (s *Storage) SaveSnapshot(snap Snapshot) error {
	if snap.SavedAt.IsZero() {
		snap.SavedAt = s.now()
	}
	return s.setJSON(KeySnapshot, snap)
}

// LoadSnapshot returns the last persisted snapshot, or nil.
func (s *Storage) LoadSnapshot() (*Snapshot, error) {
	var snap Snapshot
	ok, err := s.getJSON(KeySnapshot, &snap)
	if err != nil || !ok {
		return nil, err
	}
	return &snap, nil
}

// MigrationMarker returns the persisted migration marker, or nil.
func (s *Storage) MigrationMarker() (*models.MigrationMarker, error) {
	var m models.MigrationMarker
	ok, err := s.getJSON(KeyMigrationVersion, &m)
	if err != nil || !ok {
		return nil, err
	}
	return &m, nil
}

// SetMigrationMarker persists m.
func (s *Storage) SetMigrationMarker(m models.MigrationMarker) error {
	return s.setJSON(KeyMigrationVersion, m)
}
