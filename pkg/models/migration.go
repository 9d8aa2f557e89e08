package models

import "time"

// MigrationStats counts what a legacy-data migration run did.
type MigrationStats struct {
	Total                int       `json:"total"`
	MigratedCount        int       `json:"migratedCount"`
	AlreadyMigratedCount int       `json:"alreadyMigratedCount"`
	FailedCount          int       `json:"failedCount"`
	StartedAt            time.Time `json:"startedAt"`
	CompletedAt          time.Time `json:"completedAt"`
}

// MigrationResult is the outcome of MIGRATE_LEGACY_DATA.
type MigrationResult struct {
	Success   bool           `json:"success"`
	Skipped   bool           `json:"skipped,omitempty"`
	Stats     MigrationStats `json:"stats"`
	BackupKey string         `json:"backupKey,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// MigrationMarker is persisted after each attempt and gates the next one.
type MigrationMarker struct {
	Version     int             `json:"version"`
	Completed   bool            `json:"completed"`
	LastAttempt time.Time       `json:"lastAttempt"`
	LastStats   *MigrationStats `json:"lastStats,omitempty"`
	LastError   string          `json:"lastError,omitempty"`
}

// BackupInfo describes one timestamped backup blob.
type BackupInfo struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
	Keys      []string  `json:"keys"`
	Size      int       `json:"size"`
}

// MigrationStatus is the answer to GET_MIGRATION_STATUS.
type MigrationStatus struct {
	CurrentVersion  int              `json:"currentVersion"`
	Marker          *MigrationMarker `json:"marker,omitempty"`
	NeedsMigration  bool             `json:"needsMigration"`
	LegacyEntries   int              `json:"legacyEntries"`
	NextAttemptFrom *time.Time       `json:"nextAttemptFrom,omitempty"`
	Backups         []BackupInfo     `json:"backups"`
}
