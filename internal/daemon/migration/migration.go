// Package migration converts history recorded by older releases, which stored
// a 0-100 energy score, into watt-based entries.
package migration

import (
	"context"
	"time"

	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/internal/daemon/kv"
	"github.com/grovetools/tabwatt/internal/daemon/storage"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/grovetools/tabwatt/pkg/power"
	"github.com/sirupsen/logrus"
)

// CurrentVersion is the data version written once every entry carries watts.
const CurrentVersion = 2

// DefaultRetryGate is how long a failed migration blocks the next attempt.
const DefaultRetryGate = 24 * time.Hour

// BackupKeys are the keys snapshotted before every migration attempt.
var BackupKeys = []string{storage.KeyHistory, storage.KeySettings, storage.KeyMigrationVersion}

// Migrator runs legacy-data migrations against a Storage.
type Migrator struct {
	st     *storage.Storage
	calc   *power.Calculator
	gate   time.Duration
	now    func() time.Time
	logger *logrus.Entry
}

// New creates a Migrator.
func New(st *storage.Storage, calc *power.Calculator, logger *logrus.Entry) *Migrator {
	return &Migrator{st: st, calc: calc, gate: DefaultRetryGate, now: time.Now, logger: logger}
}

// WithClock replaces the time source, for tests.
func (m *Migrator) WithClock(now func() time.Time) *Migrator {
	m.now = now
	return m
}

// Migrate rewrites every history entry that lacks a watt figure. Entries that
// already have one are left untouched. Running it again after a successful
// run changes nothing and counts every entry as already migrated.
func (m *Migrator) Migrate(ctx context.Context) (models.MigrationStats, error) {
	stats := models.MigrationStats{StartedAt: m.now()}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	err := m.st.ModifyHistory(func(entries []models.HistoryEntry) ([]models.HistoryEntry, error) {
		// The closure may run more than once on a write conflict.
		stats.Total, stats.MigratedCount, stats.AlreadyMigratedCount, stats.FailedCount = len(entries), 0, 0, 0

		changed := false
		for i := range entries {
			e := &entries[i]
			if e.HasPower() {
				stats.AlreadyMigratedCount++
				continue
			}
			if e.EnergyScore == nil {
				stats.FailedCount++
				continue
			}
			m.migrateEntry(e, stats.StartedAt)
			stats.MigratedCount++
			changed = true
		}
		if !changed {
			return nil, kv.ErrNoChange
		}
		return entries, nil
	})
	stats.CompletedAt = m.now()
	if err != nil {
		return stats, tabwatterrors.Wrap(err, tabwatterrors.ErrCodeMigrationFailed, "legacy migration failed")
	}
	return stats, nil
}

func (m *Migrator) migrateEntry(e *models.HistoryEntry, at time.Time) {
	watts := power.MigrateLegacyScore(*e.EnergyScore)
	energy := m.calc.EstimateEnergyConsumption(watts, e.Duration())
	e.PowerWatts = models.Float(watts)
	e.EnergyKWh = energy.KWh
	e.EnergyCost = energy.Cost
	e.CO2Grams = energy.CO2Grams
	if e.Domain == "" {
		e.Domain = models.Domain(e.URL)
	}
	migratedAt := at
	e.MigratedAt = &migratedAt
}

// Run performs a gated migration: a completed migration is a no-op, a failed
// one blocks retries for the gate period, and every real attempt is preceded
// by a backup whose key is returned in the result.
func (m *Migrator) Run(ctx context.Context) (*models.MigrationResult, error) {
	now := m.now()
	marker, err := m.st.MigrationMarker()
	if err != nil {
		return nil, err
	}

	if marker != nil && marker.Completed && marker.Version >= CurrentVersion {
		stats, err := m.count()
		if err != nil {
			return nil, err
		}
		if stats.Total == stats.AlreadyMigratedCount+stats.FailedCount {
			return &models.MigrationResult{Success: true, Skipped: true, Stats: stats}, nil
		}
	}
	if marker != nil && !marker.Completed && now.Sub(marker.LastAttempt) < m.gate {
		return nil, tabwatterrors.MigrationRateLimited(marker.LastAttempt, marker.LastAttempt.Add(m.gate))
	}

	backup, err := m.st.CreateBackup(BackupKeys...)
	if err != nil {
		return nil, err
	}
	m.logger.WithField("backup", backup.Key).Info("Created pre-migration backup")

	stats, migrateErr := m.Migrate(ctx)
	next := models.MigrationMarker{
		Version:     CurrentVersion,
		Completed:   migrateErr == nil,
		LastAttempt: now,
		LastStats:   &stats,
	}
	result := &models.MigrationResult{Success: migrateErr == nil, Stats: stats, BackupKey: backup.Key}
	if migrateErr != nil {
		next.LastError = migrateErr.Error()
		result.Error = migrateErr.Error()
		m.logger.WithError(migrateErr).WithField("backup", backup.Key).Error("Legacy migration failed")
	} else {
		m.logger.WithFields(logrus.Fields{
			"migrated": stats.MigratedCount,
			"already":  stats.AlreadyMigratedCount,
			"failed":   stats.FailedCount,
		}).Info("Legacy migration completed")
	}

	if err := m.st.SetMigrationMarker(next); err != nil {
		return result, err
	}
	return result, nil
}

// Status reports the marker, pending legacy entries and available backups.
func (m *Migrator) Status() (*models.MigrationStatus, error) {
	marker, err := m.st.MigrationMarker()
	if err != nil {
		return nil, err
	}
	stats, err := m.count()
	if err != nil {
		return nil, err
	}
	backups, err := m.st.ListBackups()
	if err != nil {
		return nil, err
	}

	status := &models.MigrationStatus{
		CurrentVersion: CurrentVersion,
		Marker:         marker,
		LegacyEntries:  stats.Total - stats.AlreadyMigratedCount,
		Backups:        backups,
	}
	status.NeedsMigration = status.LegacyEntries-stats.FailedCount > 0
	if marker != nil && !marker.Completed {
		next := marker.LastAttempt.Add(m.gate)
		status.NextAttemptFrom = &next
	}
	return status, nil
}

// Restore writes a backup back over the live keys.
func (m *Migrator) Restore(key string) error {
	if err := m.st.RestoreBackup(key); err != nil {
		return err
	}
	m.logger.WithField("backup", key).Info("Restored from backup")
	return nil
}

// count classifies history entries without modifying them.
func (m *Migrator) count() (models.MigrationStats, error) {
	entries, err := m.st.History()
	if err != nil {
		return models.MigrationStats{}, err
	}
	stats := models.MigrationStats{Total: len(entries)}
	for _, e := range entries {
		switch {
		case e.HasPower():
			stats.AlreadyMigratedCount++
		case e.EnergyScore == nil:
			stats.FailedCount++
		}
	}
	return stats, nil
}
