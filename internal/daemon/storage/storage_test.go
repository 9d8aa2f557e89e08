package storage

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/internal/daemon/kv"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	return New(kv.NewMemory()).WithClock(func() time.Time { return testNow })
}

func entry(tabID int, url string, watts float64, age time.Duration) models.HistoryEntry {
	return models.HistoryEntry{
		Timestamp:  testNow.Add(-age),
		TabID:      tabID,
		URL:        url,
		Domain:     models.Domain(url),
		PowerWatts: models.Float(watts),
		EnergyKWh:  watts / 1000,
		DurationMs: 60000,
	}
}

func TestUpdateSettingsSanitizesBeforePersisting(t *testing.T) {
	s := newTestStorage(t)

	got, err := s.UpdateSettings(map[string]interface{}{"energyThreshold": 150})
	require.NoError(t, err)
	assert.Equal(t, 75.0, got.EnergyThreshold)

	stored, err := s.Settings()
	require.NoError(t, err)
	assert.Equal(t, 75.0, stored.EnergyThreshold)

	got, err = s.UpdateSettings(map[string]interface{}{"energyThreshold": 60, "dataRetentionDays": 7})
	require.NoError(t, err)
	assert.Equal(t, 60.0, got.EnergyThreshold)
	assert.Equal(t, 7, got.DataRetentionDays)
}

func TestUpdateSettingsWrongTypeKeepsValue(t *testing.T) {
	s := newTestStorage(t)

	got, err := s.UpdateSettings(map[string]interface{}{
		"dataRetentionDays": "a week",
		"trackingEnabled":   false,
	})
	var partial *PartialUpdateError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 30, got.DataRetentionDays)
	assert.False(t, got.TrackingEnabled)

	stored, err := s.Settings()
	require.NoError(t, err)
	assert.False(t, stored.TrackingEnabled)
}

func TestNotificationSettingsDefaults(t *testing.T) {
	s := newTestStorage(t)
	n, err := s.NotificationSettings()
	require.NoError(t, err)
	assert.Equal(t, models.DefaultNotificationSettings(), n)

	n, err = s.UpdateNotificationSettings(map[string]interface{}{"frequency": "minimal"})
	require.NoError(t, err)
	assert.Equal(t, models.FrequencyMinimal, n.Frequency)
}

func TestUpdateKeepsDefaultsMissingFromStoredObject(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.kv.Set(KeySettings, []byte(`{"energyThreshold":80}`)))
	require.NoError(t, s.kv.Set(KeyNotificationSettings, []byte(`{"position":"top-left"}`)))

	got, err := s.UpdateSettings(map[string]interface{}{"dataRetentionDays": 10})
	require.NoError(t, err)
	assert.True(t, got.TrackingEnabled)
	assert.True(t, got.NotificationsEnabled)
	assert.Equal(t, 80.0, got.EnergyThreshold)
	assert.Equal(t, 10, got.DataRetentionDays)

	stored, err := s.Settings()
	require.NoError(t, err)
	assert.Equal(t, got, stored)

	n, err := s.UpdateNotificationSettings(map[string]interface{}{"maxVisible": 2})
	require.NoError(t, err)
	assert.True(t, n.Enabled)
	assert.True(t, n.Categories.HighPower)
	assert.True(t, n.Categories.Optimization)
	assert.True(t, n.Categories.Achievements)
	assert.Equal(t, models.NotificationPosition("top-left"), n.Position)
	assert.Equal(t, 2, n.MaxVisible)
}

func TestConcurrentHistoryAppends(t *testing.T) {
	st, err := kv.OpenBadger(filepath.Join(t.TempDir(), "store"), false)
	require.NoError(t, err)
	s := New(st)
	defer s.Close()

	var wg sync.WaitGroup
	for _, tab := range []int{1, 2} {
		wg.Add(1)
		go func(tab int) {
			defer wg.Done()
			assert.NoError(t, s.AppendHistory(0, entry(tab, fmt.Sprintf("https://tab%d.example", tab), 10, 0)))
		}(tab)
	}
	wg.Wait()

	all, err := s.History()
	require.NoError(t, err)
	require.Len(t, all, 2)
	ids := []int{all[0].TabID, all[1].TabID}
	assert.ElementsMatch(t, []int{1, 2}, ids)
}

func TestAppendHistoryEvictsOldest(t *testing.T) {
	s := newTestStorage(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendHistory(3, entry(i, "https://example.com", 10, time.Duration(5-i)*time.Minute)))
	}
	all, err := s.History()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 2, all[0].TabID)
	assert.Equal(t, 4, all[2].TabID)
}

func TestCleanupHistoryRetention(t *testing.T) {
	s := newTestStorage(t)
	retention := 7 * 24 * time.Hour

	require.NoError(t, s.AppendHistory(0,
		entry(1, "https://old.example", 10, retention+time.Hour),
		entry(2, "https://boundary.example", 10, retention),
		entry(3, "https://new.example", 10, time.Hour),
		entry(4, "https://ancient.example", 10, 90*24*time.Hour),
	))

	removed, err := s.CleanupHistory(retention)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	all, err := s.History()
	require.NoError(t, err)
	cutoff := testNow.Add(-retention)
	for _, e := range all {
		assert.False(t, e.Timestamp.Before(cutoff))
	}
	assert.Len(t, all, 2)
}

func TestHistoryRange(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.AppendHistory(0,
		entry(1, "https://a.example", 10, 30*time.Minute),
		entry(2, "https://b.example", 10, 3*time.Hour),
	))

	hour, err := s.HistoryRange(models.RangeHour)
	require.NoError(t, err)
	assert.Len(t, hour, 1)

	day, err := s.HistoryRange(models.RangeDay)
	require.NoError(t, err)
	assert.Len(t, day, 2)

	_, err = s.HistoryRange("2w")
	assert.True(t, tabwatterrors.Is(err, tabwatterrors.ErrCodeInvalidInput))
}

func TestDomainStats(t *testing.T) {
	s := newTestStorage(t)
	legacy := entry(9, "https://www.youtube.com/watch?v=x", 0, time.Minute)
	legacy.PowerWatts = nil
	require.NoError(t, s.AppendHistory(0,
		entry(1, "https://www.youtube.com/watch?v=1", 40, 2*time.Hour),
		entry(2, "https://youtube.com/watch?v=2", 20, time.Hour),
		entry(3, "https://example.com", 8, time.Hour),
		legacy,
	))

	stats, err := s.DomainStats("youtube.com", testNow.Add(-24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Visits)
	assert.InDelta(t, 30, stats.AverageWatts, 1e-9)
	assert.Equal(t, testNow.Add(-time.Hour), stats.LastVisit)

	none, err := s.DomainStats("nowhere.example", time.Time{})
	require.NoError(t, err)
	assert.Nil(t, none)

	top, err := s.TopDomains(time.Time{}, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "youtube.com", top[0].Domain)
}

func TestBackendSummary(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.AppendBackendEnergy(0, models.BackendEnergyEntry{Timestamp: testNow.Add(-time.Minute), Source: "api", PowerWatts: 100, EnergyKWh: 0.5}))
	require.NoError(t, s.AppendBackendEnergy(0, models.BackendEnergyEntry{Timestamp: testNow.Add(-2 * time.Minute), Source: "worker", PowerWatts: 50, EnergyKWh: 0.25}))
	require.NoError(t, s.AppendBackendEnergy(0, models.BackendEnergyEntry{Timestamp: testNow.Add(-48 * time.Hour), Source: "api", PowerWatts: 10, EnergyKWh: 9}))

	sum, err := s.BackendSummary(models.RangeDay)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Entries)
	assert.InDelta(t, 0.75, sum.TotalKWh, 1e-9)
	assert.InDelta(t, 75, sum.AverageWatts, 1e-9)
	assert.InDelta(t, 0.5, sum.BySource["api"], 1e-9)

	_, err = s.BackendSummary("forever")
	assert.Error(t, err)
}

func TestBackupRestoreAndCleanup(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.AppendHistory(0, entry(1, "https://a.example", 10, time.Minute)))

	info, err := s.CreateBackup(KeyHistory, KeySettings)
	require.NoError(t, err)
	assert.Contains(t, info.Keys, KeyHistory)
	assert.Contains(t, info.Keys, KeySettings)

	// Mutate after the backup.
	require.NoError(t, s.AppendHistory(0, entry(2, "https://b.example", 10, 0)))
	_, err = s.UpdateSettings(map[string]interface{}{"trackingEnabled": false})
	require.NoError(t, err)

	require.NoError(t, s.RestoreBackup(info.Key))
	all, err := s.History()
	require.NoError(t, err)
	assert.Len(t, all, 1)
	settings, err := s.Settings()
	require.NoError(t, err)
	assert.True(t, settings.TrackingEnabled, "settings did not exist at backup time and must be removed")

	err = s.RestoreBackup("backup_missing")
	assert.True(t, tabwatterrors.Is(err, tabwatterrors.ErrCodeNotFound))

	for i := 1; i <= 3; i++ {
		s.WithClock(func() time.Time { return testNow.Add(time.Duration(i) * time.Hour) })
		_, err := s.CreateBackup(KeyHistory)
		require.NoError(t, err)
	}
	removed, kept, err := s.CleanupBackups(2)
	require.NoError(t, err)
	assert.Len(t, removed, 2)
	assert.Equal(t, 2, kept)
	assert.Contains(t, removed, info.Key)

	left, err := s.ListBackups()
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.True(t, left[0].CreatedAt.After(left[1].CreatedAt))
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	snap, err := s.LoadSnapshot()
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, s.SaveSnapshot(Snapshot{Sessions: []*models.TabSession{{TabID: 4, URL: "https://x.example"}}}))
	snap, err = s.LoadSnapshot()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, testNow, snap.SavedAt.UTC())
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, 4, snap.Sessions[0].TabID)
}
