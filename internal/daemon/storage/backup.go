package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/internal/daemon/kv"
	"github.com/grovetools/tabwatt/pkg/models"
)

// backupBlob is the persisted form of a backup.
type backupBlob struct {
	CreatedAt time.Time                  `json:"createdAt"`
	Values    map[string]json.RawMessage `json:"values"`
	// Absent lists keys that did not exist when the backup was taken.
	Absent []string `json:"absent,omitempty"`
}

// CreateBackup copies keys into a new timestamped backup entry and returns
// its description.
func (s *Storage) CreateBackup(keys ...string) (models.BackupInfo, error) {
	now := s.now()
	blob := backupBlob{CreatedAt: now, Values: make(map[string]json.RawMessage, len(keys))}
	for _, key := range keys {
		raw, err := s.kv.Get(key)
		if errors.Is(err, kv.ErrNotFound) {
			blob.Absent = append(blob.Absent, key)
			continue
		}
		if err != nil {
			return models.BackupInfo{}, tabwatterrors.StorageFailure(key, err)
		}
		if !json.Valid(raw) {
			return models.BackupInfo{}, tabwatterrors.StorageFailure(key, fmt.Errorf("stored value is not valid JSON"))
		}
		blob.Values[key] = raw
	}

	key := fmt.Sprintf("%s%d_%s", BackupPrefix, now.UnixMilli(), uuid.NewString()[:8])
	raw, err := json.Marshal(blob)
	if err != nil {
		return models.BackupInfo{}, tabwatterrors.StorageFailure(key, err)
	}
	if err := s.kv.Set(key, raw); err != nil {
		return models.BackupInfo{}, tabwatterrors.StorageFailure(key, err)
	}
	return blob.info(key, len(raw)), nil
}

// RestoreBackup writes every key of the backup back, deleting keys that did
// not exist when it was taken.
func (s *Storage) RestoreBackup(key string) error {
	if !strings.HasPrefix(key, BackupPrefix) {
		return tabwatterrors.BackupNotFound(key)
	}
	blob, _, err := s.loadBackup(key)
	if err != nil {
		return err
	}
	for k, v := range blob.Values {
		if err := s.kv.Set(k, v); err != nil {
			return tabwatterrors.StorageFailure(k, err)
		}
	}
	for _, k := range blob.Absent {
		if err := s.kv.Delete(k); err != nil {
			return tabwatterrors.StorageFailure(k, err)
		}
	}
	return nil
}

// ListBackups returns every backup, newest first.
func (s *Storage) ListBackups() ([]models.BackupInfo, error) {
	keys, err := s.kv.Keys(BackupPrefix)
	if err != nil {
		return nil, tabwatterrors.StorageFailure(BackupPrefix, err)
	}
	out := make([]models.BackupInfo, 0, len(keys))
	for _, k := range keys {
		blob, size, err := s.loadBackup(k)
		if err != nil {
			continue
		}
		out = append(out, blob.info(k, size))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Key > out[j].Key
	})
	return out, nil
}

// CleanupBackups deletes all but the newest keep backups and returns the
// removed keys.
func (s *Storage) CleanupBackups(keep int) ([]string, int, error) {
	if keep < 0 {
		keep = 0
	}
	backups, err := s.ListBackups()
	if err != nil {
		return nil, 0, err
	}
	if len(backups) <= keep {
		return []string{}, len(backups), nil
	}
	removed := make([]string, 0, len(backups)-keep)
	for _, b := range backups[keep:] {
		if err := s.kv.Delete(b.Key); err != nil {
			return removed, len(backups) - len(removed), tabwatterrors.StorageFailure(b.Key, err)
		}
		removed = append(removed, b.Key)
	}
	return removed, keep, nil
}

func (s *Storage) loadBackup(key string) (backupBlob, int, error) {
	raw, err := s.kv.Get(key)
	if errors.Is(err, kv.ErrNotFound) {
		return backupBlob{}, 0, tabwatterrors.BackupNotFound(key)
	}
	if err != nil {
		return backupBlob{}, 0, tabwatterrors.StorageFailure(key, err)
	}
	var blob backupBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return backupBlob{}, 0, tabwatterrors.StorageFailure(key, err)
	}
	return blob, len(raw), nil
}

func (b backupBlob) info(key string, size int) models.BackupInfo {
	keys := make([]string, 0, len(b.Values)+len(b.Absent))
	for k := range b.Values {
		keys = append(keys, k)
	}
	keys = append(keys, b.Absent...)
	sort.Strings(keys)
	return models.BackupInfo{Key: key, CreatedAt: b.CreatedAt, Keys: keys, Size: size}
}
