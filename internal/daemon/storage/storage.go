// Package storage gives typed access to the persisted tabwatt state on top of
// a kv.Store: settings, history, backend-energy history, the registry
// snapshot, the migration marker and backups.
package storage

import (
	"encoding/json"
	"errors"
	"time"

	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/internal/daemon/kv"
)

// Logical keys.
const (
	KeySettings             = "settings"
	KeyNotificationSettings = "notification_settings"
	KeyHistory              = "energy_history"
	KeyBackendHistory       = "backend_energy_history"
	KeySnapshot             = "current_tab_snapshot"
	KeyMigrationVersion     = "migration_version"
	BackupPrefix            = "backup_"
)

// Storage wraps a kv.Store with the daemon's data model.
type Storage struct {
	kv  kv.Store
	now func() time.Time
}

// New creates a Storage over st.
func New(st kv.Store) *Storage {
	return &Storage{kv: st, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (s *Storage) WithClock(now func() time.Time) *Storage {
	s.now = now
	return s
}

// KV returns the underlying store.
func (s *Storage) KV() kv.Store {
	return s.kv
}

// Close closes the underlying store.
func (s *Storage) Close() error {
	return s.kv.Close()
}

// getJSON decodes key into v. It reports false when the key is absent.
func (s *Storage) getJSON(key string, v interface{}) (bool, error) {
	raw, err := s.kv.Get(key)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, tabwatterrors.StorageFailure(key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, tabwatterrors.StorageFailure(key, err)
	}
	return true, nil
}

func (s *Storage) setJSON(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return tabwatterrors.StorageFailure(key, err)
	}
	if err := s.kv.Set(key, raw); err != nil {
		return tabwatterrors.StorageFailure(key, err)
	}
	return nil
}

// updateJSON runs a typed read-merge-write of key. fn sees the zero value of
// T when the key is absent.
func updateJSON[T any](s *Storage, key string, fn func(cur T, exists bool) (T, error)) error {
	var zero T
	return updateJSONFrom(s, key, zero, fn)
}

// updateJSONFrom is updateJSON with the stored value decoded over seed, so
// fields missing from an older stored object keep the seed's values.
func updateJSONFrom[T any](s *Storage, key string, seed T, fn func(cur T, exists bool) (T, error)) error {
	err := s.kv.Update(key, func(raw []byte, exists bool) ([]byte, error) {
		cur := seed
		if exists {
			if err := json.Unmarshal(raw, &cur); err != nil {
				return nil, err
			}
		}
		next, err := fn(cur, exists)
		if err != nil {
			return nil, err
		}
		return json.Marshal(next)
	})
	if err != nil {
		var twErr *tabwatterrors.TabwattError
		if errors.As(err, &twErr) {
			return err
		}
		return tabwatterrors.StorageFailure(key, err)
	}
	return nil
}
