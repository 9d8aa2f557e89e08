package tracker

import (
	"time"

	"github.com/grovetools/tabwatt/internal/daemon/storage"
	"github.com/grovetools/tabwatt/pkg/models"
)

// SaveSnapshot persists the registry so that a quick restart can recover it.
// It returns the number of sessions saved.
func (s *Service) SaveSnapshot() (int, error) {
	snap := storage.Snapshot{
		SavedAt:  s.now(),
		Sessions: s.registry.Sessions(),
	}
	if act := s.active(); act != nil {
		snap.ActiveTabID = act.ID
	}
	if err := s.storage.SaveSnapshot(snap); err != nil {
		return 0, err
	}
	return len(snap.Sessions), nil
}

// Rehydrate restores sessions from the last snapshot if it is recent enough.
func (s *Service) Rehydrate() (int, error) {
	snap, err := s.storage.LoadSnapshot()
	if err != nil || snap == nil {
		return 0, err
	}
	n := s.registry.Rehydrate(snap.SavedAt, snap.Sessions, s.opts.SnapshotMaxAge)
	if n > 0 && snap.ActiveTabID > 0 {
		if sess, ok := s.registry.Get(snap.ActiveTabID); ok {
			s.setActive(models.TabInfo{ID: sess.TabID, URL: sess.URL, Title: sess.Title, Active: true})
		}
	}
	if n > 0 {
		s.logger.WithField("sessions", n).Info("Rehydrated tab sessions from snapshot")
	}
	return n, nil
}

// CleanupHistory deletes history older than the configured retention window.
func (s *Service) CleanupHistory() (int, error) {
	settings, err := s.storage.Settings()
	if err != nil {
		return 0, err
	}
	removed, err := s.storage.CleanupHistory(settings.Retention())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("Removed expired history entries")
	}
	return removed, nil
}

// Uptime is how long the service has been running.
func (s *Service) Uptime() time.Duration {
	return s.now().Sub(s.startedAt)
}
