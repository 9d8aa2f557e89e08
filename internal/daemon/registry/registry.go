// Package registry holds the in-memory map of tracked tabs. It is a cache:
// after a restart it starts empty and is refilled from fresh tab events or
// from a recent persisted snapshot.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/grovetools/tabwatt/pkg/models"
)

// Registry maps tab id to its session. All methods are safe for concurrent use
// and hand out copies.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int]*models.TabSession
	now      func() time.Time
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[int]*models.TabSession),
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Track starts a session for tab if it is not tracked yet and its URL is
// trackable. It returns the session and whether it was newly created.
func (r *Registry) Track(tab models.TabInfo) (*models.TabSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[tab.ID]; ok {
		return sess.Clone(), false
	}
	if !models.IsTrackableURL(tab.URL) {
		return nil, false
	}
	now := r.now()
	sess := &models.TabSession{
		TabID:      tab.ID,
		StartTime:  now,
		LastUpdate: now,
		URL:        tab.URL,
		Title:      tab.Title,
	}
	r.sessions[tab.ID] = sess
	return sess.Clone(), true
}

// Get returns a copy of the session for tabID.
func (r *Registry) Get(tabID int) (*models.TabSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[tabID]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// Has reports whether tabID is tracked.
func (r *Registry) Has(tabID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[tabID]
	return ok
}

// UpdateInfo records a navigation or title change. Navigating to an
// untrackable URL ends tracking and returns the evicted session.
func (r *Registry) UpdateInfo(tabID int, url, title string) (updated, evicted *models.TabSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[tabID]
	if !ok {
		return nil, nil
	}
	if url != "" && url != sess.URL {
		if !models.IsTrackableURL(url) {
			delete(r.sessions, tabID)
			return nil, sess
		}
		sess.URL = url
	}
	if title != "" {
		sess.Title = title
	}
	sess.LastUpdate = r.now()
	return sess.Clone(), nil
}

// RecordMetrics stores a metrics sample and its power result.
func (r *Registry) RecordMetrics(tabID int, m models.Metrics, p models.PowerResult) (*models.TabSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[tabID]
	if !ok {
		return nil, false
	}
	sample := m
	result := p
	sess.LastMetrics = &sample
	sess.PowerData = &result
	sess.PowerWatts = p.TotalWatts
	if m.URL != "" && models.IsTrackableURL(m.URL) {
		sess.URL = m.URL
	}
	if m.Title != "" {
		sess.Title = m.Title
	}
	sess.LastUpdate = r.now()
	return sess.Clone(), true
}

// Remove evicts and returns the session for tabID.
func (r *Registry) Remove(tabID int) (*models.TabSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[tabID]
	if !ok {
		return nil, false
	}
	delete(r.sessions, tabID)
	return sess, true
}

// Sessions returns copies of every session ordered by tab id.
func (r *Registry) Sessions() []*models.TabSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.TabSession, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
	return out
}

// Len returns the number of tracked tabs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Rehydrate loads sessions from a snapshot taken at savedAt. Nothing is
// loaded when the snapshot is older than maxAge; individual sessions whose
// last update is older than maxAge are dropped too. Tabs already tracked are
// left alone. It returns the number of sessions restored.
func (r *Registry) Rehydrate(savedAt time.Time, sessions []*models.TabSession, maxAge time.Duration) int {
	now := r.now()
	if now.Sub(savedAt) > maxAge {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	restored := 0
	for _, sess := range sessions {
		if sess == nil || sess.TabID <= 0 || !models.IsTrackableURL(sess.URL) {
			continue
		}
		if now.Sub(sess.LastUpdate) > maxAge {
			continue
		}
		if _, ok := r.sessions[sess.TabID]; ok {
			continue
		}
		r.sessions[sess.TabID] = sess.Clone()
		restored++
	}
	return restored
}
