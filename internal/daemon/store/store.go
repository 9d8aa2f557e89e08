package store

import (
	"sync"
	"time"

	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/grovetools/tabwatt/pkg/protocol"
)

// Store is the in-memory state store for the daemon.
// It is thread-safe and supports pub/sub for real-time updates.
type Store struct {
	mu          sync.RWMutex
	state       *State
	subscribers map[chan Update]struct{}
}

// New creates a new Store instance.
func New() *Store {
	return &Store{
		state: &State{
			Sessions: make(map[int]*models.TabSession),
		},
		subscribers: make(map[chan Update]struct{}),
	}
}

// Get returns a copy of the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cpy := *s.state
	cpy.Sessions = make(map[int]*models.TabSession, len(s.state.Sessions))
	for k, v := range s.state.Sessions {
		cpy.Sessions[k] = v
	}
	return cpy
}

// GetSessions returns a slice of all sessions.
func (s *Store) GetSessions() []*models.TabSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*models.TabSession, 0, len(s.state.Sessions))
	for _, sess := range s.state.Sessions {
		result = append(result, sess)
	}
	return result
}

// ApplyUpdate modifies the state and notifies subscribers.
func (s *Store) ApplyUpdate(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch u.Type {
	case UpdateSessions:
		if sessions, ok := u.Payload.([]*models.TabSession); ok {
			newMap := make(map[int]*models.TabSession, len(sessions))
			for _, sess := range sessions {
				newMap[sess.TabID] = sess
			}
			s.state.Sessions = newMap
		}
	case UpdateSession:
		if sess, ok := u.Payload.(*models.TabSession); ok {
			s.state.Sessions[sess.TabID] = sess
		}
	case UpdateSessionRemoved:
		if sess, ok := u.Payload.(*models.TabSession); ok {
			delete(s.state.Sessions, sess.TabID)
		}
	case UpdateActiveTab:
		if id, ok := u.Payload.(int); ok {
			s.state.ActiveTabID = id
		}
	case UpdateMaintenance:
		switch u.Source {
		case "snapshot":
			s.state.LastSave = time.Now()
		case "retention":
			s.state.LastCleanup = time.Now()
		}
	}

	s.broadcastLocked(u)
}

// Publish notifies subscribers without touching the state.
func (s *Store) Publish(u Update) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.broadcastLocked(u)
}

// PublishCommand streams a command to the browser host.
func (s *Store) PublishCommand(cmd protocol.HostCommand) {
	s.Publish(Update{Type: UpdateHostCommand, Source: "tracker", Payload: cmd})
}

func (s *Store) broadcastLocked(u Update) {
	for ch := range s.subscribers {
		select {
		case ch <- u:
		default:
			// Non-blocking send to prevent slow clients from stalling the daemon
		}
	}
}

// Subscribe creates a new subscription channel for state updates.
func (s *Store) Subscribe() chan Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Update, 100) // Buffered
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, ch)
	close(ch)
}

// Subscribers returns the number of live subscriptions.
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// BroadcastConfigReload sends a config reload notification to all subscribers.
// This is used by the config watcher to notify clients when config files change.
func (s *Store) BroadcastConfigReload(file string) {
	s.Publish(Update{
		Type:    UpdateConfigReload,
		Source:  "config",
		Payload: file, // The file that changed
	})
}
