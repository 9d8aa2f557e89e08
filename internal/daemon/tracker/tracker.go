// Package tracker implements the energy tracker service: it owns the tab
// registry, turns collaborator metrics into watt estimates, records history
// and answers the request protocol.
package tracker

import (
	"context"
	"sync"
	"time"

	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/internal/daemon/collaborator"
	"github.com/grovetools/tabwatt/internal/daemon/migration"
	"github.com/grovetools/tabwatt/internal/daemon/registry"
	"github.com/grovetools/tabwatt/internal/daemon/storage"
	"github.com/grovetools/tabwatt/internal/daemon/store"
	"github.com/grovetools/tabwatt/internal/daemon/tips"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/grovetools/tabwatt/pkg/power"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// Options tune the service. Zero values fall back to the defaults below.
type Options struct {
	InjectAttempts       int
	InjectBackoff        time.Duration
	SnapshotMaxAge       time.Duration
	NotificationCooldown time.Duration
	CollectTimeout       time.Duration
	// MaxBackendEntries caps the backend energy log. Zero follows the
	// maxHistoryEntries setting.
	MaxBackendEntries int
	BackupKeep        int
}

const (
	DefaultInjectAttempts       = 5
	DefaultInjectBackoff        = 500 * time.Millisecond
	DefaultSnapshotMaxAge       = 10 * time.Minute
	DefaultNotificationCooldown = 10 * time.Minute
	DefaultCollectTimeout       = 3 * time.Second
	DefaultBackupKeep           = 5
)

func (o Options) withDefaults() Options {
	if o.InjectAttempts <= 0 {
		o.InjectAttempts = DefaultInjectAttempts
	}
	if o.InjectBackoff <= 0 {
		o.InjectBackoff = DefaultInjectBackoff
	}
	if o.SnapshotMaxAge <= 0 {
		o.SnapshotMaxAge = DefaultSnapshotMaxAge
	}
	if o.NotificationCooldown <= 0 {
		o.NotificationCooldown = DefaultNotificationCooldown
	}
	if o.CollectTimeout <= 0 {
		o.CollectTimeout = DefaultCollectTimeout
	}
	if o.BackupKeep <= 0 {
		o.BackupKeep = DefaultBackupKeep
	}
	return o
}

// Service is the energy tracker. It implements protocol.Handler.
type Service struct {
	registry *registry.Registry
	storage  *storage.Storage
	tips     *tips.Evaluator
	hub      *collaborator.Hub
	store    *store.Store
	migrator *migration.Migrator
	logger   *logrus.Entry
	opts     Options

	calcMu sync.RWMutex
	calc   *power.Calculator

	mu        sync.Mutex
	activeTab *models.TabInfo
	lastAlert map[int]time.Time

	now       func() time.Time
	startedAt time.Time
	wg        sync.WaitGroup
}

var _ protocol.Handler = (*Service)(nil)

// New wires a Service. The hub's metrics callback is pointed at the service.
func New(st *storage.Storage, calc *power.Calculator, hub *collaborator.Hub, pub *store.Store, logger *logrus.Entry, opts Options) *Service {
	s := &Service{
		registry:  registry.New(),
		storage:   st,
		tips:      tips.New(),
		hub:       hub,
		store:     pub,
		migrator:  migration.New(st, calc, logger.WithField("component", "migration")),
		logger:    logger,
		opts:      opts.withDefaults(),
		calc:      calc,
		lastAlert: make(map[int]time.Time),
		now:       time.Now,
	}
	s.startedAt = s.now()
	if hub != nil {
		hub.OnMetrics(s.HandleMetrics)
	}
	return s
}

// WithClock replaces the time source of the service and everything it owns.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.startedAt = now()
	s.registry.WithClock(now)
	s.tips.WithClock(now)
	s.migrator.WithClock(now)
	return s
}

// WithEvaluator replaces the tip evaluator.
func (s *Service) WithEvaluator(e *tips.Evaluator) *Service {
	s.tips = e
	return s
}

// Calculator returns the calculator currently in use.
func (s *Service) Calculator() *power.Calculator {
	s.calcMu.RLock()
	defer s.calcMu.RUnlock()
	return s.calc
}

// SetCalculator swaps the calculator, e.g. after power constants are reloaded.
func (s *Service) SetCalculator(calc *power.Calculator) {
	s.calcMu.Lock()
	s.calc = calc
	s.calcMu.Unlock()
}

// Registry exposes the session registry.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// Storage exposes the persistence layer.
func (s *Service) Storage() *storage.Storage {
	return s.storage
}

// Wait blocks until background tracking attempts have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// HandleEvent applies one tab lifecycle event.
func (s *Service) HandleEvent(ctx context.Context, ev protocol.TabEvent) error {
	if !ev.Valid() {
		return tabwatterrors.New(tabwatterrors.ErrCodeInvalidInput, "invalid tab event").
			WithDetail("type", string(ev.Type)).
			WithDetail("tabId", ev.TabID)
	}

	switch ev.Type {
	case protocol.EventTabActivated:
		s.onActivated(ev)
	case protocol.EventTabUpdated:
		s.onUpdated(ev)
	case protocol.EventTabRemoved:
		return s.onRemoved(ev.TabID)
	}
	return nil
}

func (s *Service) onActivated(ev protocol.TabEvent) {
	tab := models.TabInfo{ID: ev.TabID, Active: true}
	if ev.Tab != nil {
		tab = *ev.Tab
		tab.ID = ev.TabID
		tab.Active = true
	}
	s.setActive(tab)
	s.store.ApplyUpdate(store.Update{Type: store.UpdateActiveTab, Source: "tracker", Payload: tab.ID})
	if tab.URL == "" {
		if sess, ok := s.registry.Get(tab.ID); ok {
			tab.URL, tab.Title = sess.URL, sess.Title
			s.setActive(tab)
		}
		return
	}
	s.startTracking(tab)
}

func (s *Service) onUpdated(ev protocol.TabEvent) {
	change := protocol.ChangeInfo{}
	if ev.ChangeInfo != nil {
		change = *ev.ChangeInfo
	}
	tab := models.TabInfo{ID: ev.TabID, URL: change.URL, Title: change.Title, Status: change.Status}
	if ev.Tab != nil {
		tab = *ev.Tab
		tab.ID = ev.TabID
	}
	s.refreshActive(tab)

	if change.URL != "" || change.Title != "" {
		updated, evicted := s.registry.UpdateInfo(ev.TabID, change.URL, change.Title)
		if evicted != nil {
			s.logger.WithField("tab_id", ev.TabID).Debug("Tab navigated to an untrackable page")
			s.finish(evicted)
		}
		if updated != nil {
			s.store.ApplyUpdate(store.Update{Type: store.UpdateSession, Source: "tracker", Payload: updated})
		}
	}

	if change.Complete() && tab.URL != "" && !s.registry.Has(ev.TabID) {
		s.startTracking(tab)
	}
}

func (s *Service) onRemoved(tabID int) error {
	s.mu.Lock()
	if s.activeTab != nil && s.activeTab.ID == tabID {
		s.activeTab = nil
	}
	delete(s.lastAlert, tabID)
	s.mu.Unlock()
	s.tips.Forget(tabID)

	sess, ok := s.registry.Remove(tabID)
	if !ok {
		return nil
	}
	return s.finish(sess)
}

// finish flushes the final history entry of a session that left the registry.
func (s *Service) finish(sess *models.TabSession) error {
	s.store.ApplyUpdate(store.Update{Type: store.UpdateSessionRemoved, Source: "tracker", Payload: sess})

	entry := s.historyEntry(sess, s.now())
	settings, err := s.storage.Settings()
	if err != nil {
		settings = models.DefaultSettings()
	}
	if err := s.storage.AppendHistory(settings.MaxHistoryEntries, entry); err != nil {
		s.logger.WithError(err).WithField("tab_id", sess.TabID).Error("Failed to flush session history")
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"tab_id":   sess.TabID,
		"watts":    sess.PowerWatts,
		"duration": entry.Duration().String(),
	}).Debug("Flushed session history")
	return nil
}

func (s *Service) historyEntry(sess *models.TabSession, at time.Time) models.HistoryEntry {
	d := sess.Duration(at)
	watts := sess.PowerWatts
	if watts <= 0 {
		watts = s.Calculator().EstimateURL(sess.URL).TotalWatts
	}
	energy := s.Calculator().EstimateEnergyConsumption(watts, d)
	return models.HistoryEntry{
		Timestamp:   at,
		TabID:       sess.TabID,
		URL:         sess.URL,
		Title:       sess.Title,
		Domain:      models.Domain(sess.URL),
		PowerWatts:  models.Float(watts),
		EnergyKWh:   energy.KWh,
		EnergyCost:  energy.Cost,
		CO2Grams:    energy.CO2Grams,
		DurationMs:  d.Milliseconds(),
		EnergyScore: models.Float(power.LegacyScoreFromWatts(watts)),
	}
}

// startTracking creates a session and, in the background, tries to bring up
// the collaborator for it.
func (s *Service) startTracking(tab models.TabInfo) {
	settings, err := s.storage.Settings()
	if err == nil && !settings.TrackingEnabled {
		return
	}
	sess, created := s.registry.Track(tab)
	if !created {
		return
	}
	s.logger.WithFields(logrus.Fields{"tab_id": tab.ID, "url": tab.URL}).Debug("Started tracking tab")
	s.store.ApplyUpdate(store.Update{Type: store.UpdateSession, Source: "tracker", Payload: sess})

	if s.hub == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.readyBudget())
		defer cancel()
		if _, err := s.ensureCollaborator(ctx, tab.ID); err != nil {
			s.logger.WithError(err).WithField("tab_id", tab.ID).Debug("Collaborator unavailable, using estimates")
		}
	}()
}

func (s *Service) readyBudget() time.Duration {
	return time.Duration(s.opts.InjectAttempts+1) * 2 * s.opts.InjectBackoff
}

func (s *Service) ensureCollaborator(ctx context.Context, tabID int) (collaborator.EnsureResult, error) {
	policy := collaborator.ReadyPolicy(s.opts.InjectAttempts, s.opts.InjectBackoff)
	return s.hub.EnsureReady(ctx, tabID, collaborator.InjectorFunc(s.inject), policy)
}

// inject asks the browser host to load the collaborator into a tab.
func (s *Service) inject(_ context.Context, tabID int) error {
	if s.store.Subscribers() == 0 {
		return tabwatterrors.New(tabwatterrors.ErrCodeUnavailable, "no browser host connected")
	}
	s.store.PublishCommand(protocol.HostCommand{Type: protocol.HostInjectCollaborator, TabID: tabID})
	return nil
}

func (s *Service) setActive(tab models.TabInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeTab = &tab
}

// refreshActive keeps the cached active tab in line with update events.
func (s *Service) refreshActive(tab models.TabInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeTab == nil || s.activeTab.ID != tab.ID {
		return
	}
	if tab.URL != "" {
		s.activeTab.URL = tab.URL
	}
	if tab.Title != "" {
		s.activeTab.Title = tab.Title
	}
	if tab.Status != "" {
		s.activeTab.Status = tab.Status
	}
}

func (s *Service) active() *models.TabInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeTab == nil {
		return nil
	}
	cpy := *s.activeTab
	return &cpy
}
