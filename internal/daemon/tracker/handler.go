package tracker

import (
	"context"
	"errors"
	"strings"
	"time"

	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/internal/daemon/storage"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/grovetools/tabwatt/pkg/retry"
	"github.com/grovetools/tabwatt/version"
)

// OptimizeActions are sent with OPTIMIZE_TAB.
var OptimizeActions = []string{"pause_media", "reduce_animations", "lazy_load_images"}

func (s *Service) GetCurrentEnergy(_ context.Context) (*models.EnergySnapshot, error) {
	return &models.EnergySnapshot{
		Sessions:    s.registry.Sessions(),
		GeneratedAt: s.now(),
	}, nil
}

// EnsureTabTracking starts tracking a tab and waits for its collaborator. A
// collaborator that cannot be brought up leaves the tab tracked in degraded,
// estimate-only mode.
func (s *Service) EnsureTabTracking(ctx context.Context, req protocol.EnsureTabTracking) (*protocol.TrackingResult, error) {
	if req.TabID <= 0 {
		return nil, tabwatterrors.New(tabwatterrors.ErrCodeInvalidInput, "tabId is required")
	}
	res := &protocol.TrackingResult{TabID: req.TabID}

	if !s.registry.Has(req.TabID) {
		tab := req.TabInfo
		if tab == nil {
			if act := s.active(); act != nil && act.ID == req.TabID {
				tab = act
			}
		}
		if tab == nil || tab.URL == "" {
			return nil, tabwatterrors.New(tabwatterrors.ErrCodeInvalidInput, "tabInfo with a url is required for an untracked tab").
				WithDetail("tabId", req.TabID)
		}
		if !models.IsTrackableURL(tab.URL) {
			res.Reason = "page cannot be tracked"
			return res, nil
		}
		if settings, err := s.storage.Settings(); err == nil && !settings.TrackingEnabled {
			res.Reason = "tracking disabled"
			return res, nil
		}
		info := *tab
		info.ID = req.TabID
		if _, created := s.registry.Track(info); created {
			s.logger.WithField("tab_id", req.TabID).Debug("Tracking started on request")
		}
	}
	res.Tracking = true

	if s.hub == nil {
		res.Degraded = true
		res.Reason = "collaborator channel disabled"
	} else {
		ctx, cancel := context.WithTimeout(ctx, s.readyBudget())
		ready, err := s.ensureCollaborator(ctx, req.TabID)
		cancel()
		res.Injected, res.Ready = ready.Injected, ready.Ready
		if err != nil {
			res.Degraded = true
			res.Reason = err.Error()
		}
	}
	if sess, ok := s.registry.Get(req.TabID); ok {
		res.Session = sess
	}
	return res, nil
}

func (s *Service) GetSettings(_ context.Context) (models.Settings, error) {
	return s.storage.Settings()
}

// UpdateSettings merges and persists a partial settings object. Fields with
// the wrong type keep their value; that is logged, not reported as a failure.
func (s *Service) UpdateSettings(_ context.Context, patch map[string]interface{}) (models.Settings, error) {
	settings, err := s.storage.UpdateSettings(patch)
	var partial *storage.PartialUpdateError
	if errors.As(err, &partial) {
		s.logger.WithError(partial.Cause).Warn("Ignored malformed settings fields")
		return settings, nil
	}
	return settings, err
}

func (s *Service) GetNotificationSettings(_ context.Context) (models.NotificationSettings, error) {
	return s.storage.NotificationSettings()
}

func (s *Service) UpdateNotificationSettings(_ context.Context, patch map[string]interface{}) (models.NotificationSettings, error) {
	settings, err := s.storage.UpdateNotificationSettings(patch)
	var partial *storage.PartialUpdateError
	if errors.As(err, &partial) {
		s.logger.WithError(partial.Cause).Warn("Ignored malformed notification settings fields")
		return settings, nil
	}
	return settings, err
}

func (s *Service) GetHistory(_ context.Context, r models.TimeRange) ([]models.HistoryEntry, error) {
	if r == "" {
		r = models.RangeDay
	}
	return s.storage.HistoryRange(r)
}

// GetDomainStats aggregates history for a domain. A nil result means the
// domain has no history in the range.
func (s *Service) GetDomainStats(_ context.Context, domain string, r models.TimeRange) (*models.DomainStats, error) {
	domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "www.")
	if domain == "" {
		return nil, tabwatterrors.New(tabwatterrors.ErrCodeInvalidInput, "domain is required")
	}
	if r == "" {
		r = models.RangeMonth
	}
	d, ok := r.Duration()
	if !ok {
		return nil, tabwatterrors.InvalidTimeRange(string(r))
	}
	return s.storage.DomainStats(domain, s.now().Add(-d))
}

func (s *Service) GetBackendEnergySummary(_ context.Context, r models.TimeRange) (*models.BackendEnergySummary, error) {
	if r == "" {
		r = models.RangeDay
	}
	return s.storage.BackendSummary(r)
}

// LogBackendEnergy records energy used outside the browser. Energy and CO2
// are derived from power and duration when the caller leaves them out.
func (s *Service) LogBackendEnergy(_ context.Context, entry models.BackendEnergyEntry) error {
	if strings.TrimSpace(entry.Source) == "" {
		return tabwatterrors.New(tabwatterrors.ErrCodeInvalidInput, "entry.source is required")
	}
	if entry.PowerWatts < 0 || entry.DurationMs < 0 {
		return tabwatterrors.New(tabwatterrors.ErrCodeInvalidInput, "power and duration must not be negative")
	}
	if entry.EnergyKWh == 0 {
		est := s.Calculator().EstimateEnergyConsumption(entry.PowerWatts, time.Duration(entry.DurationMs)*time.Millisecond)
		entry.EnergyKWh = est.KWh
		if entry.CO2Grams == 0 {
			entry.CO2Grams = est.CO2Grams
		}
	}
	limit := s.opts.MaxBackendEntries
	if limit <= 0 {
		settings, err := s.storage.Settings()
		if err != nil {
			return err
		}
		limit = settings.MaxHistoryEntries
	}
	return s.storage.AppendBackendEnergy(limit, entry)
}

func (s *Service) MigrateLegacyData(ctx context.Context) (*models.MigrationResult, error) {
	return s.migrator.Run(ctx)
}

func (s *Service) GetMigrationStatus(_ context.Context) (*models.MigrationStatus, error) {
	return s.migrator.Status()
}

func (s *Service) RestoreFromBackup(_ context.Context, key string) error {
	if key == "" {
		return tabwatterrors.New(tabwatterrors.ErrCodeInvalidInput, "backupKey is required")
	}
	return s.migrator.Restore(key)
}

// CleanupOldBackups keeps the newest keep backups. Zero means the default.
func (s *Service) CleanupOldBackups(_ context.Context, keep int) (*protocol.CleanupResult, error) {
	if keep < 0 {
		return nil, tabwatterrors.New(tabwatterrors.ErrCodeInvalidInput, "keepCount must not be negative")
	}
	if keep == 0 {
		keep = s.opts.BackupKeep
	}
	removed, kept, err := s.storage.CleanupBackups(keep)
	if err != nil {
		return nil, err
	}
	if removed == nil {
		removed = []string{}
	}
	return &protocol.CleanupResult{Removed: removed, Kept: kept}, nil
}

// ExecuteTipAction carries out the action suggested by a tip, either inside
// the page through its collaborator or through the browser host.
func (s *Service) ExecuteTipAction(_ context.Context, req protocol.ExecuteTipAction) (*protocol.TipActionResult, error) {
	if !req.Action.Valid() {
		return nil, tabwatterrors.New(tabwatterrors.ErrCodeInvalidInput, "unknown tip action").
			WithDetail("action", string(req.Action))
	}
	tabID := req.TabID
	if tabID == 0 && req.NotificationData != nil {
		tabID = req.NotificationData.TabID
	}
	if tabID == 0 {
		if act := s.active(); act != nil {
			tabID = act.ID
		}
	}
	res := &protocol.TipActionResult{Action: req.Action, TabID: tabID}

	var msg *protocol.CollaboratorMessage
	var cmd *protocol.HostCommand
	switch req.Action {
	case models.ActionPauseMedia:
		msg = &protocol.CollaboratorMessage{Type: protocol.MsgPauseMediaElements}
	case models.ActionReduceAnimations:
		msg = &protocol.CollaboratorMessage{Type: protocol.MsgReduceAnimations}
	case models.ActionOptimizeTab:
		msg = &protocol.CollaboratorMessage{Type: protocol.MsgOptimizeTab, Actions: OptimizeActions}
	case models.ActionRefreshPage:
		cmd = &protocol.HostCommand{Type: protocol.HostReloadTab, TabID: tabID}
	case models.ActionCloseTab:
		cmd = &protocol.HostCommand{Type: protocol.HostCloseTab, TabID: tabID}
	case models.ActionOpenSettings:
		cmd = &protocol.HostCommand{Type: protocol.HostOpenSettings}
	case models.ActionShowHistory:
		cmd = &protocol.HostCommand{Type: protocol.HostOpenHistory}
	}

	if cmd != nil {
		if (cmd.Type == protocol.HostReloadTab || cmd.Type == protocol.HostCloseTab) && tabID == 0 {
			return nil, tabwatterrors.New(tabwatterrors.ErrCodeInvalidInput, "tabId is required for this action")
		}
		s.store.PublishCommand(*cmd)
		res.Dispatched, res.Target = true, "host"
		return res, nil
	}

	if tabID == 0 {
		return nil, tabwatterrors.New(tabwatterrors.ErrCodeInvalidInput, "tabId is required for this action")
	}
	if s.hub == nil {
		return nil, tabwatterrors.CollaboratorUnavailable(tabID, nil)
	}
	if err := s.hub.Send(tabID, *msg); err != nil {
		return nil, err
	}
	res.Dispatched, res.Target = true, "collaborator"
	return res, nil
}

func (s *Service) GetActiveTab(_ context.Context) (*models.TabInfo, error) {
	act := s.active()
	if act == nil {
		return nil, tabwatterrors.New(tabwatterrors.ErrCodeNotFound, "no active tab known")
	}
	return act, nil
}

// ForceMetricsCollection pings the tab's collaborator, re-injects it when it
// is silent, asks for an immediate sample and waits for it to be recorded.
func (s *Service) ForceMetricsCollection(ctx context.Context, tabID int) (*models.TabSession, error) {
	sess, ok := s.registry.Get(tabID)
	if !ok {
		return nil, tabwatterrors.TabNotTracked(tabID)
	}
	if s.hub == nil {
		return nil, tabwatterrors.CollaboratorUnavailable(tabID, nil)
	}
	before := sess.LastUpdate

	ctx, cancel := context.WithTimeout(ctx, s.readyBudget()+s.opts.CollectTimeout)
	defer cancel()
	if _, err := s.ensureCollaborator(ctx, tabID); err != nil {
		return nil, err
	}
	cctx, ccancel := context.WithTimeout(ctx, s.opts.CollectTimeout)
	defer ccancel()
	if err := s.hub.CollectNow(cctx, tabID); err != nil {
		return nil, err
	}

	policy := retry.Policy{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		Multiplier:   1.5,
		MaxDelay:     500 * time.Millisecond,
		Retryable: func(err error) bool {
			return tabwatterrors.Is(err, tabwatterrors.ErrCodeTimeout)
		},
	}
	return retry.Value(cctx, policy, func(context.Context) (*models.TabSession, error) {
		cur, ok := s.registry.Get(tabID)
		if !ok {
			return nil, tabwatterrors.TabNotTracked(tabID)
		}
		if cur.LastMetrics == nil || !cur.LastUpdate.After(before) {
			return nil, tabwatterrors.New(tabwatterrors.ErrCodeTimeout, "waiting for metrics")
		}
		return cur, nil
	})
}

func (s *Service) Ping(_ context.Context) (*protocol.PingResult, error) {
	return &protocol.PingResult{
		Status:    "ok",
		Version:   version.GetInfo().Version,
		StartedAt: s.startedAt,
		Tracked:   s.registry.Len(),
	}, nil
}
