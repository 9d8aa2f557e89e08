package protocol

import (
	"context"
	"fmt"
	"time"

	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/pkg/models"
)

// TrackingResult is the answer to ENSURE_TAB_TRACKING.
type TrackingResult struct {
	TabID    int                `json:"tabId"`
	Tracking bool               `json:"tracking"`
	Injected bool               `json:"injected"`
	Ready    bool               `json:"ready"`
	Degraded bool               `json:"degraded"`
	Reason   string             `json:"reason,omitempty"`
	Session  *models.TabSession `json:"session,omitempty"`
}

// CleanupResult is the answer to CLEANUP_OLD_BACKUPS.
type CleanupResult struct {
	Removed []string `json:"removed"`
	Kept    int      `json:"kept"`
}

// TipActionResult is the answer to EXECUTE_TIP_ACTION.
type TipActionResult struct {
	Action     models.TipAction `json:"action"`
	TabID      int              `json:"tabId,omitempty"`
	Dispatched bool             `json:"dispatched"`
	Target     string           `json:"target"`
}

// PingResult is the answer to PING.
type PingResult struct {
	Status    string    `json:"status"`
	Version   string    `json:"version,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	Tracked   int       `json:"tracked"`
}

// Handler answers every request in the protocol. Adding a request type means
// adding a method here, so implementations cannot silently miss one.
type Handler interface {
	GetCurrentEnergy(ctx context.Context) (*models.EnergySnapshot, error)
	EnsureTabTracking(ctx context.Context, req EnsureTabTracking) (*TrackingResult, error)
	GetSettings(ctx context.Context) (models.Settings, error)
	UpdateSettings(ctx context.Context, patch map[string]interface{}) (models.Settings, error)
	GetNotificationSettings(ctx context.Context) (models.NotificationSettings, error)
	UpdateNotificationSettings(ctx context.Context, patch map[string]interface{}) (models.NotificationSettings, error)
	GetHistory(ctx context.Context, r models.TimeRange) ([]models.HistoryEntry, error)
	GetDomainStats(ctx context.Context, domain string, r models.TimeRange) (*models.DomainStats, error)
	GetBackendEnergySummary(ctx context.Context, r models.TimeRange) (*models.BackendEnergySummary, error)
	LogBackendEnergy(ctx context.Context, entry models.BackendEnergyEntry) error
	MigrateLegacyData(ctx context.Context) (*models.MigrationResult, error)
	GetMigrationStatus(ctx context.Context) (*models.MigrationStatus, error)
	RestoreFromBackup(ctx context.Context, key string) error
	CleanupOldBackups(ctx context.Context, keep int) (*CleanupResult, error)
	ExecuteTipAction(ctx context.Context, req ExecuteTipAction) (*TipActionResult, error)
	GetActiveTab(ctx context.Context) (*models.TabInfo, error)
	ForceMetricsCollection(ctx context.Context, tabID int) (*models.TabSession, error)
	Ping(ctx context.Context) (*PingResult, error)
}

// Dispatch routes req to h and always returns a response: handler errors and
// panics are converted into {success:false}.
func Dispatch(ctx context.Context, h Handler, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = Fail(tabwatterrors.New(tabwatterrors.ErrCodeInternal, fmt.Sprintf("handler panic: %v", r)))
		}
	}()

	switch r := deref(req).(type) {
	case GetCurrentEnergy:
		return result(h.GetCurrentEnergy(ctx))
	case EnsureTabTracking:
		return result(h.EnsureTabTracking(ctx, r))
	case GetSettings:
		return result(h.GetSettings(ctx))
	case UpdateSettings:
		return result(h.UpdateSettings(ctx, r.Settings))
	case GetNotificationSettings:
		return result(h.GetNotificationSettings(ctx))
	case UpdateNotificationSettings:
		return result(h.UpdateNotificationSettings(ctx, r.Settings))
	case GetHistory:
		return result(h.GetHistory(ctx, r.TimeRange))
	case GetDomainStats:
		return result(h.GetDomainStats(ctx, r.Domain, r.TimeRange))
	case GetBackendEnergySummary:
		return result(h.GetBackendEnergySummary(ctx, r.TimeRange))
	case LogBackendEnergy:
		return empty(h.LogBackendEnergy(ctx, r.Entry))
	case MigrateLegacyData:
		return result(h.MigrateLegacyData(ctx))
	case GetMigrationStatus:
		return result(h.GetMigrationStatus(ctx))
	case RestoreFromBackup:
		return empty(h.RestoreFromBackup(ctx, r.BackupKey))
	case CleanupOldBackups:
		return result(h.CleanupOldBackups(ctx, r.KeepCount))
	case ExecuteTipAction:
		return result(h.ExecuteTipAction(ctx, r))
	case GetActiveTab:
		return result(h.GetActiveTab(ctx))
	case ForceMetricsCollection:
		return result(h.ForceMetricsCollection(ctx, r.TabID))
	case Ping:
		return result(h.Ping(ctx))
	case nil:
		return Fail(tabwatterrors.New(tabwatterrors.ErrCodeInvalidInput, "nil request"))
	}
	return Fail(tabwatterrors.UnknownMessageType(string(req.Type())))
}

// Handle decodes a raw message and dispatches it.
func Handle(ctx context.Context, h Handler, data []byte) Response {
	req, err := DecodeRequest(data)
	if err != nil {
		return Fail(err)
	}
	return Dispatch(ctx, h, req)
}

func result[T any](v T, err error) Response {
	if err != nil {
		return Fail(err)
	}
	return OK(v)
}

func empty(err error) Response {
	if err != nil {
		return Fail(err)
	}
	return Response{Success: true}
}
