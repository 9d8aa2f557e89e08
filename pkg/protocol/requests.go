// Package protocol defines the typed request/response protocol spoken by the
// tabwatt daemon, the tab lifecycle events posted by the browser host, and the
// messages exchanged with content collaborators.
package protocol

import (
	"encoding/json"
	"fmt"

	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/pkg/models"
)

// RequestType is the wire tag of a request.
type RequestType string

const (
	TypeGetCurrentEnergy           RequestType = "GET_CURRENT_ENERGY"
	TypeEnsureTabTracking          RequestType = "ENSURE_TAB_TRACKING"
	TypeGetSettings                RequestType = "GET_SETTINGS"
	TypeUpdateSettings             RequestType = "UPDATE_SETTINGS"
	TypeGetNotificationSettings    RequestType = "GET_NOTIFICATION_SETTINGS"
	TypeUpdateNotificationSettings RequestType = "UPDATE_NOTIFICATION_SETTINGS"
	TypeGetHistory                 RequestType = "GET_HISTORY"
	TypeGetDomainStats             RequestType = "GET_DOMAIN_STATS"
	TypeGetBackendEnergySummary    RequestType = "GET_BACKEND_ENERGY_SUMMARY"
	TypeLogBackendEnergy           RequestType = "LOG_BACKEND_ENERGY"
	TypeMigrateLegacyData          RequestType = "MIGRATE_LEGACY_DATA"
	TypeGetMigrationStatus         RequestType = "GET_MIGRATION_STATUS"
	TypeRestoreFromBackup          RequestType = "RESTORE_FROM_BACKUP"
	TypeCleanupOldBackups          RequestType = "CLEANUP_OLD_BACKUPS"
	TypeExecuteTipAction           RequestType = "EXECUTE_TIP_ACTION"
	TypeGetActiveTab               RequestType = "GET_ACTIVE_TAB"
	TypeForceMetricsCollection     RequestType = "FORCE_METRICS_COLLECTION"
	TypePing                       RequestType = "PING"
)

// Request is the closed set of requests the daemon answers. Only the types in
// this package implement it.
type Request interface {
	Type() RequestType
	isRequest()
}

type (
	GetCurrentEnergy struct{}

	EnsureTabTracking struct {
		TabID   int             `json:"tabId"`
		TabInfo *models.TabInfo `json:"tabInfo,omitempty"`
	}

	GetSettings struct{}

	UpdateSettings struct {
		Settings map[string]interface{} `json:"settings"`
	}

	GetNotificationSettings struct{}

	UpdateNotificationSettings struct {
		Settings map[string]interface{} `json:"settings"`
	}

	GetHistory struct {
		TimeRange models.TimeRange `json:"timeRange"`
	}

	GetDomainStats struct {
		Domain    string           `json:"domain"`
		TimeRange models.TimeRange `json:"timeRange,omitempty"`
	}

	GetBackendEnergySummary struct {
		TimeRange models.TimeRange `json:"timeRange"`
	}

	LogBackendEnergy struct {
		Entry models.BackendEnergyEntry `json:"entry"`
	}

	MigrateLegacyData struct{}

	GetMigrationStatus struct{}

	RestoreFromBackup struct {
		BackupKey string `json:"backupKey"`
	}

	CleanupOldBackups struct {
		KeepCount int `json:"keepCount"`
	}

	ExecuteTipAction struct {
		Action           models.TipAction `json:"action"`
		TabID            int              `json:"tabId,omitempty"`
		NotificationData *models.Tip      `json:"notificationData,omitempty"`
	}

	GetActiveTab struct{}

	ForceMetricsCollection struct {
		TabID int `json:"tabId"`
	}

	Ping struct{}
)

func (GetCurrentEnergy) Type() RequestType           { return TypeGetCurrentEnergy }
func (EnsureTabTracking) Type() RequestType          { return TypeEnsureTabTracking }
func (GetSettings) Type() RequestType                { return TypeGetSettings }
func (UpdateSettings) Type() RequestType             { return TypeUpdateSettings }
func (GetNotificationSettings) Type() RequestType    { return TypeGetNotificationSettings }
func (UpdateNotificationSettings) Type() RequestType { return TypeUpdateNotificationSettings }
func (GetHistory) Type() RequestType                 { return TypeGetHistory }
func (GetDomainStats) Type() RequestType             { return TypeGetDomainStats }
func (GetBackendEnergySummary) Type() RequestType    { return TypeGetBackendEnergySummary }
func (LogBackendEnergy) Type() RequestType           { return TypeLogBackendEnergy }
func (MigrateLegacyData) Type() RequestType          { return TypeMigrateLegacyData }
func (GetMigrationStatus) Type() RequestType         { return TypeGetMigrationStatus }
func (RestoreFromBackup) Type() RequestType          { return TypeRestoreFromBackup }
func (CleanupOldBackups) Type() RequestType          { return TypeCleanupOldBackups }
func (ExecuteTipAction) Type() RequestType           { return TypeExecuteTipAction }
func (GetActiveTab) Type() RequestType               { return TypeGetActiveTab }
func (ForceMetricsCollection) Type() RequestType     { return TypeForceMetricsCollection }
func (Ping) Type() RequestType                       { return TypePing }

func (GetCurrentEnergy) isRequest()           {}
func (EnsureTabTracking) isRequest()          {}
func (GetSettings) isRequest()                {}
func (UpdateSettings) isRequest()             {}
func (GetNotificationSettings) isRequest()    {}
func (UpdateNotificationSettings) isRequest() {}
func (GetHistory) isRequest()                 {}
func (GetDomainStats) isRequest()             {}
func (GetBackendEnergySummary) isRequest()    {}
func (LogBackendEnergy) isRequest()           {}
func (MigrateLegacyData) isRequest()          {}
func (GetMigrationStatus) isRequest()         {}
func (RestoreFromBackup) isRequest()          {}
func (CleanupOldBackups) isRequest()          {}
func (ExecuteTipAction) isRequest()           {}
func (GetActiveTab) isRequest()               {}
func (ForceMetricsCollection) isRequest()     {}
func (Ping) isRequest()                       {}

// newRequest allocates the concrete request for a wire tag.
func newRequest(t RequestType) (Request, bool) {
	switch t {
	case TypeGetCurrentEnergy:
		return &GetCurrentEnergy{}, true
	case TypeEnsureTabTracking:
		return &EnsureTabTracking{}, true
	case TypeGetSettings:
		return &GetSettings{}, true
	case TypeUpdateSettings:
		return &UpdateSettings{}, true
	case TypeGetNotificationSettings:
		return &GetNotificationSettings{}, true
	case TypeUpdateNotificationSettings:
		return &UpdateNotificationSettings{}, true
	case TypeGetHistory:
		return &GetHistory{}, true
	case TypeGetDomainStats:
		return &GetDomainStats{}, true
	case TypeGetBackendEnergySummary:
		return &GetBackendEnergySummary{}, true
	case TypeLogBackendEnergy:
		return &LogBackendEnergy{}, true
	case TypeMigrateLegacyData:
		return &MigrateLegacyData{}, true
	case TypeGetMigrationStatus:
		return &GetMigrationStatus{}, true
	case TypeRestoreFromBackup:
		return &RestoreFromBackup{}, true
	case TypeCleanupOldBackups:
		return &CleanupOldBackups{}, true
	case TypeExecuteTipAction:
		return &ExecuteTipAction{}, true
	case TypeGetActiveTab:
		return &GetActiveTab{}, true
	case TypeForceMetricsCollection:
		return &ForceMetricsCollection{}, true
	case TypePing:
		return &Ping{}, true
	}
	return nil, false
}

// Types lists every request tag, in protocol order.
func Types() []RequestType {
	return []RequestType{
		TypeGetCurrentEnergy, TypeEnsureTabTracking, TypeGetSettings, TypeUpdateSettings,
		TypeGetNotificationSettings, TypeUpdateNotificationSettings, TypeGetHistory,
		TypeGetDomainStats, TypeGetBackendEnergySummary, TypeLogBackendEnergy,
		TypeMigrateLegacyData, TypeGetMigrationStatus, TypeRestoreFromBackup,
		TypeCleanupOldBackups, TypeExecuteTipAction, TypeGetActiveTab,
		TypeForceMetricsCollection, TypePing,
	}
}

// DecodeRequest parses a flat {"type": ..., fields...} message.
func DecodeRequest(data []byte) (Request, error) {
	var head struct {
		Type RequestType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, tabwatterrors.Wrap(err, tabwatterrors.ErrCodeInvalidInput, "invalid request")
	}
	if head.Type == "" {
		return nil, tabwatterrors.New(tabwatterrors.ErrCodeInvalidInput, "invalid request: missing type")
	}
	req, ok := newRequest(head.Type)
	if !ok {
		return nil, tabwatterrors.UnknownMessageType(string(head.Type))
	}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, tabwatterrors.Wrap(err, tabwatterrors.ErrCodeInvalidInput, fmt.Sprintf("invalid %s request", head.Type))
	}
	return deref(req), nil
}

// EncodeRequest renders req as a flat {"type": ..., fields...} message.
func EncodeRequest(req Request) ([]byte, error) {
	return withType(req, string(req.Type()))
}

func deref(req Request) Request {
	switch r := req.(type) {
	case *GetCurrentEnergy:
		return *r
	case *EnsureTabTracking:
		return *r
	case *GetSettings:
		return *r
	case *UpdateSettings:
		return *r
	case *GetNotificationSettings:
		return *r
	case *UpdateNotificationSettings:
		return *r
	case *GetHistory:
		return *r
	case *GetDomainStats:
		return *r
	case *GetBackendEnergySummary:
		return *r
	case *LogBackendEnergy:
		return *r
	case *MigrateLegacyData:
		return *r
	case *GetMigrationStatus:
		return *r
	case *RestoreFromBackup:
		return *r
	case *CleanupOldBackups:
		return *r
	case *ExecuteTipAction:
		return *r
	case *GetActiveTab:
		return *r
	case *ForceMetricsCollection:
		return *r
	case *Ping:
		return *r
	}
	return req
}

// withType marshals v and adds a "type" member.
func withType(v interface{}, typ string) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(typ)
	fields["type"] = tag
	return json.Marshal(fields)
}
