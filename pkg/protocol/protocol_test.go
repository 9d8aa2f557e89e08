package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequestFlatEnvelope(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"type":"ENSURE_TAB_TRACKING","tabId":7,"tabInfo":{"id":7,"url":"https://example.com"}}`))
	require.NoError(t, err)

	ensure, ok := req.(EnsureTabTracking)
	require.True(t, ok, "got %T", req)
	assert.Equal(t, 7, ensure.TabID)
	require.NotNil(t, ensure.TabInfo)
	assert.Equal(t, "https://example.com", ensure.TabInfo.URL)
}

func TestDecodeRequestErrors(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"type":"DANCE"}`))
	assert.True(t, tabwatterrors.Is(err, tabwatterrors.ErrCodeUnknownType))

	_, err = DecodeRequest([]byte(`{}`))
	assert.True(t, tabwatterrors.Is(err, tabwatterrors.ErrCodeInvalidInput))

	_, err = DecodeRequest([]byte(`not json`))
	assert.True(t, tabwatterrors.Is(err, tabwatterrors.ErrCodeInvalidInput))
}

func TestEncodeRequestEveryType(t *testing.T) {
	for _, typ := range Types() {
		req, ok := newRequest(typ)
		require.True(t, ok, typ)

		data, err := EncodeRequest(deref(req))
		require.NoError(t, err)

		decoded, err := DecodeRequest(data)
		require.NoError(t, err, string(data))
		assert.Equal(t, typ, decoded.Type())
	}
}

func TestResponseHelpers(t *testing.T) {
	ok := OK(map[string]int{"count": 2})
	assert.True(t, ok.Success)
	var out map[string]int
	require.NoError(t, ok.Decode(&out))
	assert.Equal(t, 2, out["count"])

	failed := Fail(tabwatterrors.TabNotTracked(3))
	assert.False(t, failed.Success)
	assert.Equal(t, string(tabwatterrors.ErrCodeTabNotTracked), failed.Code)
	assert.Equal(t, "tab 3 is not being tracked", failed.Error)
	assert.True(t, tabwatterrors.Is(failed.Err(), tabwatterrors.ErrCodeTabNotTracked))

	plain := Fail(errors.New("disk on fire"))
	assert.Equal(t, string(tabwatterrors.ErrCodeInternal), plain.Code)

	data, err := json.Marshal(failed)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"tab 3 is not being tracked","code":"TAB_NOT_TRACKED"}`, string(data))
}

// stubHandler answers PING and panics on GET_CURRENT_ENERGY; every other
// method returns a fixed error.
type stubHandler struct{}

var errStub = tabwatterrors.New(tabwatterrors.ErrCodeInternal, "stub")

func (stubHandler) GetCurrentEnergy(context.Context) (*models.EnergySnapshot, error) {
	panic("boom")
}
func (stubHandler) EnsureTabTracking(context.Context, EnsureTabTracking) (*TrackingResult, error) {
	return nil, errStub
}
func (stubHandler) GetSettings(context.Context) (models.Settings, error) {
	return models.DefaultSettings(), nil
}
func (stubHandler) UpdateSettings(context.Context, map[string]interface{}) (models.Settings, error) {
	return models.Settings{}, errStub
}
func (stubHandler) GetNotificationSettings(context.Context) (models.NotificationSettings, error) {
	return models.NotificationSettings{}, errStub
}
func (stubHandler) UpdateNotificationSettings(context.Context, map[string]interface{}) (models.NotificationSettings, error) {
	return models.NotificationSettings{}, errStub
}
func (stubHandler) GetHistory(context.Context, models.TimeRange) ([]models.HistoryEntry, error) {
	return nil, errStub
}
func (stubHandler) GetDomainStats(context.Context, string, models.TimeRange) (*models.DomainStats, error) {
	return nil, errStub
}
func (stubHandler) GetBackendEnergySummary(context.Context, models.TimeRange) (*models.BackendEnergySummary, error) {
	return nil, errStub
}
func (stubHandler) LogBackendEnergy(context.Context, models.BackendEnergyEntry) error {
	return nil
}
func (stubHandler) MigrateLegacyData(context.Context) (*models.MigrationResult, error) {
	return nil, errStub
}
func (stubHandler) GetMigrationStatus(context.Context) (*models.MigrationStatus, error) {
	return nil, errStub
}
func (stubHandler) RestoreFromBackup(context.Context, string) error {
	return tabwatterrors.BackupNotFound("missing")
}
func (stubHandler) CleanupOldBackups(context.Context, int) (*CleanupResult, error) {
	return nil, errStub
}
func (stubHandler) ExecuteTipAction(context.Context, ExecuteTipAction) (*TipActionResult, error) {
	return nil, errStub
}
func (stubHandler) GetActiveTab(context.Context) (*models.TabInfo, error) {
	return nil, errStub
}
func (stubHandler) ForceMetricsCollection(context.Context, int) (*models.TabSession, error) {
	return nil, errStub
}
func (stubHandler) Ping(context.Context) (*PingResult, error) {
	return &PingResult{Status: "ok"}, nil
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	h := stubHandler{}

	resp := Handle(ctx, h, []byte(`{"type":"PING"}`))
	require.True(t, resp.Success)
	var ping PingResult
	require.NoError(t, resp.Decode(&ping))
	assert.Equal(t, "ok", ping.Status)

	resp = Dispatch(ctx, h, GetCurrentEnergy{})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "handler panic")

	resp = Dispatch(ctx, h, &RestoreFromBackup{BackupKey: "missing"})
	assert.False(t, resp.Success)
	assert.Equal(t, string(tabwatterrors.ErrCodeNotFound), resp.Code)

	resp = Dispatch(ctx, h, LogBackendEnergy{})
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Result)

	resp = Handle(ctx, h, []byte(`{"type":"NOPE"}`))
	assert.False(t, resp.Success)
	assert.Equal(t, string(tabwatterrors.ErrCodeUnknownType), resp.Code)

	resp = Dispatch(ctx, h, nil)
	assert.False(t, resp.Success)
}

func TestTabEventValid(t *testing.T) {
	assert.True(t, TabEvent{Type: EventTabRemoved, TabID: 1}.Valid())
	assert.False(t, TabEvent{Type: EventTabRemoved}.Valid())
	assert.False(t, TabEvent{Type: "TAB_MOVED", TabID: 1}.Valid())
}
