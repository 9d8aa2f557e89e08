package tracker

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/internal/daemon/kv"
	"github.com/grovetools/tabwatt/internal/daemon/storage"
	"github.com/grovetools/tabwatt/internal/daemon/store"
	"github.com/grovetools/tabwatt/internal/daemon/tips"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/grovetools/tabwatt/pkg/power"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc   *Service
	st    *storage.Storage
	pub   *store.Store
	clock *clock
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := &clock{t: time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC)}
	st := storage.New(kv.NewMemory()).WithClock(c.now)
	pub := store.New()
	svc := New(st, power.NewDefaultCalculator(), nil, pub, quietLogger(), Options{}).
		WithEvaluator(tips.New().WithRand(func() float64 { return 0 })).
		WithClock(c.now)
	return &fixture{svc: svc, st: st, pub: pub, clock: c}
}

func activate(t *testing.T, f *fixture, id int, url string) {
	t.Helper()
	require.NoError(t, f.svc.HandleEvent(context.Background(), protocol.TabEvent{
		Type:  protocol.EventTabActivated,
		TabID: id,
		Tab:   &models.TabInfo{ID: id, URL: url, Title: "page"},
	}))
}

func remove(t *testing.T, f *fixture, id int) {
	t.Helper()
	require.NoError(t, f.svc.HandleEvent(context.Background(), protocol.TabEvent{Type: protocol.EventTabRemoved, TabID: id}))
}

func drain(ch chan store.Update) []store.Update {
	var out []store.Update
	for {
		select {
		case u := <-ch:
			out = append(out, u)
		default:
			return out
		}
	}
}

func TestLifecycleFlushesOneEntryPerSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	activate(t, f, 7, "https://example.com/a")
	for i, title := range []string{"one", "two", "three"} {
		f.clock.advance(10 * time.Second)
		require.NoError(t, f.svc.HandleEvent(ctx, protocol.TabEvent{
			Type:       protocol.EventTabUpdated,
			TabID:      7,
			ChangeInfo: &protocol.ChangeInfo{Title: title, Status: "complete"},
		}), "update %d", i)
	}
	f.clock.advance(60 * time.Second)
	remove(t, f, 7)
	remove(t, f, 7)

	history, err := f.st.History()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(90000), history[0].DurationMs)
	assert.Equal(t, "three", history[0].Title)
	assert.Equal(t, "example.com", history[0].Domain)
	require.NotNil(t, history[0].EnergyScore)
	assert.False(t, f.svc.Registry().Has(7))
}

func TestInternalPagesAreNeverTracked(t *testing.T) {
	f := newFixture(t)
	activate(t, f, 1, "chrome://extensions")
	activate(t, f, 2, "https://chrome.google.com/webstore")
	activate(t, f, 3, "file:///tmp/index.html")
	assert.Equal(t, 0, f.svc.Registry().Len())

	remove(t, f, 1)
	history, err := f.st.History()
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestNavigationToInternalPageEndsSession(t *testing.T) {
	f := newFixture(t)
	activate(t, f, 4, "https://example.com")
	f.clock.advance(time.Minute)
	require.NoError(t, f.svc.HandleEvent(context.Background(), protocol.TabEvent{
		Type:       protocol.EventTabUpdated,
		TabID:      4,
		ChangeInfo: &protocol.ChangeInfo{URL: "chrome://newtab"},
	}))
	assert.False(t, f.svc.Registry().Has(4))

	history, err := f.st.History()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(60000), history[0].DurationMs)
}

func TestStreamingMetricsRaiseNotificationAndTip(t *testing.T) {
	f := newFixture(t)
	ch := f.pub.Subscribe()
	defer f.pub.Unsubscribe(ch)

	activate(t, f, 9, "https://www.youtube.com/watch?v=abc")
	f.clock.advance(31 * time.Second)
	f.svc.HandleMetrics(9, models.Metrics{DOMNodes: 3000, VideoElements: 1, ActiveVideos: 1})

	sess, ok := f.svc.Registry().Get(9)
	require.True(t, ok)
	assert.GreaterOrEqual(t, sess.PowerWatts, 45.0)

	var cmd *protocol.HostCommand
	var tip *models.Tip
	for _, u := range drain(ch) {
		switch u.Type {
		case store.UpdateHostCommand:
			c := u.Payload.(protocol.HostCommand)
			cmd = &c
		case store.UpdateTip:
			tip = u.Payload.(*models.Tip)
		}
	}
	require.NotNil(t, cmd)
	assert.Equal(t, protocol.HostShowNotification, cmd.Type)
	require.NotNil(t, tip)
	assert.Equal(t, models.TipHighPowerVideo, tip.Type)
	assert.Equal(t, models.ActionPauseMedia, tip.Action)

	// Within the cooldown neither fires again.
	f.clock.advance(time.Minute)
	f.svc.HandleMetrics(9, models.Metrics{DOMNodes: 3000, VideoElements: 1, ActiveVideos: 1})
	for _, u := range drain(ch) {
		assert.NotEqual(t, store.UpdateHostCommand, u.Type)
		assert.NotEqual(t, store.UpdateTip, u.Type)
	}
}

func TestMetricsForUntrackedTabAreDropped(t *testing.T) {
	f := newFixture(t)
	f.svc.HandleMetrics(3, models.Metrics{DOMNodes: 500, URL: "https://example.com"})
	assert.Equal(t, 0, f.svc.Registry().Len())
}

func TestTrackingDisabled(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdateSettings(context.Background(), map[string]interface{}{"trackingEnabled": false})
	require.NoError(t, err)
	activate(t, f, 5, "https://example.com")
	assert.Equal(t, 0, f.svc.Registry().Len())

	res, err := f.svc.EnsureTabTracking(context.Background(), protocol.EnsureTabTracking{
		TabID:   6,
		TabInfo: &models.TabInfo{URL: "https://example.com/page"},
	})
	require.NoError(t, err)
	assert.False(t, res.Tracking)
	assert.Equal(t, "tracking disabled", res.Reason)
	assert.Nil(t, res.Session)
	assert.Equal(t, 0, f.svc.Registry().Len())
}

func TestUpdateSettingsSanitizesAndToleratesBadFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.svc.UpdateSettings(ctx, map[string]interface{}{"energyThreshold": 150})
	require.NoError(t, err)
	assert.Equal(t, 75.0, got.EnergyThreshold)

	got, err = f.svc.UpdateSettings(ctx, map[string]interface{}{
		"dataRetentionDays": 14,
		"trackingEnabled":   []string{"nope"},
	})
	require.NoError(t, err)
	assert.Equal(t, 14, got.DataRetentionDays)
	assert.True(t, got.TrackingEnabled)

	stored, err := f.svc.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, got, stored)
}

func TestConcurrentRemovalsKeepAllHistory(t *testing.T) {
	f := newFixture(t)
	const tabs = 20
	for i := 1; i <= tabs; i++ {
		activate(t, f, i, "https://example.com/page")
	}

	var wg sync.WaitGroup
	for i := 1; i <= tabs; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_ = f.svc.HandleEvent(context.Background(), protocol.TabEvent{Type: protocol.EventTabRemoved, TabID: id})
		}(i)
	}
	wg.Wait()

	history, err := f.st.History()
	require.NoError(t, err)
	assert.Len(t, history, tabs)
}

func TestEnsureTabTrackingDegradesWithoutCollaborator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.EnsureTabTracking(ctx, protocol.EnsureTabTracking{
		TabID:   11,
		TabInfo: &models.TabInfo{URL: "https://example.org", Title: "Example"},
	})
	require.NoError(t, err)
	assert.True(t, res.Tracking)
	assert.True(t, res.Degraded)
	require.NotNil(t, res.Session)
	assert.Equal(t, "https://example.org", res.Session.URL)

	res, err = f.svc.EnsureTabTracking(ctx, protocol.EnsureTabTracking{
		TabID:   12,
		TabInfo: &models.TabInfo{URL: "about:blank"},
	})
	require.NoError(t, err)
	assert.False(t, res.Tracking)

	_, err = f.svc.EnsureTabTracking(ctx, protocol.EnsureTabTracking{TabID: 13})
	assert.True(t, tabwatterrors.Is(err, tabwatterrors.ErrCodeInvalidInput))
}

func TestExecuteTipAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.pub.Subscribe()
	defer f.pub.Unsubscribe(ch)

	res, err := f.svc.ExecuteTipAction(ctx, protocol.ExecuteTipAction{
		Action:           models.ActionRefreshPage,
		NotificationData: &models.Tip{TabID: 21},
	})
	require.NoError(t, err)
	assert.Equal(t, "host", res.Target)
	assert.Equal(t, 21, res.TabID)

	updates := drain(ch)
	require.Len(t, updates, 1)
	assert.Equal(t, protocol.HostCommand{Type: protocol.HostReloadTab, TabID: 21}, updates[0].Payload)

	_, err = f.svc.ExecuteTipAction(ctx, protocol.ExecuteTipAction{Action: models.ActionPauseMedia, TabID: 21})
	assert.True(t, tabwatterrors.Is(err, tabwatterrors.ErrCodeUnavailable))

	_, err = f.svc.ExecuteTipAction(ctx, protocol.ExecuteTipAction{Action: "explode"})
	assert.True(t, tabwatterrors.Is(err, tabwatterrors.ErrCodeInvalidInput))
}

func TestSnapshotRehydration(t *testing.T) {
	f := newFixture(t)
	activate(t, f, 31, "https://example.com")
	n, err := f.svc.SaveSnapshot()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	restart := func(after time.Duration) int {
		c := &clock{t: f.clock.now().Add(after)}
		svc := New(f.st, power.NewDefaultCalculator(), nil, store.New(), quietLogger(), Options{}).WithClock(c.now)
		n, err := svc.Rehydrate()
		require.NoError(t, err)
		return n
	}
	assert.Equal(t, 1, restart(5*time.Minute))
	assert.Equal(t, 0, restart(11*time.Minute))
}

func TestCleanupHistoryHonoursRetention(t *testing.T) {
	f := newFixture(t)
	now := f.clock.now()
	require.NoError(t, f.st.AppendHistory(0,
		models.HistoryEntry{Timestamp: now.Add(-31 * 24 * time.Hour), TabID: 1, PowerWatts: models.Float(10)},
		models.HistoryEntry{Timestamp: now.Add(-29 * 24 * time.Hour), TabID: 2, PowerWatts: models.Float(10)},
	))

	removed, err := f.svc.CleanupHistory()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	history, err := f.st.History()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 2, history[0].TabID)
}

func TestDispatchThroughProtocol(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp := protocol.Handle(ctx, f.svc, []byte(`{"type":"PING"}`))
	require.True(t, resp.Success)
	var ping protocol.PingResult
	require.NoError(t, resp.Decode(&ping))
	assert.Equal(t, "ok", ping.Status)

	resp = protocol.Handle(ctx, f.svc, []byte(`{"type":"GET_HISTORY","timeRange":"2d"}`))
	assert.False(t, resp.Success)
	assert.Equal(t, string(tabwatterrors.ErrCodeInvalidInput), resp.Code)

	resp = protocol.Handle(ctx, f.svc, []byte(`{"type":"LOG_BACKEND_ENERGY","entry":{"source":"batch","powerWatts":100,"duration":3600000}}`))
	require.True(t, resp.Success, resp.Error)
	resp = protocol.Handle(ctx, f.svc, []byte(`{"type":"GET_BACKEND_ENERGY_SUMMARY","timeRange":"1h"}`))
	var summary models.BackendEnergySummary
	require.NoError(t, resp.Decode(&summary))
	assert.Equal(t, 1, summary.Entries)
	assert.InDelta(t, 0.1, summary.TotalKWh, 1e-9)

	resp = protocol.Handle(ctx, f.svc, []byte(`{"type":"GET_ACTIVE_TAB"}`))
	assert.Equal(t, string(tabwatterrors.ErrCodeNotFound), resp.Code)
}
