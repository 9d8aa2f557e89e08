package daemon

import (
	"context"
	"io"
	"net"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/tabwatt/config"
	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/internal/daemon/engine"
	"github.com/grovetools/tabwatt/internal/daemon/kv"
	"github.com/grovetools/tabwatt/internal/daemon/server"
	"github.com/grovetools/tabwatt/internal/daemon/storage"
	"github.com/grovetools/tabwatt/internal/daemon/store"
	"github.com/grovetools/tabwatt/internal/daemon/tracker"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/grovetools/tabwatt/pkg/power"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRemote(t *testing.T) *RemoteClient {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	logger := logrus.NewEntry(l)

	pub := store.New()
	svc := tracker.New(storage.New(kv.NewMemory()), power.NewDefaultCalculator(), nil, pub, logger, tracker.Options{})
	srv := server.New(logger)
	srv.SetEngine(engine.New(pub, logger))
	srv.SetTracker(svc)
	srv.SetRunningConfig(&protocol.RunningConfig{StorageDriver: kv.DriverMemory})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	addr := ts.Listener.Addr().String()
	c := newClient(func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}, baseURL)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRemoteClientRequests(t *testing.T) {
	c := newRemote(t)
	ctx := context.Background()

	assert.True(t, c.IsRunning())

	ping, err := Call[protocol.PingResult](ctx, c, protocol.Ping{})
	require.NoError(t, err)
	assert.Equal(t, 0, ping.Tracked)

	require.NoError(t, c.PostEvent(ctx, protocol.TabEvent{
		Type:  protocol.EventTabActivated,
		TabID: 4,
		Tab:   &models.TabInfo{ID: 4, URL: "https://example.com/article", Title: "Article", Active: true},
	}))

	snap, err := Call[models.EnergySnapshot](ctx, c, protocol.GetCurrentEnergy{})
	require.NoError(t, err)
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, 4, snap.Sessions[0].TabID)

	_, err = Call[models.TabSession](ctx, c, protocol.ForceMetricsCollection{TabID: 99})
	require.Error(t, err)
	assert.True(t, tabwatterrors.Is(err, tabwatterrors.ErrCodeTabNotTracked))

	cfg, err := c.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, kv.DriverMemory, cfg.StorageDriver)
}

func TestRemoteClientRejectsInvalidEvent(t *testing.T) {
	c := newRemote(t)
	err := c.PostEvent(context.Background(), protocol.TabEvent{Type: "TAB_MOVED", TabID: 1})
	require.Error(t, err)
}

func TestRemoteClientStream(t *testing.T) {
	c := newRemote(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updates, err := c.StreamUpdates(ctx, "initial", "session")
	require.NoError(t, err)

	// The subscription is live once the initial update arrives.
	select {
	case u := <-updates:
		assert.Equal(t, "initial", u.UpdateType)
	case <-ctx.Done():
		t.Fatal("no initial update")
	}

	require.NoError(t, c.PostEvent(ctx, protocol.TabEvent{
		Type:  protocol.EventTabActivated,
		TabID: 9,
		Tab:   &models.TabInfo{ID: 9, URL: "https://www.youtube.com/watch?v=x", Active: true},
	}))

	for {
		select {
		case u, ok := <-updates:
			require.True(t, ok, "stream closed early")
			if u.UpdateType != "session" {
				continue
			}
			require.NotNil(t, u.Session)
			assert.Equal(t, 9, u.Session.TabID)
			return
		case <-ctx.Done():
			t.Fatal("no session update")
		}
	}
}

func TestLocalClient(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "tabwatt.db")

	c := NewLocalClient(cfg)
	defer c.Close()
	ctx := context.Background()

	assert.False(t, c.IsRunning())

	settings, err := Call[models.Settings](ctx, c, protocol.UpdateSettings{Settings: map[string]interface{}{"energyThreshold": 40}})
	require.NoError(t, err)
	assert.Equal(t, 40.0, settings.EnergyThreshold)

	settings, err = Call[models.Settings](ctx, c, protocol.GetSettings{})
	require.NoError(t, err)
	assert.Equal(t, 40.0, settings.EnergyThreshold)

	_, err = Call[models.TabInfo](ctx, c, protocol.GetActiveTab{})
	assert.True(t, tabwatterrors.Is(err, tabwatterrors.ErrCodeNotFound))

	assert.Error(t, c.PostEvent(ctx, protocol.TabEvent{Type: protocol.EventTabRemoved, TabID: 1}))
	_, err = c.StreamUpdates(ctx)
	assert.Error(t, err)
}

func TestNewAtFallsBackToLocal(t *testing.T) {
	t.Setenv("TABWATT_HOME", t.TempDir())
	c := NewAt(filepath.Join(t.TempDir(), "missing.sock"))
	defer c.Close()
	_, ok := c.(*LocalClient)
	assert.True(t, ok)
}
