package collaborator

import (
	"context"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// fakeCollaborator answers PING and COLLECT_IMMEDIATE_METRICS like a page script.
func fakeCollaborator(t *testing.T, srv *httptest.Server, tabID int, metrics models.Metrics) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?tabId=" + strconv.Itoa(tabID)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	go func() {
		for {
			var msg protocol.CollaboratorMessage
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			reply := protocol.CollaboratorMessage{Type: msg.Type, ID: msg.ID, Reply: true, OK: true}
			if msg.Type == protocol.MsgCollectImmediateMetrics {
				m := metrics
				reply.Metrics = &m
			}
			if err := ws.WriteJSON(reply); err != nil {
				return
			}
		}
	}()
	return ws
}

func waitConnected(t *testing.T, h *Hub, tabID int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Connected(tabID) }, time.Second, 5*time.Millisecond)
}

func TestHubMetricsAndRequests(t *testing.T) {
	hub := NewHub(quietLogger())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	var (
		mu  sync.Mutex
		got []models.Metrics
	)
	hub.OnMetrics(func(tabID int, m models.Metrics) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 3, tabID)
		got = append(got, m)
	})

	ws := fakeCollaborator(t, srv, 3, models.Metrics{DOMNodes: 4200})
	waitConnected(t, hub, 3)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, hub.Ping(ctx, 3))
	require.NoError(t, hub.CollectNow(ctx, 3))

	// collaborator-initiated sample
	require.NoError(t, ws.WriteJSON(protocol.CollaboratorMessage{Type: protocol.MsgEnergyData, Metrics: &models.Metrics{DOMNodes: 10}}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 4200, got[0].DOMNodes)
	assert.Equal(t, 10, got[1].DOMNodes)
}

func TestHubUnavailable(t *testing.T) {
	hub := NewHub(quietLogger())
	err := hub.Send(42, protocol.CollaboratorMessage{Type: protocol.MsgReduceAnimations})
	assert.True(t, tabwatterrors.IsTransient(err))
	assert.False(t, hub.Connected(42))
}

func TestEnsureReadyInjectsThenPings(t *testing.T) {
	hub := NewHub(quietLogger())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	injected := 0
	inj := InjectorFunc(func(ctx context.Context, tabID int) error {
		injected++
		fakeCollaborator(t, srv, tabID, models.Metrics{})
		return nil
	})

	ctx := context.Background()
	res, err := hub.EnsureReady(ctx, 5, inj, ReadyPolicy(10, 20*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, res.Injected)
	assert.True(t, res.Ready)

	res, err = hub.EnsureReady(ctx, 5, inj, ReadyPolicy(10, 20*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, res.AlreadyConnected)
	assert.Equal(t, 1, injected)
}

func TestEnsureReadyGivesUp(t *testing.T) {
	hub := NewHub(quietLogger())
	inj := InjectorFunc(func(ctx context.Context, tabID int) error { return nil })

	res, err := hub.EnsureReady(context.Background(), 8, inj, ReadyPolicy(3, time.Millisecond))
	assert.Error(t, err)
	assert.True(t, res.Injected)
	assert.False(t, res.Ready)
}
