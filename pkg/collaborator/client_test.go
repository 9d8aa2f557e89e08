package collaborator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	hub "github.com/grovetools/tabwatt/internal/daemon/collaborator"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePage struct {
	mu      sync.Mutex
	metrics models.Metrics
	tips    []models.Tip
	applied []protocol.CollaboratorType
	fail    bool
}

func (p *fakePage) Measure(context.Context) (models.Metrics, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return models.Metrics{}, errors.New("page gone")
	}
	return p.metrics, nil
}

func (p *fakePage) ShowTip(tip models.Tip) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tips = append(p.tips, tip)
	return nil
}

func (p *fakePage) Apply(kind protocol.CollaboratorType, _ []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applied = append(p.applied, kind)
	return nil
}

func (p *fakePage) snapshot() ([]models.Tip, []protocol.CollaboratorType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Tip(nil), p.tips...), append([]protocol.CollaboratorType(nil), p.applied...)
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type metricsSink struct {
	mu      sync.Mutex
	samples map[int][]models.Metrics
}

func (s *metricsSink) record(tabID int, m models.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[tabID] = append(s.samples[tabID], m)
}

func (s *metricsSink) count(tabID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples[tabID])
}

func startHub(t *testing.T) (*hub.Hub, *metricsSink, string) {
	t.Helper()
	h := hub.NewHub(testLogger())
	sink := &metricsSink{samples: make(map[int][]models.Metrics)}
	h.OnMetrics(sink.record)

	mux := http.NewServeMux()
	mux.Handle("/ws/collaborator", h)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, sink, strings.TrimPrefix(srv.URL, "http://")
}

func TestClientAnswersDaemonRequests(t *testing.T) {
	h, sink, addr := startHub(t)
	page := &fakePage{metrics: models.Metrics{DOMNodes: 3000, ActiveVideos: 1, VideoElements: 1}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := Dial(ctx, Options{TabID: 12, Addr: addr}, page, testLogger())
	require.NoError(t, err)
	go c.Run(ctx)

	require.Eventually(t, func() bool { return h.Connected(12) }, time.Second, 5*time.Millisecond)

	rctx, rcancel := context.WithTimeout(ctx, time.Second)
	defer rcancel()
	require.NoError(t, h.Ping(rctx, 12))
	require.NoError(t, h.CollectNow(rctx, 12))
	assert.Equal(t, 1, sink.count(12))

	require.NoError(t, h.Send(12, protocol.CollaboratorMessage{
		Type: protocol.MsgShowEnergyTip,
		Tip:  &models.Tip{Type: models.TipHighPowerVideo, Action: models.ActionPauseMedia},
	}))
	require.NoError(t, h.Send(12, protocol.CollaboratorMessage{Type: protocol.MsgPauseMediaElements}))

	require.Eventually(t, func() bool {
		tips, applied := page.snapshot()
		return len(tips) == 1 && len(applied) == 1
	}, time.Second, 5*time.Millisecond)
	tips, applied := page.snapshot()
	assert.Equal(t, models.TipHighPowerVideo, tips[0].Type)
	assert.Equal(t, protocol.MsgPauseMediaElements, applied[0])
}

func TestClientReportsMeasureFailure(t *testing.T) {
	h, _, addr := startHub(t)
	page := &fakePage{fail: true}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := Dial(ctx, Options{TabID: 4, Addr: addr}, page, testLogger())
	require.NoError(t, err)
	go c.Run(ctx)
	require.Eventually(t, func() bool { return h.Connected(4) }, time.Second, 5*time.Millisecond)

	rctx, rcancel := context.WithTimeout(ctx, time.Second)
	defer rcancel()
	err = h.CollectNow(rctx, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page gone")
}

func TestClientSamplesPeriodically(t *testing.T) {
	h, sink, addr := startHub(t)
	page := &fakePage{metrics: models.Metrics{DOMNodes: 800}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := Dial(ctx, Options{TabID: 3, Addr: addr, SampleInterval: 10 * time.Millisecond}, page, testLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.count(3) >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, h.Connected(3))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDialValidatesOptions(t *testing.T) {
	_, err := Dial(context.Background(), Options{}, &fakePage{}, testLogger())
	assert.Error(t, err)
	_, err = Dial(context.Background(), Options{TabID: 1}, &fakePage{}, testLogger())
	assert.Error(t, err)
}
