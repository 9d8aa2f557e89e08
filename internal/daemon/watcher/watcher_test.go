package watcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	files []string
}

func (r *recorder) reload(file string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, file)
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.files...)
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestReloadOnConfigWrite(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w, err := New(dir, 10, testLogger(), rec.reload)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tabwatt.yml"), []byte("version: \"1.0\"\n"), 0o644))

	require.Eventually(t, func() bool {
		return len(rec.seen()) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "tabwatt.yml", rec.seen()[0])
	assert.NotContains(t, rec.seen(), "notes.txt")
}

func TestHandleChangeDebounces(t *testing.T) {
	rec := &recorder{}
	now := time.Unix(1_700_000_000, 0)
	w := &ConfigWatcher{
		debounce: 500 * time.Millisecond,
		logger:   testLogger(),
		onReload: rec.reload,
		now:      func() time.Time { return now },
	}

	w.handleChange("/cfg/tabwatt.yml")
	now = now.Add(100 * time.Millisecond)
	w.handleChange("/cfg/tabwatt.yml")
	now = now.Add(time.Second)
	w.handleChange("/cfg/.env")

	assert.Equal(t, []string{"tabwatt.yml", ".env"}, rec.seen())
}

func TestIsConfigFile(t *testing.T) {
	assert.True(t, isConfigFile("tabwatt.toml"))
	assert.True(t, isConfigFile(".env"))
	assert.False(t, isConfigFile("grove.yml"))
}
