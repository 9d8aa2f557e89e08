package daemon

import (
	"context"
	"errors"
	"sync"

	"github.com/grovetools/tabwatt/config"
	"github.com/grovetools/tabwatt/internal/daemon/kv"
	"github.com/grovetools/tabwatt/internal/daemon/storage"
	"github.com/grovetools/tabwatt/internal/daemon/store"
	"github.com/grovetools/tabwatt/internal/daemon/tracker"
	"github.com/grovetools/tabwatt/pkg/paths"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// LocalClient implements Client by opening the persistent store directly.
// It is used when the daemon is not running: settings, history, backups and
// migration work as usual, while anything that needs live tabs reports an
// empty registry.
type LocalClient struct {
	cfg    *config.Config
	logger *logrus.Entry

	mu      sync.Mutex
	kv      kv.Store
	service *tracker.Service
}

// NewLocalClient creates a LocalClient over the store configured in cfg.
// A nil cfg uses the defaults.
func NewLocalClient(cfg *config.Config) *LocalClient {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return &LocalClient{cfg: cfg, logger: logger.WithField("component", "local-client")}
}

// open opens the store on first use so that constructing a client is free.
func (c *LocalClient) open() (*tracker.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.service != nil {
		return c.service, nil
	}

	path := c.cfg.Storage.Path
	if path == "" {
		path = paths.StorePath()
	}
	st, err := kv.Open(kv.Options{Driver: c.cfg.Storage.Driver, Path: path})
	if err != nil {
		return nil, err
	}
	calc, err := c.cfg.Calculator()
	if err != nil {
		st.Close()
		return nil, err
	}
	c.kv = st
	c.service = tracker.New(storage.New(st), calc, nil, store.New(), c.logger, tracker.Options{
		SnapshotMaxAge: c.cfg.Daemon.SnapshotMaxAge.Std(),
	})
	return c.service, nil
}

// Request answers req in-process.
func (c *LocalClient) Request(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	svc, err := c.open()
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.Dispatch(ctx, svc, req), nil
}

// PostEvent returns an error: tab events only make sense to a running daemon.
func (c *LocalClient) PostEvent(ctx context.Context, ev protocol.TabEvent) error {
	return errors.New("tab events require the daemon; start it with 'tabwatt daemon start'")
}

// StreamUpdates returns an error for LocalClient since streaming is only available via daemon.
func (c *LocalClient) StreamUpdates(ctx context.Context, types ...string) (<-chan protocol.StreamUpdate, error) {
	return nil, errors.New("streaming not available in local mode; start the daemon for real-time updates")
}

// GetConfig returns an error for LocalClient since config is only available via daemon.
func (c *LocalClient) GetConfig(ctx context.Context) (*protocol.RunningConfig, error) {
	return nil, errors.New("config not available in local mode; start the daemon to view running config")
}

// IsRunning returns false since this is the local fallback client.
func (c *LocalClient) IsRunning() bool {
	return false
}

// Close releases the store, if it was opened.
func (c *LocalClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv == nil {
		return nil
	}
	err := c.kv.Close()
	c.kv, c.service = nil, nil
	return err
}

// Ensure LocalClient implements Client interface.
var _ Client = (*LocalClient)(nil)
