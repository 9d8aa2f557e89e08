// Package daemon provides a client for the tabwatt daemon (tabwattd).
// It implements a transparent fallback pattern: if the daemon is running,
// requests go over its unix socket; if not, they are answered in-process
// from the persistent store.
package daemon

import (
	"context"

	"github.com/grovetools/tabwatt/pkg/protocol"
)

// Client defines the interface for interacting with the tabwatt daemon.
// Both RemoteClient (socket) and LocalClient (in-process) implement it.
type Client interface {
	// Request sends one protocol request. A transport failure is returned as
	// error; a request the daemon rejected comes back as a failed Response.
	Request(ctx context.Context, req protocol.Request) (protocol.Response, error)

	// PostEvent delivers a tab lifecycle event.
	PostEvent(ctx context.Context, ev protocol.TabEvent) error

	// StreamUpdates subscribes to real-time updates. types narrows the
	// update types; none means all. The channel is closed when ctx is
	// cancelled or the connection drops.
	StreamUpdates(ctx context.Context, types ...string) (<-chan protocol.StreamUpdate, error)

	// GetConfig returns the configuration the daemon is running with.
	GetConfig(ctx context.Context) (*protocol.RunningConfig, error)

	// IsRunning returns true if the daemon is available and responding.
	IsRunning() bool

	// Close cleans up any resources used by the client.
	Close() error
}

// Call sends req and decodes a successful result into T.
func Call[T any](ctx context.Context, c Client, req protocol.Request) (T, error) {
	var out T
	resp, err := c.Request(ctx, req)
	if err != nil {
		return out, err
	}
	if err := resp.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
