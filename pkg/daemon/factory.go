package daemon

import (
	"net"
	"os"
	"time"

	"github.com/grovetools/tabwatt/config"
	"github.com/grovetools/tabwatt/pkg/paths"
)

// New returns a Client that will use the daemon if available,
// otherwise falls back to LocalClient.
func New() Client {
	return NewAt(paths.SocketPath())
}

// NewAt is New for an explicit socket path.
func NewAt(socketPath string) Client {
	if _, err := os.Stat(socketPath); err == nil {
		conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			if client, err := NewRemoteClient(socketPath); err == nil {
				return client
			}
		}
	}

	cfg, _, err := config.LoadDefault()
	if err != nil {
		cfg = config.Default()
	}
	return NewLocalClient(cfg)
}
