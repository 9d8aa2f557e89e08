// Package paths provides XDG-compliant path resolution for tabwatt.
//
// Resolution order:
// 1. TABWATT_HOME (portable root) → $TABWATT_HOME/{config,data,state,run}
// 2. XDG env vars → $XDG_*_HOME/tabwatt
// 3. Platform defaults → ~/.config/tabwatt, ~/.local/share/tabwatt, etc.
package paths

import (
	"os"
	"path/filepath"
)

const appName = "tabwatt"

func home(sub, xdgVar string, fallback ...string) string {
	if root := os.Getenv("TABWATT_HOME"); root != "" {
		return filepath.Join(root, sub)
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return filepath.Join(dir, appName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		parts := append([]string{homeDir}, fallback...)
		return filepath.Join(append(parts, appName)...)
	}
	return ""
}

// ConfigDir returns the directory holding tabwatt.yml / tabwatt.toml and .env.
func ConfigDir() string {
	return home("config", "XDG_CONFIG_HOME", ".config")
}

// DataDir returns the directory holding the persistent store.
func DataDir() string {
	return home("data", "XDG_DATA_HOME", ".local", "share")
}

// StateDir returns the directory for runtime state and logs.
func StateDir() string {
	return home("state", "XDG_STATE_HOME", ".local", "state")
}

// LogDir returns the daemon log directory.
func LogDir() string {
	state := StateDir()
	if state == "" {
		return ""
	}
	return filepath.Join(state, "logs")
}

// RuntimeDir returns the directory for sockets.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if root := os.Getenv("TABWATT_HOME"); root != "" {
		return filepath.Join(root, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// SocketPath returns the path to the daemon unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "tabwattd.sock")
}

// PidFilePath returns the path to the daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "tabwattd.pid")
}

// StorePath returns the default location of the persistent key-value store.
func StorePath() string {
	return filepath.Join(DataDir(), "store")
}

// EnsureDirs creates all tabwatt directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), DataDir(), StateDir(), LogDir(), RuntimeDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
