// Package kv is the persistent key-value layer behind the tabwatt daemon.
// Compound values (settings, the history array) must be changed through
// Update so concurrent writers merge instead of overwriting each other.
package kv

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("kv: key not found")

// ErrNoChange may be returned by an UpdateFunc to leave the key untouched.
var ErrNoChange = errors.New("kv: no change")

// UpdateFunc receives the current value (nil when absent) and returns the
// value to store.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// Store is a byte-oriented key-value store.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	// Update runs a read-merge-write of key atomically with respect to every
	// other Update and Set on the same store.
	Update(key string, fn UpdateFunc) error
	// Keys returns every key with the given prefix, sorted.
	Keys(prefix string) ([]string, error)
	Close() error
}

// Driver names accepted by Open.
const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Options selects and configures a driver.
type Options struct {
	Driver   string
	Path     string
	ReadOnly bool
}

// Open opens the store described by opts.
func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverBadger:
		return OpenBadger(opts.Path, opts.ReadOnly)
	case DriverSQLite:
		path := opts.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "tabwatt.db")
		}
		return OpenSQLite(path, opts.ReadOnly)
	case DriverMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
}
