// Package config loads the tabwatt daemon configuration from tabwatt.yml or
// tabwatt.toml.
package config

import (
	"fmt"
	"time"

	"github.com/grovetools/tabwatt/pkg/power"
	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// Config is the daemon configuration.
type Config struct {
	Version string        `yaml:"version,omitempty" toml:"version,omitempty" jsonschema:"description=Configuration version (e.g. '1.0')"`
	Storage StorageConfig `yaml:"storage,omitempty" toml:"storage,omitempty" jsonschema:"description=Where history and settings are persisted"`
	Daemon  DaemonConfig  `yaml:"daemon,omitempty" toml:"daemon,omitempty" jsonschema:"description=Background job timing and collaborator injection"`
	Power   PowerConfig   `yaml:"power,omitempty" toml:"power,omitempty" jsonschema:"description=Tuning constants of the power estimator"`
	History HistoryConfig `yaml:"history,omitempty" toml:"history,omitempty" jsonschema:"description=Limits of the persisted history logs"`

	// Extensions captures sections owned by other packages, e.g. logging.
	Extensions map[string]interface{} `yaml:",inline" toml:"-" jsonschema:"-"`
}

// StorageConfig selects the key-value driver.
type StorageConfig struct {
	Driver string `yaml:"driver,omitempty" toml:"driver,omitempty" jsonschema:"enum=badger,enum=sqlite,description=Key-value store driver (default: badger)"`
	Path   string `yaml:"path,omitempty" toml:"path,omitempty" jsonschema:"description=Store location; defaults to the XDG data directory"`
}

// DaemonConfig tunes the background jobs.
type DaemonConfig struct {
	SnapshotInterval     Duration `yaml:"snapshot_interval,omitempty" toml:"snapshot_interval,omitempty" jsonschema:"description=How often the tab registry is persisted (default: 30s)"`
	CleanupInterval      Duration `yaml:"cleanup_interval,omitempty" toml:"cleanup_interval,omitempty" jsonschema:"description=How often history retention runs (default: 1h)"`
	HeartbeatInterval    Duration `yaml:"heartbeat_interval,omitempty" toml:"heartbeat_interval,omitempty" jsonschema:"description=How often the session list is republished to stream clients (default: 15s)"`
	SnapshotMaxAge       Duration `yaml:"snapshot_max_age,omitempty" toml:"snapshot_max_age,omitempty" jsonschema:"description=Snapshots older than this are ignored on restart (default: 10m)"`
	InjectAttempts       int      `yaml:"inject_attempts,omitempty" toml:"inject_attempts,omitempty" jsonschema:"minimum=1,maximum=20,description=Pings after injecting a collaborator (default: 5)"`
	InjectBackoff        Duration `yaml:"inject_backoff,omitempty" toml:"inject_backoff,omitempty" jsonschema:"description=Pause between readiness pings (default: 500ms)"`
	NotificationCooldown Duration `yaml:"notification_cooldown,omitempty" toml:"notification_cooldown,omitempty" jsonschema:"description=Minimum gap between threshold notifications per tab (default: 10m)"`
	CollaboratorAddr     string   `yaml:"collaborator_addr,omitempty" toml:"collaborator_addr,omitempty" jsonschema:"description=Loopback host:port for collaborator websockets; empty disables TCP"`
	ConfigDebounceMs     int      `yaml:"config_debounce_ms,omitempty" toml:"config_debounce_ms,omitempty" jsonschema:"description=Debounce for config file reloads in milliseconds (default: 500)"`
}

// PowerConfig embeds the estimator constants and extra category hosts.
type PowerConfig struct {
	power.Constants `yaml:",inline" toml:",inline" mapstructure:",squash"`

	// Hosts adds host patterns per category on top of the built-in lists.
	Hosts map[power.Category][]string `yaml:"hosts,omitempty" toml:"hosts,omitempty" jsonschema:"description=Extra host patterns per category (video, gaming, social, media)"`
}

// HistoryConfig bounds the history logs.
type HistoryConfig struct {
	MaxBackendEntries int `yaml:"max_backend_entries,omitempty" toml:"max_backend_entries,omitempty" jsonschema:"minimum=0,description=Cap of the backend energy log (default: 10000)"`
	BackupKeep        int `yaml:"backup_keep,omitempty" toml:"backup_keep,omitempty" jsonschema:"minimum=1,description=Backups kept by cleanup when no count is given (default: 5)"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "badger"
	}
	d := &c.Daemon
	setDuration(&d.SnapshotInterval, 30*time.Second)
	setDuration(&d.CleanupInterval, time.Hour)
	setDuration(&d.HeartbeatInterval, 15*time.Second)
	setDuration(&d.SnapshotMaxAge, 10*time.Minute)
	setDuration(&d.InjectBackoff, 500*time.Millisecond)
	setDuration(&d.NotificationCooldown, 10*time.Minute)
	if d.InjectAttempts == 0 {
		d.InjectAttempts = 5
	}
	if d.ConfigDebounceMs == 0 {
		d.ConfigDebounceMs = 500
	}
	if c.History.MaxBackendEntries == 0 {
		c.History.MaxBackendEntries = 10000
	}
	if c.History.BackupKeep == 0 {
		c.History.BackupKeep = 5
	}
	c.Power.Constants = c.Power.Constants.WithDefaults()
}

func setDuration(d *Duration, def time.Duration) {
	if *d == 0 {
		*d = Duration(def)
	}
}

// Calculator builds a power calculator from the power section.
func (c *Config) Calculator() (*power.Calculator, error) {
	classifier, err := power.NewClassifier(power.MergeHosts(power.DefaultHosts(), c.Power.Hosts))
	if err != nil {
		return nil, err
	}
	return power.NewCalculator(c.Power.Constants, classifier), nil
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded file into the provided target struct. The target must be a pointer.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// It's not an error if the key doesn't exist.
		// The target struct will simply remain zero-valued.
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}

// Duration is a time.Duration written as "30s", "10m" in config files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// JSONSchema describes Duration as a Go duration string.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration string such as 500ms, 30s or 1h",
	}
}
