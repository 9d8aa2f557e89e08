package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/pkg/power"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "badger", cfg.Storage.Driver)
	assert.Equal(t, 30*time.Second, cfg.Daemon.SnapshotInterval.Std())
	assert.Equal(t, time.Hour, cfg.Daemon.CleanupInterval.Std())
	assert.Equal(t, 10*time.Minute, cfg.Daemon.SnapshotMaxAge.Std())
	assert.Equal(t, 5, cfg.Daemon.InjectAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Daemon.InjectBackoff.Std())
	assert.Equal(t, 10000, cfg.History.MaxBackendEntries)
	assert.Equal(t, power.DefaultConstants().BaselineWatts, cfg.Power.BaselineWatts)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromBytesYAML(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
version: "1.0"
storage:
  driver: sqlite
  path: /tmp/tabwatt.db
daemon:
  snapshot_interval: 45s
  inject_attempts: 3
  collaborator_addr: 127.0.0.1:7777
power:
  baseline_watts: 10
  multipliers:
    video: 2.0
  hosts:
    video:
      - peertube.example
history:
  backup_keep: 2
logging:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 45*time.Second, cfg.Daemon.SnapshotInterval.Std())
	assert.Equal(t, 3, cfg.Daemon.InjectAttempts)
	assert.Equal(t, 15*time.Second, cfg.Daemon.HeartbeatInterval.Std(), "unset fields keep defaults")
	assert.Equal(t, 10.0, cfg.Power.BaselineWatts)
	assert.Equal(t, 2.0, cfg.Power.Multipliers[power.CategoryVideo])
	assert.Equal(t, 2, cfg.History.BackupKeep)

	calc, err := cfg.Calculator()
	require.NoError(t, err)
	assert.Equal(t, power.CategoryVideo, calc.Classify("https://peertube.example/w/abc"))
	assert.Equal(t, power.CategoryVideo, calc.Classify("https://www.youtube.com/watch?v=1"), "built-in hosts stay")

	type LoggingConfig struct {
		Level string `yaml:"level"`
	}
	var logCfg LoggingConfig
	require.NoError(t, cfg.UnmarshalExtension("logging", &logCfg))
	assert.Equal(t, "debug", logCfg.Level)

	var missing LoggingConfig
	require.NoError(t, cfg.UnmarshalExtension("absent", &missing))
	assert.Empty(t, missing.Level)
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tabwatt.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
version = "1.0"

[storage]
driver = "sqlite"

[daemon]
cleanup_interval = "2h"

[logging]
level = "warn"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 2*time.Hour, cfg.Daemon.CleanupInterval.Std())
	assert.Contains(t, cfg.Extensions, "logging")
	assert.NotContains(t, cfg.Extensions, "storage")
}

func TestLoadRejectsInvalidConfigs(t *testing.T) {
	cases := map[string]string{
		"unknown driver":   "storage:\n  driver: postgres\n",
		"public address":   "daemon:\n  collaborator_addr: 0.0.0.0:9000\n",
		"bad duration":     "daemon:\n  snapshot_interval: soon\n",
		"unknown key":      "daemon:\n  snapshot_intervl: 30s\n",
		"too many retries": "daemon:\n  inject_attempts: 50\n",
		"unknown category": "power:\n  hosts:\n    podcasts: [example.com]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("TABWATT_TEST_STORE", "/var/lib/tabwatt")
	cfg, err := LoadFromBytes([]byte("storage:\n  path: ${TABWATT_TEST_STORE}/kv\n"))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/tabwatt/kv", cfg.Storage.Path)
}

func TestLoadFromDir(t *testing.T) {
	t.Run("no file gives defaults", func(t *testing.T) {
		cfg, path, err := LoadFromDir(t.TempDir(), quietLogger())
		require.NoError(t, err)
		assert.Empty(t, path)
		assert.Equal(t, "badger", cfg.Storage.Driver)
	})

	t.Run("dotenv feeds expansion", func(t *testing.T) {
		const key = "TABWATT_DOTENV_TEST_ADDR"
		t.Cleanup(func() { os.Unsetenv(key) })

		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=127.0.0.1:7788\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "tabwatt.yml"), []byte("daemon:\n  collaborator_addr: ${"+key+"}\n"), 0o644))

		cfg, path, err := LoadFromDir(dir, quietLogger())
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "tabwatt.yml"), path)
		assert.Equal(t, "127.0.0.1:7788", cfg.Daemon.CollaboratorAddr)
	})
}

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)

	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &schema))
	props, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok)
	for _, key := range []string{"version", "storage", "daemon", "power", "history"} {
		assert.Contains(t, props, key)
	}
	assert.NotContains(t, props, "Extensions")

	powerSchema, ok := props["power"].(map[string]interface{})
	require.True(t, ok)
	powerProps, ok := powerSchema["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, powerProps, "baseline_watts", "embedded constants are inlined")
	assert.Contains(t, powerProps, "hosts")
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Std())
	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
	assert.Error(t, d.UnmarshalText([]byte("ninety")))
}
