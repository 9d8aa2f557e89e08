package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerCachesPerComponent(t *testing.T) {
	t.Setenv("TABWATT_HOME", t.TempDir())

	logger := NewLogger("test-component")
	require.NotNil(t, logger)
	assert.Equal(t, "test-component", logger.Data["component"])
	assert.Same(t, logger, NewLogger("test-component"))
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name    string
		config  FormatConfig
		entry   *logrus.Entry
		want    []string
		notWant []string
	}{
		{
			name:   "default format",
			config: FormatConfig{},
			entry: &logrus.Entry{
				Level:   logrus.InfoLevel,
				Message: "tab tracked",
				Data:    logrus.Fields{"component": "tracker", "tab_id": 7, "category": "video"},
			},
			want: []string{"[INFO]", "tracker", "tab tracked", "category=video tab_id=7"},
		},
		{
			name:   "simple format",
			config: FormatConfig{DisableTimestamp: true, DisableComponent: true},
			entry: &logrus.Entry{
				Level:   logrus.WarnLevel,
				Message: "collaborator slow",
				Data:    logrus.Fields{"component": "hub"},
			},
			want:    []string{"[WARN] collaborator slow"},
			notWant: []string{"hub"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &TextFormatter{Config: tt.config}
			out, err := f.Format(tt.entry)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, string(out), w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, string(out), nw)
			}
			assert.True(t, strings.HasSuffix(string(out), "\n"))
		})
	}
}

func TestNewWritesToConfiguredFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "daemon.log")
	entry := New("daemon", Config{
		Level:  "debug",
		File:   FileSinkConfig{Path: path},
		Format: FormatConfig{Preset: "json", Stderr: "never"},
	})
	assert.Equal(t, logrus.DebugLevel, entry.Logger.GetLevel())

	entry.WithField("tab_id", 3).Debug("metrics received")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"metrics received"`)
	assert.Contains(t, string(data), `"component":"daemon"`)
}

func TestEnvOverridesLevel(t *testing.T) {
	t.Setenv("TABWATT_LOG_LEVEL", "error")
	entry := New("cli", Config{Level: "debug", File: FileSinkConfig{Path: filepath.Join(t.TempDir(), "cli.log")}})
	assert.Equal(t, logrus.ErrorLevel, entry.Logger.GetLevel())
}

func TestFilePathDefaultsToStateDir(t *testing.T) {
	root := t.TempDir()
	t.Setenv("TABWATT_HOME", root)
	assert.Equal(t, filepath.Join(root, "state", "logs", "daemon.log"), FilePath("daemon", Config{}))
}

func TestStderrMirrorUsesGlobalOutput(t *testing.T) {
	var buf bytes.Buffer
	SetGlobalOutput(&buf)
	t.Cleanup(func() { SetGlobalOutput(os.Stderr) })

	entry := New("mirror", Config{
		File:   FileSinkConfig{Path: filepath.Join(t.TempDir(), "mirror.log")},
		Format: FormatConfig{Preset: "simple", Stderr: "always"},
	})
	entry.Info("hello")
	assert.Contains(t, buf.String(), "[INFO] hello")
}

func TestPrettyLogger(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrettyLogger().WithWriter(&buf)
	p.Success("daemon started")
	p.Field("socket", "/tmp/tabwattd.sock")
	p.Error("request failed", assert.AnError)

	out := buf.String()
	assert.Contains(t, out, "daemon started")
	assert.Contains(t, out, "/tmp/tabwattd.sock")
	assert.Contains(t, out, assert.AnError.Error())
}
