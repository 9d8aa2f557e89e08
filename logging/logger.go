package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/grovetools/tabwatt/config"
	"github.com/grovetools/tabwatt/pkg/paths"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

// NewLogger returns the cached logger for component, building it from the
// "logging" section of the default config on first use.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	var logCfg Config
	if cfg, _, err := config.LoadDefault(); err == nil {
		if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
			logrus.Warnf("ignoring malformed logging config: %v", err)
		}
	}

	entry := New(component, logCfg)
	loggers[component] = entry
	return entry
}

// New builds an uncached logger for component.
func New(component string, logCfg Config) *logrus.Entry {
	logger := logrus.New()

	logger.SetLevel(resolveLevel(logCfg.Level))
	logger.SetReportCaller(logCfg.ReportCaller || os.Getenv("TABWATT_LOG_CALLER") == "true")

	switch logCfg.Format.Preset {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "simple":
		logger.SetFormatter(&TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}})
	default:
		logger.SetFormatter(&TextFormatter{Config: logCfg.Format})
	}

	var writers []io.Writer
	if path := FilePath(component, logCfg); path != "" {
		if f, err := openLogFile(path); err == nil {
			writers = append(writers, f)
		} else if logCfg.File.Path != "" {
			logger.Warnf("log file %s unavailable: %v", path, err)
		}
	}
	if mirrorToStderr(logCfg.Format.Stderr, logger.GetLevel()) {
		writers = append(writers, GetGlobalOutput())
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}

	return logger.WithField("component", component)
}

// resolveLevel prefers TABWATT_LOG_LEVEL over the configured level and
// falls back to info.
func resolveLevel(configured string) logrus.Level {
	name := os.Getenv("TABWATT_LOG_LEVEL")
	if name == "" {
		name = configured
	}
	if level, err := logrus.ParseLevel(name); err == nil {
		return level
	}
	return logrus.InfoLevel
}

// FilePath returns the log file of component: the configured path, or
// <state>/logs/<component>.log.
func FilePath(component string, logCfg Config) string {
	if logCfg.File.Path != "" {
		return expandPath(logCfg.File.Path)
	}
	dir := paths.LogDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, fmt.Sprintf("%s.log", component))
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// mirrorToStderr decides whether log lines are also written to stderr. In
// "auto" mode that happens when debugging or when stderr is not a terminal,
// e.g. when the daemon runs under a service manager.
func mirrorToStderr(mode string, level logrus.Level) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if level >= logrus.DebugLevel {
		return true
	}
	fd := os.Stderr.Fd()
	return !(isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
}

func expandPath(path string) string {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok {
		return path
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, rest)
	}
	return path
}
