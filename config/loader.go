package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/pkg/paths"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// FileNames are the config files looked up in the config directory, in order.
var FileNames = []string{"tabwatt.yml", "tabwatt.yaml", "tabwatt.toml"}

// Load reads, parses, defaults and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	cfg, err := parse(data, formatOf(path))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config file").
			WithDetail("path", path)
	}
	return finish(cfg)
}

// LoadFromBytes parses YAML configuration.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg, err := parse(data, "yaml")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config")
	}
	return finish(cfg)
}

// LoadDefault loads the configuration from the config directory. The .env
// file there, if any, is loaded into the environment first so that ${VAR}
// references can use it. Without a config file the defaults are returned
// together with an empty path.
func LoadDefault() (*Config, string, error) {
	return LoadFromDir(paths.ConfigDir(), logrus.StandardLogger())
}

// LoadFromDir is LoadDefault for an explicit directory.
func LoadFromDir(dir string, logger *logrus.Logger) (*Config, string, error) {
	envFile := filepath.Join(dir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		// Existing environment variables win over the file.
		if err := godotenv.Load(envFile); err != nil {
			logger.WithError(err).WithField("path", envFile).Warn("Failed to load .env file, continuing without it")
		}
	}

	path := FindConfigFile(dir)
	if path == "" {
		logger.WithField("dir", dir).Debug("No config file found, using defaults")
		return Default(), "", nil
	}
	logger.WithField("path", path).Debug("Loading configuration")
	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}

	// Log the merged config at debug level
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(cfg); err == nil {
			logger.Debugf("Loaded configuration:\n%s", string(data))
		}
	}
	return cfg, path, nil
}

// FindConfigFile returns the first config file present in dir, or "".
func FindConfigFile(dir string) string {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func formatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}

func parse(data []byte, format string) (*Config, error) {
	expanded := []byte(expandEnvVars(string(data)))
	if err := validateDocument(expanded, format); err != nil {
		return nil, err
	}
	var cfg Config
	if format == "toml" {
		// TOML has no inline catch-all, so extensions are decoded separately.
		if err := toml.NewDecoder(bytes.NewReader(expanded)).Decode(&cfg); err != nil {
			return nil, err
		}
		var raw map[string]interface{}
		if err := toml.Unmarshal(expanded, &raw); err != nil {
			return nil, err
		}
		cfg.Extensions = extensionsOf(raw)
		return &cfg, nil
	}
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateDocument checks the raw document against the schema before it is
// decoded, so misspelled keys are reported instead of silently ignored.
func validateDocument(data []byte, format string) error {
	var raw map[string]interface{}
	var err error
	if format == "toml" {
		err = toml.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}

	// Round-trip through JSON so the validator sees plain JSON values.
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON for validation: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal JSON for validation: %w", err)
	}

	v, err := sharedValidator()
	if err != nil {
		return err
	}
	return v.Validate(doc)
}

// knownSections are decoded into Config fields rather than Extensions.
var knownSections = map[string]bool{"version": true, "storage": true, "daemon": true, "power": true, "history": true}

func extensionsOf(raw map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range raw {
		if !knownSections[k] {
			out[k] = v
		}
	}
	return out
}

func finish(cfg *Config) (*Config, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR} with the value of VAR. Unset variables
// expand to an empty string.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRegex.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}
