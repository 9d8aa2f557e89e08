package logging

// Config is the "logging" extension of tabwatt.yml. TABWATT_LOG_LEVEL and
// TABWATT_LOG_CALLER override Level and ReportCaller.
type Config struct {
	Level        string         `yaml:"level"`
	ReportCaller bool           `yaml:"report_caller"`
	File         FileSinkConfig `yaml:"file"`
	Format       FormatConfig   `yaml:"format"`
}

// FileSinkConfig places the log file. An empty Path means
// <state>/logs/<component>.log.
type FileSinkConfig struct {
	Path string `yaml:"path"`
}

// FormatConfig selects the line layout.
type FormatConfig struct {
	Preset           string `yaml:"preset"` // default, simple or json
	DisableTimestamp bool   `yaml:"disable_timestamp"`
	DisableComponent bool   `yaml:"disable_component"`
	// Stderr is auto, always or never. Auto mirrors when debugging or when
	// stderr is not a terminal.
	Stderr string `yaml:"stderr"`
}
