package models

import (
	"fmt"
	"math"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Settings is the process-wide tracking configuration persisted under the
// "settings" key. It is only written through MergeSettings + Sanitize.
type Settings struct {
	TrackingEnabled      bool    `json:"trackingEnabled" mapstructure:"trackingEnabled"`
	NotificationsEnabled bool    `json:"notificationsEnabled" mapstructure:"notificationsEnabled"`
	EnergyThreshold      float64 `json:"energyThreshold" mapstructure:"energyThreshold"`
	DataRetentionDays    int     `json:"dataRetentionDays" mapstructure:"dataRetentionDays"`
	SamplingIntervalMs   int     `json:"samplingInterval" mapstructure:"samplingInterval"`
	MaxHistoryEntries    int     `json:"maxHistoryEntries" mapstructure:"maxHistoryEntries"`
}

// DefaultSettings returns the settings used when nothing is stored.
func DefaultSettings() Settings {
	return Settings{
		TrackingEnabled:      true,
		NotificationsEnabled: true,
		EnergyThreshold:      75,
		DataRetentionDays:    30,
		SamplingIntervalMs:   5000,
		MaxHistoryEntries:    10000,
	}
}

// Sanitize replaces every out-of-range value with its default.
func (s Settings) Sanitize() Settings {
	d := DefaultSettings()
	if !inRange(s.EnergyThreshold, 1, 100) {
		s.EnergyThreshold = d.EnergyThreshold
	}
	if s.DataRetentionDays < 1 || s.DataRetentionDays > 365 {
		s.DataRetentionDays = d.DataRetentionDays
	}
	if s.SamplingIntervalMs < 1000 || s.SamplingIntervalMs > 60000 {
		s.SamplingIntervalMs = d.SamplingIntervalMs
	}
	if s.MaxHistoryEntries < 100 || s.MaxHistoryEntries > 100000 {
		s.MaxHistoryEntries = d.MaxHistoryEntries
	}
	return s
}

// Retention returns the retention window.
func (s Settings) Retention() time.Duration {
	return time.Duration(s.DataRetentionDays) * 24 * time.Hour
}

// SamplingInterval returns the collaborator sampling period.
func (s Settings) SamplingInterval() time.Duration {
	return time.Duration(s.SamplingIntervalMs) * time.Millisecond
}

// NotificationPosition is where contextual tips are shown inside the page.
type NotificationPosition string

const (
	PositionTopRight    NotificationPosition = "top-right"
	PositionTopLeft     NotificationPosition = "top-left"
	PositionBottomRight NotificationPosition = "bottom-right"
	PositionBottomLeft  NotificationPosition = "bottom-left"
)

// Frequency is the tip frequency tier.
type Frequency string

const (
	FrequencyMinimal    Frequency = "minimal"
	FrequencyNormal     Frequency = "normal"
	FrequencyAggressive Frequency = "aggressive"
)

// QuietHours suppresses every tip between Start and End (HH:MM, local time).
// Start after End wraps over midnight.
type QuietHours struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Start   string `json:"start" mapstructure:"start"`
	End     string `json:"end" mapstructure:"end"`
}

// Active reports whether t falls inside the quiet window.
func (q QuietHours) Active(t time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, err1 := parseClock(q.Start)
	end, err2 := parseClock(q.End)
	if err1 != nil || err2 != nil || start == end {
		return false
	}
	now := t.Hour()*60 + t.Minute()
	if start < end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

// TipCategories toggles each tip family.
type TipCategories struct {
	HighPower    bool `json:"highPower" mapstructure:"highPower"`
	Optimization bool `json:"optimization" mapstructure:"optimization"`
	Achievements bool `json:"achievements" mapstructure:"achievements"`
}

// NotificationSettings configures the contextual tip system.
type NotificationSettings struct {
	Enabled    bool                 `json:"enabled" mapstructure:"enabled"`
	Position   NotificationPosition `json:"position" mapstructure:"position"`
	DurationMs int                  `json:"duration" mapstructure:"duration"`
	MaxVisible int                  `json:"maxVisible" mapstructure:"maxVisible"`
	QuietHours QuietHours           `json:"quietHours" mapstructure:"quietHours"`
	Frequency  Frequency            `json:"frequency" mapstructure:"frequency"`
	Categories TipCategories        `json:"categories" mapstructure:"categories"`
}

// DefaultNotificationSettings returns the tip defaults.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		Enabled:    true,
		Position:   PositionTopRight,
		DurationMs: 8000,
		MaxVisible: 3,
		QuietHours: QuietHours{Enabled: false, Start: "22:00", End: "07:00"},
		Frequency:  FrequencyNormal,
		Categories: TipCategories{HighPower: true, Optimization: true, Achievements: true},
	}
}

// Sanitize replaces every invalid value with its default.
func (n NotificationSettings) Sanitize() NotificationSettings {
	d := DefaultNotificationSettings()
	switch n.Position {
	case PositionTopRight, PositionTopLeft, PositionBottomRight, PositionBottomLeft:
	default:
		n.Position = d.Position
	}
	if n.DurationMs < 3000 || n.DurationMs > 30000 {
		n.DurationMs = d.DurationMs
	}
	if n.MaxVisible < 1 || n.MaxVisible > 5 {
		n.MaxVisible = d.MaxVisible
	}
	if _, err := parseClock(n.QuietHours.Start); err != nil {
		n.QuietHours.Start = d.QuietHours.Start
	}
	if _, err := parseClock(n.QuietHours.End); err != nil {
		n.QuietHours.End = d.QuietHours.End
	}
	switch n.Frequency {
	case FrequencyMinimal, FrequencyNormal, FrequencyAggressive:
	default:
		n.Frequency = d.Frequency
	}
	return n
}

// MergeSettings overlays a partial update onto current. Keys that fail to
// decode keep their current value and are reported in the returned error;
// the merged value is still usable. Callers must Sanitize the result.
func MergeSettings(current Settings, patch map[string]interface{}) (Settings, error) {
	err := mergeInto(&current, patch)
	return current, err
}

// MergeNotificationSettings is MergeSettings for NotificationSettings.
func MergeNotificationSettings(current NotificationSettings, patch map[string]interface{}) (NotificationSettings, error) {
	err := mergeInto(&current, patch)
	return current, err
}

func mergeInto(target interface{}, patch map[string]interface{}) error {
	if len(patch) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(patch); err != nil {
		return fmt.Errorf("failed to decode settings update: %w", err)
	}
	return nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
