package models

import "time"

// HistoryEntry is the durable record of a session sample. Once written it is
// only ever removed by retention cleanup, or rewritten once by legacy migration.
type HistoryEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	TabID      int       `json:"tabId"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Domain     string    `json:"domain,omitempty"`
	PowerWatts *float64  `json:"powerWatts,omitempty"`
	EnergyKWh  float64   `json:"energyKwh"`
	EnergyCost float64   `json:"energyCost"`
	CO2Grams   float64   `json:"co2Grams"`
	DurationMs int64     `json:"duration"`

	// EnergyScore is the 0-100 score older releases recorded instead of watts.
	EnergyScore *float64   `json:"energyScore,omitempty"`
	MigratedAt  *time.Time `json:"migratedAt,omitempty"`
}

// Duration returns DurationMs as a time.Duration.
func (e HistoryEntry) Duration() time.Duration {
	return time.Duration(e.DurationMs) * time.Millisecond
}

// Watts returns the recorded power or zero for unmigrated legacy entries.
func (e HistoryEntry) Watts() float64 {
	if e.PowerWatts == nil {
		return 0
	}
	return *e.PowerWatts
}

// HasPower reports whether the entry carries a watt figure.
func (e HistoryEntry) HasPower() bool {
	return e.PowerWatts != nil
}

// Float returns a pointer to v, for the optional numeric fields.
func Float(v float64) *float64 {
	return &v
}

// TimeRange is one of the history windows understood by GET_HISTORY.
type TimeRange string

const (
	RangeHour  TimeRange = "1h"
	RangeDay   TimeRange = "24h"
	RangeWeek  TimeRange = "7d"
	RangeMonth TimeRange = "30d"
)

// Duration returns the window length, or false for an unknown range.
func (r TimeRange) Duration() (time.Duration, bool) {
	switch r {
	case RangeHour:
		return time.Hour, true
	case RangeDay:
		return 24 * time.Hour, true
	case RangeWeek:
		return 7 * 24 * time.Hour, true
	case RangeMonth:
		return 30 * 24 * time.Hour, true
	}
	return 0, false
}

// DomainStats aggregates history for one domain.
type DomainStats struct {
	Domain        string    `json:"domain"`
	Visits        int       `json:"visits"`
	AverageWatts  float64   `json:"averageWatts"`
	TotalKWh      float64   `json:"totalKwh"`
	TotalDuration int64     `json:"totalDuration"`
	LastVisit     time.Time `json:"lastVisit"`
}

// BackendEnergyEntry is energy logged by a non-browser source (a backend
// service or job) and summarised alongside browser history.
type BackendEnergyEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
	Operation  string    `json:"operation,omitempty"`
	PowerWatts float64   `json:"powerWatts"`
	DurationMs int64     `json:"duration"`
	EnergyKWh  float64   `json:"energyKwh"`
	CO2Grams   float64   `json:"co2Grams"`
}

// BackendEnergySummary aggregates BackendEnergyEntry records over a range.
type BackendEnergySummary struct {
	TimeRange    TimeRange          `json:"timeRange"`
	Entries      int                `json:"entries"`
	TotalKWh     float64            `json:"totalKwh"`
	TotalCO2     float64            `json:"totalCo2Grams"`
	AverageWatts float64            `json:"averageWatts"`
	BySource     map[string]float64 `json:"bySource"`
}
