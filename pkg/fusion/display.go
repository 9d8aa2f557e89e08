// Package fusion resolves the power figure shown for the active tab. It
// consults an ordered list of increasingly approximate sources and always
// ends with a labelled, renderable value.
package fusion

import (
	"math"
	"time"
)

// Status tells the reader how much to trust a DisplayData value.
type Status string

const (
	StatusLive        Status = "live"
	StatusRecent      Status = "recent"
	StatusEstimated   Status = "estimated"
	StatusUnavailable Status = "unavailable"
)

// Source names the resolver step that produced a value.
type Source string

const (
	SourceLive         Source = "live"
	SourceRecentURL    Source = "recent_url"
	SourceRecentDomain Source = "recent_domain"
	SourceForced       Source = "forced_collection"
	SourceDomainStats  Source = "domain_stats"
	SourceDOMEstimate  Source = "dom_estimate"
	SourceURLEstimate  Source = "url_estimate"
	SourceBaseline     Source = "baseline"
)

// Severity is the visual emphasis of a comparison.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// DisplayData is the resolved figure for one tab.
type DisplayData struct {
	TabID       int         `json:"tabId,omitempty"`
	URL         string      `json:"url,omitempty"`
	Title       string      `json:"title,omitempty"`
	Domain      string      `json:"domain,omitempty"`
	Watts       float64     `json:"watts"`
	Status      Status      `json:"status"`
	Source      Source      `json:"source"`
	Confidence  float64     `json:"confidence"`
	Category    string      `json:"category,omitempty"`
	Note        string      `json:"note,omitempty"`
	Comparisons Comparisons `json:"comparisons"`
	ResolvedAt  time.Time   `json:"resolvedAt"`
}

// Estimated reports whether the value is anything other than a live reading.
func (d *DisplayData) Estimated() bool {
	return d.Status != StatusLive
}

// Comparison is one environmental equivalent of a wattage.
type Comparison struct {
	Value    float64  `json:"value"`
	Unit     string   `json:"unit"`
	Severity Severity `json:"severity"`
}

// Comparisons are the environmental equivalents shown next to the watts.
type Comparisons struct {
	LEDBulbs            Comparison `json:"ledBulbs"`
	CO2GramsPerHour     Comparison `json:"co2GramsPerHour"`
	WaterGallonsPerHour Comparison `json:"waterGallonsPerHour"`
}

// Conversion factors of the comparisons.
const (
	LEDBulbWatts        = 10.0
	GallonsWaterPerKWh  = 0.47
	mediumSeverityWatts = 20.0
	highSeverityWatts   = 35.0
)

// Compare derives the environmental comparisons of watts at the given grid
// carbon intensity. The functions are linear in watts and the severity tier
// follows the wattage band: below 20W low, below 35W medium, otherwise high.
func Compare(watts, gramsCO2PerKWh float64) Comparisons {
	if watts < 0 || math.IsNaN(watts) {
		watts = 0
	}
	sev := severityOf(watts)
	kw := watts / 1000
	return Comparisons{
		LEDBulbs:            Comparison{Value: round(watts/LEDBulbWatts, 1), Unit: "LED bulbs", Severity: sev},
		CO2GramsPerHour:     Comparison{Value: round(kw*gramsCO2PerKWh, 2), Unit: "g CO2/h", Severity: sev},
		WaterGallonsPerHour: Comparison{Value: round(kw*GallonsWaterPerKWh, 4), Unit: "gal/h", Severity: sev},
	}
}

func severityOf(watts float64) Severity {
	switch {
	case watts < mediumSeverityWatts:
		return SeverityLow
	case watts < highSeverityWatts:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
