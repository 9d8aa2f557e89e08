// Package models holds the data types shared by the tabwatt daemon, its
// clients and the content collaborators.
package models

import "time"

// Metrics is one raw sample measured by a content collaborator inside a page.
// Only DOMNodes is meaningful on its own; every other field defaults to zero.
type Metrics struct {
	DOMNodes         int       `json:"domNodes"`
	VideoElements    int       `json:"videoElements,omitempty"`
	ActiveVideos     int       `json:"activeVideos,omitempty"`
	CanvasElements   int       `json:"canvasElements,omitempty"`
	AnimatedElements int       `json:"animatedElements,omitempty"`
	URL              string    `json:"url,omitempty"`
	Title            string    `json:"title,omitempty"`
	Timestamp        time.Time `json:"timestamp,omitempty"`
}

// CPUIntensiveElements counts the elements that keep the renderer busy.
func (m Metrics) CPUIntensiveElements() int {
	return m.VideoElements + m.CanvasElements + m.AnimatedElements
}

// PowerBreakdown itemises a PowerResult.
type PowerBreakdown struct {
	BaselineWatts float64 `json:"baselineWatts"`
	DOMWatts      float64 `json:"domWatts"`
	CPUWatts      float64 `json:"cpuWatts"`
	VideoWatts    float64 `json:"videoWatts"`
	Multiplier    float64 `json:"multiplier"`
	Category      string  `json:"category"`
}

// PowerResult is the wattage estimate for one metrics sample.
type PowerResult struct {
	TotalWatts  float64        `json:"totalWatts"`
	Breakdown   PowerBreakdown `json:"breakdown"`
	Confidence  float64        `json:"confidence"`
	Methodology string         `json:"methodology"`
}

// EnergyEstimate is energy, cost and emissions for a power level held over a duration.
type EnergyEstimate struct {
	KWh      float64 `json:"kwh"`
	Cost     float64 `json:"cost"`
	CO2Grams float64 `json:"co2Grams"`
}
