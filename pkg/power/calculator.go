package power

import (
	"math"
	"time"

	"github.com/grovetools/tabwatt/pkg/models"
)

// Methodology labels for PowerResult.
const (
	MethodBaseline  = "baseline"
	MethodURL       = "url-heuristic"
	MethodDOM       = "dom-analysis"
	MethodDOMAndCPU = "dom-cpu-analysis"
)

// Calculator turns a metrics sample into a wattage estimate. It is safe for
// concurrent use; it holds no state besides its constants.
type Calculator struct {
	consts     Constants
	classifier *Classifier
}

// NewCalculator creates a calculator. A nil classifier uses the built-in host lists.
func NewCalculator(consts Constants, classifier *Classifier) *Calculator {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	return &Calculator{consts: consts.WithDefaults(), classifier: classifier}
}

// NewDefaultCalculator is NewCalculator(DefaultConstants(), nil).
func NewDefaultCalculator() *Calculator {
	return NewCalculator(DefaultConstants(), nil)
}

// Constants returns the calculator's tuning values.
func (c *Calculator) Constants() Constants {
	return c.consts
}

// Classify returns the host category of a URL.
func (c *Calculator) Classify(raw string) Category {
	return c.classifier.Classify(raw)
}

// Calculate estimates the power draw for m. It never fails: missing or
// invalid fields count as zero and degrade the result toward the baseline.
func (c *Calculator) Calculate(m models.Metrics) models.PowerResult {
	k := c.consts
	dom := nonNegative(m.DOMNodes)
	canvases := nonNegative(m.CanvasElements)
	animated := nonNegative(m.AnimatedElements)
	active := nonNegative(m.ActiveVideos)
	idle := nonNegative(m.VideoElements) - active
	if idle < 0 {
		idle = 0
	}

	b := models.PowerBreakdown{BaselineWatts: k.BaselineWatts, Multiplier: 1}

	if dom > k.DOMThreshold {
		excess := float64(dom-k.DOMThreshold) / 1000
		b.DOMWatts = math.Min(excess*k.WattsPer1000DOM, k.MaxDOMWatts)
	}
	b.CPUWatts = math.Min(float64(canvases)*k.WattsPerCanvas, k.MaxCanvasWatts) +
		math.Min(float64(animated)*k.WattsPerAnimated, k.MaxAnimatedWatts)
	b.VideoWatts = float64(active)*k.WattsPerVideo + float64(idle)*k.WattsPerIdleVideo

	cat := c.classifier.Classify(m.URL)
	b.Category = string(cat)
	if mult, ok := k.Multipliers[cat]; ok && mult > 0 {
		b.Multiplier = mult
	}

	total := (b.BaselineWatts + b.DOMWatts + b.CPUWatts + b.VideoWatts) * b.Multiplier
	if math.IsNaN(total) || math.IsInf(total, 0) {
		total = k.BaselineWatts
	}
	total = clamp(total, k.MinWatts, k.MaxWatts)

	confidence, method := c.confidence(dom, canvases+animated+active+idle, cat)
	return models.PowerResult{
		TotalWatts:  round2(total),
		Breakdown:   b,
		Confidence:  confidence,
		Methodology: method,
	}
}

// confidence grows with the number of independent signals that contributed.
func (c *Calculator) confidence(dom, cpuElements int, cat Category) (float64, string) {
	var (
		conf   float64
		method string
	)
	switch {
	case dom > 0 && cpuElements > 0:
		conf, method = 0.8, MethodDOMAndCPU
	case dom > 0:
		conf, method = 0.6, MethodDOM
	case cat != CategoryGeneral:
		return 0.3, MethodURL
	default:
		return 0.2, MethodBaseline
	}
	if cat != CategoryGeneral {
		conf += 0.1
	}
	return conf, method
}

// EstimateURL estimates a page from its URL alone.
func (c *Calculator) EstimateURL(raw string) models.PowerResult {
	return c.Calculate(models.Metrics{URL: raw})
}

// EstimateEnergyConsumption converts a power level held for d into energy,
// cost and emissions.
func (c *Calculator) EstimateEnergyConsumption(watts float64, d time.Duration) models.EnergyEstimate {
	if watts <= 0 || d <= 0 || math.IsNaN(watts) {
		return models.EnergyEstimate{}
	}
	kwh := watts * d.Hours() / 1000
	return models.EnergyEstimate{
		KWh:      kwh,
		Cost:     kwh * c.consts.PricePerKWh,
		CO2Grams: kwh * c.consts.GramsCO2PerKWh,
	}
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
