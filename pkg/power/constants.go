// Package power estimates the power draw of a browser tab from the signals a
// content collaborator can measure inside the page.
package power

// Category is a coarse classification of a page by its host.
type Category string

const (
	CategoryGeneral Category = "general"
	CategoryVideo   Category = "video"
	CategoryGaming  Category = "gaming"
	CategorySocial  Category = "social"
	CategoryMedia   Category = "media"
)

// Constants are the empirical tuning values of the estimator. They are
// approximations and may be recalibrated through the daemon config.
type Constants struct {
	BaselineWatts float64 `yaml:"baseline_watts,omitempty" toml:"baseline_watts" mapstructure:"baseline_watts" jsonschema:"description=Idle browsing draw of a tab in watts"`
	MinWatts      float64 `yaml:"min_watts,omitempty" toml:"min_watts" mapstructure:"min_watts" jsonschema:"description=Lower clamp for a single tab"`
	MaxWatts      float64 `yaml:"max_watts,omitempty" toml:"max_watts" mapstructure:"max_watts" jsonschema:"description=Upper clamp for a single tab"`

	DOMThreshold      int     `yaml:"dom_threshold,omitempty" toml:"dom_threshold" mapstructure:"dom_threshold" jsonschema:"description=DOM node count considered normal"`
	WattsPer1000DOM   float64 `yaml:"watts_per_1000_dom,omitempty" toml:"watts_per_1000_dom" mapstructure:"watts_per_1000_dom" jsonschema:"description=Watts added per 1000 nodes above the threshold"`
	MaxDOMWatts       float64 `yaml:"max_dom_watts,omitempty" toml:"max_dom_watts" mapstructure:"max_dom_watts"`
	WattsPerCanvas    float64 `yaml:"watts_per_canvas,omitempty" toml:"watts_per_canvas" mapstructure:"watts_per_canvas"`
	MaxCanvasWatts    float64 `yaml:"max_canvas_watts,omitempty" toml:"max_canvas_watts" mapstructure:"max_canvas_watts"`
	WattsPerAnimated  float64 `yaml:"watts_per_animated,omitempty" toml:"watts_per_animated" mapstructure:"watts_per_animated"`
	MaxAnimatedWatts  float64 `yaml:"max_animated_watts,omitempty" toml:"max_animated_watts" mapstructure:"max_animated_watts"`
	WattsPerVideo     float64 `yaml:"watts_per_active_video,omitempty" toml:"watts_per_active_video" mapstructure:"watts_per_active_video" jsonschema:"description=Watts per playing video element"`
	WattsPerIdleVideo float64 `yaml:"watts_per_idle_video,omitempty" toml:"watts_per_idle_video" mapstructure:"watts_per_idle_video"`

	Multipliers map[Category]float64 `yaml:"multipliers,omitempty" toml:"multipliers,omitempty" mapstructure:"multipliers" jsonschema:"description=Per-category multiplier applied to the total"`

	PricePerKWh    float64 `yaml:"price_per_kwh,omitempty" toml:"price_per_kwh" mapstructure:"price_per_kwh" jsonschema:"description=Electricity price used for cost figures"`
	GramsCO2PerKWh float64 `yaml:"grams_co2_per_kwh,omitempty" toml:"grams_co2_per_kwh" mapstructure:"grams_co2_per_kwh" jsonschema:"description=Grid carbon intensity"`
}

// DefaultConstants returns the stock tuning values.
func DefaultConstants() Constants {
	return Constants{
		BaselineWatts:     8.0,
		MinWatts:          5.0,
		MaxWatts:          65.0,
		DOMThreshold:      2000,
		WattsPer1000DOM:   1.5,
		MaxDOMWatts:       12.0,
		WattsPerCanvas:    2.0,
		MaxCanvasWatts:    10.0,
		WattsPerAnimated:  0.2,
		MaxAnimatedWatts:  5.0,
		WattsPerVideo:     25.0,
		WattsPerIdleVideo: 1.0,
		Multipliers: map[Category]float64{
			CategoryVideo:  1.4,
			CategoryGaming: 1.6,
			CategorySocial: 1.2,
			CategoryMedia:  1.15,
		},
		PricePerKWh:    0.12,
		GramsCO2PerKWh: 400,
	}
}

// WithDefaults fills zero values from DefaultConstants so a partially
// specified config section stays usable.
func (c Constants) WithDefaults() Constants {
	d := DefaultConstants()
	fill := func(v *float64, def float64) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&c.BaselineWatts, d.BaselineWatts)
	fill(&c.MinWatts, d.MinWatts)
	fill(&c.MaxWatts, d.MaxWatts)
	fill(&c.WattsPer1000DOM, d.WattsPer1000DOM)
	fill(&c.MaxDOMWatts, d.MaxDOMWatts)
	fill(&c.WattsPerCanvas, d.WattsPerCanvas)
	fill(&c.MaxCanvasWatts, d.MaxCanvasWatts)
	fill(&c.WattsPerAnimated, d.WattsPerAnimated)
	fill(&c.MaxAnimatedWatts, d.MaxAnimatedWatts)
	fill(&c.WattsPerVideo, d.WattsPerVideo)
	fill(&c.WattsPerIdleVideo, d.WattsPerIdleVideo)
	fill(&c.PricePerKWh, d.PricePerKWh)
	fill(&c.GramsCO2PerKWh, d.GramsCO2PerKWh)
	if c.DOMThreshold <= 0 {
		c.DOMThreshold = d.DOMThreshold
	}
	if c.MaxWatts < c.MinWatts {
		c.MinWatts, c.MaxWatts = d.MinWatts, d.MaxWatts
	}
	merged := make(map[Category]float64, len(d.Multipliers))
	for k, v := range d.Multipliers {
		merged[k] = v
	}
	for k, v := range c.Multipliers {
		if v > 0 {
			merged[k] = v
		}
	}
	c.Multipliers = merged
	return c
}
