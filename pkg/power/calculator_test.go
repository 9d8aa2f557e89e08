package power

import (
	"testing"
	"time"

	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBaselineBand(t *testing.T) {
	calc := NewDefaultCalculator()
	urls := []string{
		"",
		"https://example.com/article",
		"https://www.youtube.com/",
		"https://poki.com/en/g/some-game",
		"https://www.reddit.com/r/golang",
	}

	for _, u := range urls {
		for dom := 0; dom <= 2000; dom += 250 {
			res := calc.Calculate(models.Metrics{DOMNodes: dom, URL: u})
			assert.GreaterOrEqual(t, res.TotalWatts, 8.0, "url=%q dom=%d", u, dom)
			assert.LessOrEqual(t, res.TotalWatts, 13.0, "url=%q dom=%d", u, dom)
		}
	}
}

func TestCalculateMonotonicInDOM(t *testing.T) {
	calc := NewDefaultCalculator()
	prev := 0.0
	for dom := 2000; dom <= 40000; dom += 500 {
		res := calc.Calculate(models.Metrics{DOMNodes: dom, URL: "https://example.com"})
		assert.GreaterOrEqual(t, res.TotalWatts, prev, "dom=%d", dom)
		prev = res.TotalWatts
	}
	// DOM term is capped.
	capped := calc.Calculate(models.Metrics{DOMNodes: 1000000})
	assert.Equal(t, 8.0+12.0, capped.TotalWatts)
}

func TestCalculateStreamingScenario(t *testing.T) {
	calc := NewDefaultCalculator()
	res := calc.Calculate(models.Metrics{
		DOMNodes:      3000,
		VideoElements: 1,
		ActiveVideos:  1,
		URL:           "https://www.youtube.com/watch?v=abc",
	})

	assert.GreaterOrEqual(t, res.TotalWatts, 45.0)
	assert.InDelta(t, 48.3, res.TotalWatts, 0.01)
	assert.Equal(t, string(CategoryVideo), res.Breakdown.Category)
	assert.Equal(t, 1.4, res.Breakdown.Multiplier)
	assert.Equal(t, MethodDOMAndCPU, res.Methodology)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
}

func TestCalculateClampsAndDegrades(t *testing.T) {
	calc := NewDefaultCalculator()

	heavy := calc.Calculate(models.Metrics{DOMNodes: 50000, ActiveVideos: 4, URL: "https://poki.com"})
	assert.Equal(t, 65.0, heavy.TotalWatts)

	invalid := calc.Calculate(models.Metrics{DOMNodes: -10, CanvasElements: -3, ActiveVideos: -1})
	assert.Equal(t, 8.0, invalid.TotalWatts)
	assert.Equal(t, MethodBaseline, invalid.Methodology)

	urlOnly := calc.EstimateURL("https://www.netflix.com/browse")
	assert.InDelta(t, 11.2, urlOnly.TotalWatts, 0.001)
	assert.Equal(t, MethodURL, urlOnly.Methodology)
	assert.Equal(t, 0.3, urlOnly.Confidence)
}

func TestCalculateConfidenceGrowsWithSignals(t *testing.T) {
	calc := NewDefaultCalculator()
	domOnly := calc.Calculate(models.Metrics{DOMNodes: 1500})
	domCPU := calc.Calculate(models.Metrics{DOMNodes: 1500, CanvasElements: 2})
	assert.Less(t, domOnly.Confidence, domCPU.Confidence)
}

func TestCustomConstants(t *testing.T) {
	consts := Constants{
		BaselineWatts: 10,
		Multipliers:   map[Category]float64{CategoryVideo: 2},
	}
	calc := NewCalculator(consts, nil)

	assert.Equal(t, 20.0, calc.EstimateURL("https://vimeo.com/1").TotalWatts)
	// unspecified constants fall back to defaults
	assert.Equal(t, 1.6, calc.Constants().Multipliers[CategoryGaming])
	assert.Equal(t, 65.0, calc.Constants().MaxWatts)
}

func TestEstimateEnergyConsumption(t *testing.T) {
	calc := NewDefaultCalculator()

	e := calc.EstimateEnergyConsumption(50, 2*time.Hour)
	assert.InDelta(t, 0.1, e.KWh, 1e-9)
	assert.InDelta(t, 0.012, e.Cost, 1e-9)
	assert.InDelta(t, 40, e.CO2Grams, 1e-9)

	assert.Equal(t, models.EnergyEstimate{}, calc.EstimateEnergyConsumption(50, 0))
	assert.Equal(t, models.EnergyEstimate{}, calc.EstimateEnergyConsumption(-1, time.Hour))
}

func TestClassifier(t *testing.T) {
	c, err := NewClassifier(map[Category][]string{
		CategoryGaming: {"example.org/games"},
	})
	require.NoError(t, err)

	tests := []struct {
		url  string
		want Category
	}{
		{"https://www.youtube.com/watch?v=1", CategoryVideo},
		{"https://m.youtube.com/", CategoryVideo},
		{"https://music.youtube.com/", CategoryMedia},
		{"https://open.spotify.com/track/1", CategoryMedia},
		{"https://www.reddit.com/r/golang", CategorySocial},
		{"https://example.org/games/tetris", CategoryGaming},
		{"https://example.org/news", CategoryGeneral},
		{"https://notyoutube.com/", CategoryGeneral},
		{"not a url", CategoryGeneral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.url), tt.url)
	}
}
