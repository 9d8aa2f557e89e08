// Package tips decides when to show a contextual energy tip inside a page.
package tips

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/grovetools/tabwatt/pkg/power"
)

// Thresholds and cooldowns of the rule set.
const (
	UrgentWatts       = 45.0
	UrgentSustain     = 30 * time.Second
	UrgentCooldown    = 5 * time.Minute
	WarningHighWatts  = 40.0
	WarningHighAfter  = 60 * time.Second
	WarningLowWatts   = 35.0
	WarningLowAfter   = 150 * time.Second
	WarningCooldown   = 10 * time.Minute
	EfficientWatts    = 20.0
	EfficientSustain  = 300 * time.Second
	AchievementChance = 0.1
	AchievementCool   = time.Hour

	// Canvas plus animated elements above which reducing animations is suggested.
	HeavyAnimationElements = 10
)

// gateProbability is the chance a tip evaluation proceeds, per frequency tier.
var gateProbability = map[models.Frequency]float64{
	models.FrequencyMinimal:    0.3,
	models.FrequencyNormal:     0.6,
	models.FrequencyAggressive: 1.0,
}

// Input is what the evaluator knows about a tab at one point in time.
type Input struct {
	TabID    int
	URL      string
	Watts    float64
	Duration time.Duration
	Metrics  *models.Metrics
	Category power.Category
}

// Evaluator is a decision function over Input and NotificationSettings that
// also remembers, per tab and per category, when a tip last fired.
type Evaluator struct {
	mu              sync.Mutex
	lastFired       map[int]map[string]time.Time
	lastAchievement time.Time
	rand            func() float64
	now             func() time.Time
}

// New returns an Evaluator with a time-seeded random source.
func New() *Evaluator {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Evaluator{
		lastFired: make(map[int]map[string]time.Time),
		rand:      r.Float64,
		now:       time.Now,
	}
}

// WithRand replaces the random source. fn must return values in [0, 1).
func (e *Evaluator) WithRand(fn func() float64) *Evaluator {
	e.rand = fn
	return e
}

// WithClock replaces the time source.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Evaluate returns the tip to show for in, or nil. A returned tip is recorded
// as fired for its category.
func (e *Evaluator) Evaluate(in Input, settings models.NotificationSettings) *models.Tip {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if !settings.Enabled || settings.QuietHours.Active(now) {
		return nil
	}
	p, ok := gateProbability[settings.Frequency]
	if !ok {
		p = gateProbability[models.FrequencyNormal]
	}
	if e.rand() >= p {
		return nil
	}

	var tip *models.Tip
	switch {
	case in.Watts >= UrgentWatts:
		if settings.Categories.HighPower && in.Duration >= UrgentSustain {
			tip = urgentTip(in)
		}
	case in.Watts >= WarningLowWatts:
		sustained := (in.Watts >= WarningHighWatts && in.Duration >= WarningHighAfter) || in.Duration >= WarningLowAfter
		if settings.Categories.Optimization && sustained {
			tip = warningTip(in)
		}
	case in.Watts < EfficientWatts:
		if settings.Categories.Achievements && in.Duration >= EfficientSustain {
			tip = e.achievementTip(in, now)
		}
	}
	if tip == nil || e.coolingDown(in.TabID, tip.Type, tip.Cooldown, now) {
		return nil
	}

	tip.ID = uuid.NewString()
	tip.TabID = in.TabID
	tip.Watts = in.Watts
	tip.Domain = models.Domain(in.URL)
	tip.CreatedAt = now
	e.record(in.TabID, tip.Type, now)
	if tip.Severity == models.SeverityPositive {
		e.lastAchievement = now
	}
	return tip
}

// Forget drops the cooldown state of a closed tab.
func (e *Evaluator) Forget(tabID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.lastFired, tabID)
}

func (e *Evaluator) coolingDown(tabID int, category string, cooldown time.Duration, now time.Time) bool {
	last, ok := e.lastFired[tabID][category]
	return ok && now.Sub(last) < cooldown
}

func (e *Evaluator) record(tabID int, category string, now time.Time) {
	byCat, ok := e.lastFired[tabID]
	if !ok {
		byCat = make(map[string]time.Time)
		e.lastFired[tabID] = byCat
	}
	byCat[category] = now
}

func urgentTip(in Input) *models.Tip {
	var m models.Metrics
	if in.Metrics != nil {
		m = *in.Metrics
	}
	switch {
	case m.ActiveVideos > 0 || in.Category == power.CategoryVideo:
		return &models.Tip{
			Type:                  models.TipHighPowerVideo,
			Severity:              models.SeverityUrgent,
			Title:                 "Video is using a lot of power",
			Message:               fmt.Sprintf("This tab draws about %.0fW. Pausing playback when you are not watching saves energy.", in.Watts),
			Action:                models.ActionPauseMedia,
			EstimatedSavingsWatts: savings(in.Watts, 0.6),
			Cooldown:              UrgentCooldown,
		}
	case in.Category == power.CategoryGaming || m.CanvasElements >= 3:
		return &models.Tip{
			Type:                  models.TipHighPowerGaming,
			Severity:              models.SeverityUrgent,
			Title:                 "Game or graphics workload detected",
			Message:               fmt.Sprintf("This tab draws about %.0fW. Close it when you are done playing.", in.Watts),
			Action:                models.ActionCloseTab,
			EstimatedSavingsWatts: savings(in.Watts, 1),
			Cooldown:              UrgentCooldown,
		}
	}
	return &models.Tip{
		Type:                  models.TipHighPowerGeneric,
		Severity:              models.SeverityUrgent,
		Title:                 "High power usage",
		Message:               fmt.Sprintf("This tab draws about %.0fW. Refreshing the page can release stuck scripts.", in.Watts),
		Action:                models.ActionRefreshPage,
		EstimatedSavingsWatts: savings(in.Watts, 0.3),
		Cooldown:              UrgentCooldown,
	}
}

func warningTip(in Input) *models.Tip {
	if in.Category == power.CategorySocial {
		return &models.Tip{
			Type:                  models.TipSocialMedia,
			Severity:              models.SeverityWarning,
			Title:                 "Autoplaying media",
			Message:               "Social feeds keep videos playing in the background. Pause them to save energy.",
			Action:                models.ActionPauseMedia,
			EstimatedSavingsWatts: savings(in.Watts, 0.25),
			Cooldown:              WarningCooldown,
		}
	}
	if in.Metrics != nil && in.Metrics.AnimatedElements+in.Metrics.CanvasElements >= HeavyAnimationElements {
		return &models.Tip{
			Type:                  models.TipHeavyAnimations,
			Severity:              models.SeverityWarning,
			Title:                 "Heavy animations",
			Message:               fmt.Sprintf("%d animated elements are keeping the CPU busy.", in.Metrics.AnimatedElements+in.Metrics.CanvasElements),
			Action:                models.ActionReduceAnimations,
			EstimatedSavingsWatts: savings(in.Watts, 0.2),
			Cooldown:              WarningCooldown,
		}
	}
	return nil
}

func (e *Evaluator) achievementTip(in Input, now time.Time) *models.Tip {
	if !e.lastAchievement.IsZero() && now.Sub(e.lastAchievement) < AchievementCool {
		return nil
	}
	if e.rand() >= AchievementChance {
		return nil
	}
	return &models.Tip{
		Type:     models.TipEfficientBrowser,
		Severity: models.SeverityPositive,
		Title:    "Efficient browsing",
		Message:  fmt.Sprintf("This tab has stayed under %.0fW for %d minutes.", EfficientWatts, int(in.Duration.Minutes())),
		Action:   models.ActionShowHistory,
		Cooldown: AchievementCool,
	}
}

func savings(watts, fraction float64) float64 {
	return math.Round(watts*fraction*10) / 10
}
