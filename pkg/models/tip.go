package models

import "time"

// TipSeverity ranks a contextual tip.
type TipSeverity string

const (
	SeverityUrgent   TipSeverity = "urgent"
	SeverityWarning  TipSeverity = "warning"
	SeverityPositive TipSeverity = "positive"
)

// TipAction is the single action a tip suggests.
type TipAction string

const (
	ActionPauseMedia       TipAction = "pause_media"
	ActionReduceAnimations TipAction = "reduce_animations"
	ActionRefreshPage      TipAction = "refresh_page"
	ActionCloseTab         TipAction = "close_tab"
	ActionOpenSettings     TipAction = "open_settings"
	ActionShowHistory      TipAction = "show_history"
	ActionOptimizeTab      TipAction = "optimize_tab"
)

// Valid reports whether a is one of the known actions.
func (a TipAction) Valid() bool {
	switch a {
	case ActionPauseMedia, ActionReduceAnimations, ActionRefreshPage, ActionCloseTab,
		ActionOpenSettings, ActionShowHistory, ActionOptimizeTab:
		return true
	}
	return false
}

// Tip categories.
const (
	TipHighPowerVideo   = "high_power_video"
	TipHighPowerGaming  = "high_power_gaming"
	TipHighPowerGeneric = "high_power_generic"
	TipSocialMedia      = "social_media_usage"
	TipHeavyAnimations  = "heavy_animations"
	TipEfficientBrowser = "efficient_browsing"
)

// Tip is a contextual energy tip shown inside a page.
type Tip struct {
	ID                    string        `json:"id"`
	TabID                 int           `json:"tabId"`
	Type                  string        `json:"type"`
	Severity              TipSeverity   `json:"severity"`
	Title                 string        `json:"title"`
	Message               string        `json:"message"`
	Action                TipAction     `json:"action"`
	EstimatedSavingsWatts float64       `json:"estimatedSavingsWatts"`
	Cooldown              time.Duration `json:"cooldown"`
	Watts                 float64       `json:"watts"`
	Domain                string        `json:"domain,omitempty"`
	CreatedAt             time.Time     `json:"createdAt"`
}
