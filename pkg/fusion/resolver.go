package fusion

import (
	"context"
	"fmt"
	"time"

	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/pkg/daemon"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/grovetools/tabwatt/pkg/power"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/grovetools/tabwatt/pkg/retry"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Defaults of the history lookups.
const (
	DefaultRecentWindow = 30 * time.Minute
	DefaultStatsRange   = models.RangeMonth
)

// Resolver resolves the display value of a tab through the daemon client.
type Resolver struct {
	client       daemon.Client
	calc         *power.Calculator
	policy       retry.Policy
	recentWindow time.Duration
	statsRange   models.TimeRange
	now          func() time.Time
	logger       *logrus.Entry
}

// New creates a Resolver. A nil calc uses the default constants.
func New(client daemon.Client, calc *power.Calculator, logger *logrus.Entry) *Resolver {
	if calc == nil {
		calc = power.NewDefaultCalculator()
	}
	return &Resolver{
		client:       client,
		calc:         calc,
		policy:       retry.Default(),
		recentWindow: DefaultRecentWindow,
		statsRange:   DefaultStatsRange,
		now:          time.Now,
		logger:       logger,
	}
}

// WithPolicy replaces the per-step retry policy.
func (r *Resolver) WithPolicy(p retry.Policy) *Resolver {
	r.policy = p
	return r
}

// WithClock replaces the time source.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Strategies returns the cascade in order. The daemon-backed steps retry
// empty answers; the local estimates never fail once their input is known,
// and the baseline always answers.
func (r *Resolver) Strategies() []Strategy {
	return []Strategy{
		StrategyFunc{Label: "live", Fn: r.live, RetryEmpty: true},
		StrategyFunc{Label: "recent_history", Fn: r.recentHistory, RetryEmpty: true},
		StrategyFunc{Label: "forced_collection", Fn: r.forced, RetryEmpty: true},
		StrategyFunc{Label: "domain_stats", Fn: r.domainStats, RetryEmpty: true},
		StrategyFunc{Label: "dom_estimate", Fn: r.domEstimate},
		StrategyFunc{Label: "url_estimate", Fn: r.urlEstimate},
		StrategyFunc{Label: "baseline", Fn: r.baseline},
	}
}

// ResolveCurrentTabPower resolves the active tab as reported by the daemon.
func (r *Resolver) ResolveCurrentTabPower(ctx context.Context) *DisplayData {
	policy := r.policy
	policy.Retryable = Retryable
	tab, err := retry.Value(ctx, policy, func(ctx context.Context) (models.TabInfo, error) {
		return daemon.Call[models.TabInfo](ctx, r.client, protocol.GetActiveTab{})
	})
	if err != nil {
		r.logger.WithError(err).Debug("Active tab unknown")
	}
	return r.Resolve(ctx, Target{TabID: tab.ID, URL: tab.URL, Title: tab.Title})
}

// Resolve runs the cascade for t. It always returns a value; when no source
// has data the result is an estimate, or the baseline marked unavailable.
func (r *Resolver) Resolve(ctx context.Context, t Target) *DisplayData {
	d := FirstSuccess(ctx, r.policy, r.Strategies(), t, r.logger)
	if d == nil {
		// Only reachable when ctx ended mid-cascade.
		d, _ = r.baseline(ctx, t)
	}
	return r.finish(d, t)
}

func (r *Resolver) finish(d *DisplayData, t Target) *DisplayData {
	if d.TabID == 0 {
		d.TabID = t.TabID
	}
	if d.URL == "" {
		d.URL = t.URL
	}
	if d.Title == "" {
		d.Title = t.Title
	}
	if d.Domain == "" && d.URL != "" {
		d.Domain = models.Domain(d.URL)
	}
	if d.Category == "" && d.URL != "" {
		d.Category = string(r.calc.Classify(d.URL))
	}
	d.Comparisons = Compare(d.Watts, r.calc.Constants().GramsCO2PerKWh)
	d.ResolvedAt = r.now()
	return d
}

func (r *Resolver) live(ctx context.Context, t Target) (*DisplayData, error) {
	if t.TabID == 0 {
		return nil, ErrNotApplicable
	}
	snap, err := daemon.Call[models.EnergySnapshot](ctx, r.client, protocol.GetCurrentEnergy{})
	if err != nil {
		return nil, err
	}
	sess, ok := snap.Find(t.TabID)
	if !ok || sess.PowerWatts <= 0 {
		return nil, ErrNoData
	}
	return fromSession(sess, SourceLive), nil
}

func (r *Resolver) forced(ctx context.Context, t Target) (*DisplayData, error) {
	if t.TabID == 0 {
		return nil, ErrNotApplicable
	}
	sess, err := daemon.Call[models.TabSession](ctx, r.client, protocol.ForceMetricsCollection{TabID: t.TabID})
	if tabwatterrors.Is(err, tabwatterrors.ErrCodeTabNotTracked) && models.IsTrackableURL(t.URL) {
		// Start tracking so the next attempt has a session to collect into.
		info := &models.TabInfo{ID: t.TabID, URL: t.URL, Title: t.Title, Active: true, Status: "complete"}
		res, terr := daemon.Call[protocol.TrackingResult](ctx, r.client, protocol.EnsureTabTracking{TabID: t.TabID, TabInfo: info})
		if terr != nil {
			return nil, terr
		}
		if !res.Tracking {
			return nil, fmt.Errorf("%w: %s", ErrNotApplicable, res.Reason)
		}
		sess, err = daemon.Call[models.TabSession](ctx, r.client, protocol.ForceMetricsCollection{TabID: t.TabID})
	}
	if err != nil {
		if tabwatterrors.Is(err, tabwatterrors.ErrCodeTabNotTracked) {
			return nil, ErrNoData
		}
		return nil, err
	}
	if sess.PowerWatts <= 0 {
		return nil, ErrNoData
	}
	return fromSession(&sess, SourceForced), nil
}

func fromSession(sess *models.TabSession, src Source) *DisplayData {
	d := &DisplayData{
		TabID:  sess.TabID,
		URL:    sess.URL,
		Title:  sess.Title,
		Watts:  sess.PowerWatts,
		Status: StatusLive,
		Source: src,
	}
	if sess.PowerData != nil {
		d.Confidence = sess.PowerData.Confidence
		d.Category = sess.PowerData.Breakdown.Category
	}
	return d
}

// recentHistory looks for the newest entry in the recent window with the
// same URL, then with the same domain.
func (r *Resolver) recentHistory(ctx context.Context, t Target) (*DisplayData, error) {
	if t.URL == "" {
		return nil, ErrNotApplicable
	}
	entries, err := daemon.Call[[]models.HistoryEntry](ctx, r.client, protocol.GetHistory{TimeRange: models.RangeHour})
	if err != nil {
		return nil, err
	}
	cutoff := r.now().Add(-r.recentWindow)
	recent := lo.Filter(entries, func(e models.HistoryEntry, _ int) bool {
		return e.HasPower() && e.Watts() > 0 && !e.Timestamp.Before(cutoff)
	})

	domain := models.Domain(t.URL)
	matchers := []struct {
		src   Source
		match func(e models.HistoryEntry) bool
	}{
		{SourceRecentURL, func(e models.HistoryEntry) bool { return e.URL == t.URL }},
		{SourceRecentDomain, func(e models.HistoryEntry) bool { return domain != "" && entryDomain(e) == domain }},
	}
	for _, m := range matchers {
		hits := lo.Filter(recent, func(e models.HistoryEntry, _ int) bool { return m.match(e) })
		if len(hits) == 0 {
			continue
		}
		newest := lo.MaxBy(hits, func(a, b models.HistoryEntry) bool { return a.Timestamp.After(b.Timestamp) })
		return &DisplayData{
			Watts:      newest.Watts(),
			Status:     StatusRecent,
			Source:     m.src,
			Confidence: 0.6,
			Note:       fmt.Sprintf("measured %s ago", r.now().Sub(newest.Timestamp).Round(time.Minute)),
		}, nil
	}
	return nil, ErrNoData
}

func entryDomain(e models.HistoryEntry) string {
	if e.Domain != "" {
		return e.Domain
	}
	return models.Domain(e.URL)
}

func (r *Resolver) domainStats(ctx context.Context, t Target) (*DisplayData, error) {
	domain := models.Domain(t.URL)
	if domain == "" {
		return nil, ErrNotApplicable
	}
	stats, err := daemon.Call[*models.DomainStats](ctx, r.client, protocol.GetDomainStats{Domain: domain, TimeRange: r.statsRange})
	if err != nil {
		if tabwatterrors.Is(err, tabwatterrors.ErrCodeNotFound) {
			return nil, ErrNoData
		}
		return nil, err
	}
	if stats == nil || stats.Visits == 0 || stats.AverageWatts <= 0 {
		return nil, ErrNoData
	}
	return &DisplayData{
		Watts:      stats.AverageWatts,
		Status:     StatusEstimated,
		Source:     SourceDomainStats,
		Confidence: 0.4,
		Note:       fmt.Sprintf("average of %d visits to %s", stats.Visits, domain),
	}, nil
}

func (r *Resolver) domEstimate(_ context.Context, t Target) (*DisplayData, error) {
	if t.DOMNodes <= 0 {
		return nil, ErrNotApplicable
	}
	res := r.calc.Calculate(models.Metrics{DOMNodes: t.DOMNodes, URL: t.URL})
	return &DisplayData{
		Watts:      res.TotalWatts,
		Status:     StatusEstimated,
		Source:     SourceDOMEstimate,
		Confidence: res.Confidence,
		Category:   res.Breakdown.Category,
		Note:       "estimated from page size",
	}, nil
}

func (r *Resolver) urlEstimate(_ context.Context, t Target) (*DisplayData, error) {
	if t.URL == "" {
		return nil, ErrNotApplicable
	}
	res := r.calc.EstimateURL(t.URL)
	return &DisplayData{
		Watts:      res.TotalWatts,
		Status:     StatusEstimated,
		Source:     SourceURLEstimate,
		Confidence: res.Confidence,
		Category:   res.Breakdown.Category,
		Note:       "estimated from site category",
	}, nil
}

// baseline is the last step and always answers, marked unavailable.
func (r *Resolver) baseline(context.Context, Target) (*DisplayData, error) {
	return &DisplayData{
		Watts:  r.calc.Constants().BaselineWatts,
		Status: StatusUnavailable,
		Source: SourceBaseline,
		Note:   "no measurement available",
	}, nil
}
