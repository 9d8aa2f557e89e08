package storage

import (
	"sort"
	"time"

	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/samber/lo"
)

// AppendHistory appends entries to the history log in one read-merge-write,
// evicting the oldest entries beyond maxEntries. maxEntries <= 0 means no bound.
func (s *Storage) AppendHistory(maxEntries int, entries ...models.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return updateJSON(s, KeyHistory, func(cur []models.HistoryEntry, _ bool) ([]models.HistoryEntry, error) {
		cur = append(cur, entries...)
		if maxEntries > 0 && len(cur) > maxEntries {
			sortByTime(cur)
			cur = cur[len(cur)-maxEntries:]
		}
		return cur, nil
	})
}

// History returns the full history log.
func (s *Storage) History() ([]models.HistoryEntry, error) {
	var out []models.HistoryEntry
	_, err := s.getJSON(KeyHistory, &out)
	return out, err
}

// HistorySince returns entries at or after since, oldest first.
func (s *Storage) HistorySince(since time.Time) ([]models.HistoryEntry, error) {
	all, err := s.History()
	if err != nil {
		return nil, err
	}
	out := lo.Filter(all, func(e models.HistoryEntry, _ int) bool {
		return !e.Timestamp.Before(since)
	})
	sortByTime(out)
	return out, nil
}

// HistoryRange returns the entries inside one of the named time ranges.
func (s *Storage) HistoryRange(r models.TimeRange) ([]models.HistoryEntry, error) {
	d, ok := r.Duration()
	if !ok {
		return nil, tabwatterrors.InvalidTimeRange(string(r))
	}
	return s.HistorySince(s.now().Add(-d))
}

// ModifyHistory rewrites the history log in one read-merge-write. Returning
// kv.ErrNoChange from fn leaves it untouched.
func (s *Storage) ModifyHistory(fn func([]models.HistoryEntry) ([]models.HistoryEntry, error)) error {
	return updateJSON(s, KeyHistory, func(cur []models.HistoryEntry, _ bool) ([]models.HistoryEntry, error) {
		return fn(cur)
	})
}

// CleanupHistory deletes every entry older than retention and reports how
// many were removed. Entries exactly at the boundary are kept.
func (s *Storage) CleanupHistory(retention time.Duration) (int, error) {
	cutoff := s.now().Add(-retention)
	removed := 0
	err := updateJSON(s, KeyHistory, func(cur []models.HistoryEntry, _ bool) ([]models.HistoryEntry, error) {
		kept := lo.Reject(cur, func(e models.HistoryEntry, _ int) bool {
			return e.Timestamp.Before(cutoff)
		})
		removed = len(cur) - len(kept)
		return kept, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// DomainStats aggregates the history of domain since the given time. It
// returns nil when the domain has no entries with a power figure.
func (s *Storage) DomainStats(domain string, since time.Time) (*models.DomainStats, error) {
	entries, err := s.HistorySince(since)
	if err != nil {
		return nil, err
	}
	matching := lo.Filter(entries, func(e models.HistoryEntry, _ int) bool {
		return e.HasPower() && entryDomain(e) == domain
	})
	if len(matching) == 0 {
		return nil, nil
	}

	stats := &models.DomainStats{
		Domain:        domain,
		Visits:        len(matching),
		AverageWatts:  lo.SumBy(matching, func(e models.HistoryEntry) float64 { return e.Watts() }) / float64(len(matching)),
		TotalKWh:      lo.SumBy(matching, func(e models.HistoryEntry) float64 { return e.EnergyKWh }),
		TotalDuration: lo.SumBy(matching, func(e models.HistoryEntry) int64 { return e.DurationMs }),
		LastVisit:     matching[len(matching)-1].Timestamp,
	}
	return stats, nil
}

// TopDomains aggregates every domain since the given time, highest total
// energy first.
func (s *Storage) TopDomains(since time.Time, limit int) ([]models.DomainStats, error) {
	entries, err := s.HistorySince(since)
	if err != nil {
		return nil, err
	}
	groups := lo.GroupBy(lo.Filter(entries, func(e models.HistoryEntry, _ int) bool {
		return e.HasPower() && entryDomain(e) != ""
	}), entryDomain)

	out := make([]models.DomainStats, 0, len(groups))
	for domain, group := range groups {
		out = append(out, models.DomainStats{
			Domain:        domain,
			Visits:        len(group),
			AverageWatts:  lo.SumBy(group, func(e models.HistoryEntry) float64 { return e.Watts() }) / float64(len(group)),
			TotalKWh:      lo.SumBy(group, func(e models.HistoryEntry) float64 { return e.EnergyKWh }),
			TotalDuration: lo.SumBy(group, func(e models.HistoryEntry) int64 { return e.DurationMs }),
			LastVisit:     group[len(group)-1].Timestamp,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalKWh != out[j].TotalKWh {
			return out[i].TotalKWh > out[j].TotalKWh
		}
		return out[i].Domain < out[j].Domain
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func entryDomain(e models.HistoryEntry) string {
	if e.Domain != "" {
		return e.Domain
	}
	return models.Domain(e.URL)
}

func sortByTime(entries []models.HistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}
