package storage

import (
	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/samber/lo"
)

// AppendBackendEnergy appends one externally logged entry.
func (s *Storage) AppendBackendEnergy(maxEntries int, entry models.BackendEnergyEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	return updateJSON(s, KeyBackendHistory, func(cur []models.BackendEnergyEntry, _ bool) ([]models.BackendEnergyEntry, error) {
		cur = append(cur, entry)
		if maxEntries > 0 && len(cur) > maxEntries {
			cur = cur[len(cur)-maxEntries:]
		}
		return cur, nil
	})
}

// BackendSummary aggregates the backend-energy history over r.
func (s *Storage) BackendSummary(r models.TimeRange) (*models.BackendEnergySummary, error) {
	d, ok := r.Duration()
	if !ok {
		return nil, tabwatterrors.InvalidTimeRange(string(r))
	}
	var all []models.BackendEnergyEntry
	if _, err := s.getJSON(KeyBackendHistory, &all); err != nil {
		return nil, err
	}

	since := s.now().Add(-d)
	entries := lo.Filter(all, func(e models.BackendEnergyEntry, _ int) bool {
		return !e.Timestamp.Before(since)
	})

	summary := &models.BackendEnergySummary{
		TimeRange: r,
		Entries:   len(entries),
		TotalKWh:  lo.SumBy(entries, func(e models.BackendEnergyEntry) float64 { return e.EnergyKWh }),
		TotalCO2:  lo.SumBy(entries, func(e models.BackendEnergyEntry) float64 { return e.CO2Grams }),
		BySource:  map[string]float64{},
	}
	if len(entries) > 0 {
		summary.AverageWatts = lo.SumBy(entries, func(e models.BackendEnergyEntry) float64 { return e.PowerWatts }) / float64(len(entries))
	}
	for source, group := range lo.GroupBy(entries, func(e models.BackendEnergyEntry) string { return e.Source }) {
		summary.BySource[source] = lo.SumBy(group, func(e models.BackendEnergyEntry) float64 { return e.EnergyKWh })
	}
	return summary, nil
}
