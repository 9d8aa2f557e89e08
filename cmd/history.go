package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/grovetools/tabwatt/cli"
	"github.com/grovetools/tabwatt/pkg/daemon"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208")).Padding(0, 1)

func newTable(headers ...string) *table.Table {
	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cell
		})
}

// NewHistoryCmd lists recorded history.
func NewHistoryCmd() *cobra.Command {
	var (
		timeRange string
		domain    string
		limit     int
		top       bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded tab history",
		Long: `Lists history entries for a time range, the per-domain statistics of one
domain, or the domains that used the most energy.

Examples:
  tabwatt history --range 7d
  tabwatt history --domain youtube.com
  tabwatt history --top --range 30d`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := models.TimeRange(timeRange)
			if _, ok := r.Duration(); !ok {
				return fmt.Errorf("invalid range %q: use 1h, 24h, 7d, or 30d", timeRange)
			}
			jsonOut := cli.GetOptions(cmd).JSONOutput
			out := cmd.OutOrStdout()

			return withClient(cmd, func(ctx context.Context, c daemon.Client) error {
				if domain != "" {
					stats, err := daemon.Call[models.DomainStats](ctx, c, protocol.GetDomainStats{Domain: domain, TimeRange: r})
					if err != nil {
						return err
					}
					if jsonOut {
						return writeJSON(out, stats)
					}
					renderDomainStats(out, []models.DomainStats{stats}, time.Now())
					return nil
				}

				entries, err := daemon.Call[[]models.HistoryEntry](ctx, c, protocol.GetHistory{TimeRange: r})
				if err != nil {
					return err
				}
				if top {
					stats := aggregateDomains(entries)
					if limit > 0 && len(stats) > limit {
						stats = stats[:limit]
					}
					if jsonOut {
						return writeJSON(out, stats)
					}
					renderDomainStats(out, stats, time.Now())
					return nil
				}

				entries = newestFirst(entries)
				if limit > 0 && len(entries) > limit {
					entries = entries[:limit]
				}
				if jsonOut {
					return writeJSON(out, entries)
				}
				renderHistory(out, entries, time.Now())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&timeRange, "range", "r", string(models.RangeDay), "Time range: 1h, 24h, 7d, or 30d")
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "Show statistics for one domain")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to show (0 for all)")
	cmd.Flags().BoolVar(&top, "top", false, "Rank domains by energy")
	return cmd
}

func newestFirst(entries []models.HistoryEntry) []models.HistoryEntry {
	sorted := append([]models.HistoryEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.After(sorted[j].Timestamp) })
	return sorted
}

// aggregateDomains folds entries into per-domain statistics ordered by energy.
func aggregateDomains(entries []models.HistoryEntry) []models.DomainStats {
	groups := lo.GroupBy(entries, func(e models.HistoryEntry) string {
		if e.Domain != "" {
			return e.Domain
		}
		return models.Domain(e.URL)
	})

	stats := make([]models.DomainStats, 0, len(groups))
	for domain, group := range groups {
		if domain == "" {
			continue
		}
		powered := lo.Filter(group, func(e models.HistoryEntry, _ int) bool { return e.HasPower() })
		s := models.DomainStats{
			Domain:        domain,
			Visits:        len(group),
			TotalKWh:      lo.SumBy(group, func(e models.HistoryEntry) float64 { return e.EnergyKWh }),
			TotalDuration: lo.SumBy(group, func(e models.HistoryEntry) int64 { return e.DurationMs }),
			LastVisit:     lo.MaxBy(group, func(a, b models.HistoryEntry) bool { return a.Timestamp.After(b.Timestamp) }).Timestamp,
		}
		if len(powered) > 0 {
			s.AverageWatts = lo.SumBy(powered, func(e models.HistoryEntry) float64 { return e.Watts() }) / float64(len(powered))
		}
		stats = append(stats, s)
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].TotalKWh != stats[j].TotalKWh {
			return stats[i].TotalKWh > stats[j].TotalKWh
		}
		return stats[i].Domain < stats[j].Domain
	})
	return stats
}

func formatWatts(e models.HistoryEntry) string {
	if !e.HasPower() {
		return "-"
	}
	return fmt.Sprintf("%.1f W", e.Watts())
}

func formatKWh(kwh float64) string {
	return humanize.FormatFloat("#,###.#####", kwh) + " kWh"
}

func renderHistory(w io.Writer, entries []models.HistoryEntry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history in this range")
		return
	}
	t := newTable("WHEN", "DOMAIN", "TITLE", "POWER", "DURATION", "ENERGY")
	for _, e := range entries {
		domain := e.Domain
		if domain == "" {
			domain = models.Domain(e.URL)
		}
		t.Row(
			humanize.RelTime(e.Timestamp, now, "ago", "from now"),
			domain,
			truncate(e.Title, 32),
			formatWatts(e),
			e.Duration().Round(time.Second).String(),
			formatKWh(e.EnergyKWh),
		)
	}
	fmt.Fprintln(w, t.Render())

	total := lo.SumBy(entries, func(e models.HistoryEntry) float64 { return e.EnergyKWh })
	fmt.Fprintf(w, "%s entries, %s total\n", humanize.Comma(int64(len(entries))), formatKWh(total))
}

func renderDomainStats(w io.Writer, stats []models.DomainStats, now time.Time) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No history in this range")
		return
	}
	t := newTable("DOMAIN", "VISITS", "AVG POWER", "TIME", "ENERGY", "LAST VISIT")
	for _, s := range stats {
		last := "-"
		if !s.LastVisit.IsZero() {
			last = humanize.RelTime(s.LastVisit, now, "ago", "from now")
		}
		t.Row(
			s.Domain,
			humanize.Comma(int64(s.Visits)),
			fmt.Sprintf("%.1f W", s.AverageWatts),
			(time.Duration(s.TotalDuration) * time.Millisecond).Round(time.Second).String(),
			formatKWh(s.TotalKWh),
			last,
		)
	}
	fmt.Fprintln(w, t.Render())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
