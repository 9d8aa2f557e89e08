package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/grovetools/tabwatt/cli"
	"github.com/grovetools/tabwatt/logging"
	"github.com/grovetools/tabwatt/pkg/daemon"
	"github.com/grovetools/tabwatt/pkg/fusion"
	"github.com/spf13/cobra"
)

// NewPopupCmd prints the figure the browser popup would show.
func NewPopupCmd() *cobra.Command {
	var (
		url      string
		tabID    int
		domNodes int
	)
	cmd := &cobra.Command{
		Use:   "popup",
		Short: "Show the power of the active tab, or of a given URL",
		Long: `Resolves the displayed power figure. A live reading is preferred; otherwise
recent history, a forced collection, domain statistics and finally a
heuristic estimate are tried in that order.

Examples:
  tabwatt popup
  tabwatt popup --url https://www.youtube.com/watch?v=x
  tabwatt popup --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			calc, err := cfg.Calculator()
			if err != nil {
				return err
			}
			logger := cli.GetLogger(cmd)

			return withClient(cmd, func(ctx context.Context, c daemon.Client) error {
				r := fusion.New(c, calc, logger)
				var d *fusion.DisplayData
				if url == "" && tabID == 0 {
					d = r.ResolveCurrentTabPower(ctx)
				} else {
					d = r.Resolve(ctx, fusion.Target{TabID: tabID, URL: url, DOMNodes: domNodes})
				}
				if cli.GetOptions(cmd).JSONOutput {
					return writeJSON(cmd.OutOrStdout(), d)
				}
				renderDisplay(cmd.OutOrStdout(), d)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Resolve this URL instead of the active tab")
	cmd.Flags().IntVar(&tabID, "tab", 0, "Resolve this tab id")
	cmd.Flags().IntVar(&domNodes, "dom-nodes", 0, "Known DOM node count for the estimate")
	return cmd
}

func renderDisplay(w io.Writer, d *fusion.DisplayData) {
	p := logging.NewPrettyLogger().WithWriter(w)

	if d.Status == fusion.StatusUnavailable {
		p.Warn("No power data available for this tab")
	} else {
		p.Success(fmt.Sprintf("%.1f W", d.Watts))
	}
	if d.Title != "" {
		p.Field("Tab", d.Title)
	}
	if d.Domain != "" {
		p.Field("Domain", d.Domain)
	}
	p.Field("Status", d.Status)
	p.Field("Source", d.Source)
	if d.Category != "" {
		p.Field("Category", d.Category)
	}
	p.Field("Confidence", fmt.Sprintf("%.0f%%", d.Confidence*100))
	if d.Note != "" {
		p.Field("Note", d.Note)
	}

	p.Divider()
	cmp := d.Comparisons
	p.Field("LED bulbs", fmt.Sprintf("%g (%s)", cmp.LEDBulbs.Value, cmp.LEDBulbs.Severity))
	p.Field("CO2 per hour", fmt.Sprintf("%g %s", cmp.CO2GramsPerHour.Value, cmp.CO2GramsPerHour.Unit))
	p.Field("Water per hour", fmt.Sprintf("%g %s", cmp.WaterGallonsPerHour.Value, cmp.WaterGallonsPerHour.Unit))
}
