package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentinelai/sentinel/internal/cli"
	"github.com/sentinelai/sentinel/internal/model"
	"github.com/sentinelai/sentinel/internal/pipeline"
)

var flagPeriod string

var costsCmd = &cobra.Command{
	Use:   "costs [agent-id]",
	Short: "Cost breakdown per agent and period over --days",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCosts,
}

var costAlertsCmd = &cobra.Command{
	Use:   "alerts [agent-id]",
	Short: "Cost spikes and efficiency drops in the last --hours",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCostAlerts,
}

var costRecommendCmd = &cobra.Command{
	Use:   "recommend [agent-id]",
	Short: "Cost optimization recommendations over --days",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCostRecommend,
}

func init() {
	costsCmd.Flags().StringVar(&flagPeriod, "period", string(model.CostDaily), "Cost period: daily, weekly or monthly")
	costsCmd.AddCommand(costAlertsCmd)
	costsCmd.AddCommand(costRecommendCmd)
	rootCmd.AddCommand(costsCmd)
}

func optionalAgent(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return flagAgent
}

func runCosts(_ *cobra.Command, args []string) error {
	period, err := model.ParseCostPeriod(flagPeriod)
	if err != nil {
		return err
	}

	return withAnalysis(func(svc *pipeline.Service) error {
		costs, err := svc.AnalyzeCosts(context.Background(), optionalAgent(args), period, flagDays)
		if err != nil {
			return err
		}
		return emit(costs, func() {
			if len(costs) == 0 {
				fmt.Println("\n  No cost data in the selected period.")
				return
			}

			var total float64
			rows := make([][]string, 0, len(costs)+2)
			for _, c := range costs {
				total += c.TotalCost
				name := c.AgentName
				if name == "" {
					name = model.DefaultAgentName(c.AgentID)
				}
				rows = append(rows, []string{
					cli.FormatTime(c.PeriodStart),
					name,
					cli.FormatCost(c.TotalCost),
					cli.FormatNumber(int64(c.TotalRequests)),
					cli.FormatCost(c.AvgCostPerRequest),
					string(c.CostTrend),
					string(c.CostEfficiency),
				})
			}
			rows = append(rows, []string{"---"}, []string{"TOTAL", "", cli.FormatCost(total)})

			fmt.Println()
			fmt.Println(cli.RenderTitle(fmt.Sprintf("COSTS  %s, last %dd", period, flagDays)))
			fmt.Println()
			fmt.Print(cli.RenderTable(cli.Table{
				Headers: []string{"Period (UTC)", "Agent", "Cost", "Requests", "Cost/req", "Trend", "Efficiency"},
				Rows:    rows,
			}))
		})
	})
}

func runCostAlerts(_ *cobra.Command, args []string) error {
	return withAnalysis(func(svc *pipeline.Service) error {
		alerts, err := svc.CostAlerts(context.Background(), optionalAgent(args), flagHours)
		if err != nil {
			return err
		}
		if alerts == nil {
			alerts = []model.CostAlert{}
		}
		return emit(map[string]any{"alerts": alerts}, func() {
			if len(alerts) == 0 {
				fmt.Printf("\n  No cost alerts in the last %dh.\n", flagHours)
				return
			}
			rows := make([][]string, 0, len(alerts))
			for _, a := range alerts {
				rows = append(rows, []string{
					a.AgentName,
					cli.RenderSeverity(a.Severity),
					string(a.AlertType),
					cli.FormatCost(a.CurrentValue),
					cli.FormatCost(a.ThresholdValue),
					a.Message,
				})
			}
			fmt.Println()
			fmt.Print(cli.RenderTable(cli.Table{
				Title:   fmt.Sprintf("Cost alerts, last %dh", flagHours),
				Headers: []string{"Agent", "Severity", "Type", "Current", "Threshold", "Message"},
				Rows:    rows,
			}))
		})
	})
}

func runCostRecommend(_ *cobra.Command, args []string) error {
	agentID, err := agentArg(args)
	if err != nil {
		return err
	}

	return withAnalysis(func(svc *pipeline.Service) error {
		rec, err := svc.CostRecommendations(context.Background(), agentID, flagDays)
		if err != nil {
			return err
		}
		return emit(rec, func() {
			fmt.Println()
			fmt.Println(cli.RenderTitle(fmt.Sprintf("COST RECOMMENDATIONS  Last %dd", rec.AnalysisPeriodDays)))
			fmt.Println()
			for i, r := range rec.Recommendations {
				fmt.Printf("  %d. %s\n", i+1, r)
			}
			fmt.Println()
			fmt.Printf("  Current spend:      %s\n", cli.FormatCost(rec.CurrentTotalCost))
			fmt.Printf("  Potential savings:  %s/month\n", cli.FormatCost(rec.PotentialMonthlySavings))
			fmt.Printf("  Confidence:         %s\n", rec.Confidence)
			if m := rec.MetricsSummary; m != nil {
				fmt.Println(cli.RenderMuted(fmt.Sprintf("\n  Based on %s requests at %s each, %s avg latency",
					cli.FormatNumber(int64(m.TotalRequests)),
					cli.FormatCost(m.AvgCostPerRequest),
					cli.FormatLatency(m.AvgLatencyMs))))
			}
		})
	})
}
