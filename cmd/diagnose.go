package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentinelai/sentinel/internal/cli"
	"github.com/sentinelai/sentinel/internal/model"
	"github.com/sentinelai/sentinel/internal/pipeline"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose [agent-id]",
	Short: "Detect performance issues and score an agent over --hours",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDiagnose,
}

var diagnoseRecommendCmd = &cobra.Command{
	Use:   "recommend [agent-id]",
	Short: "Performance recommendations from a diagnosis over --days",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDiagnoseRecommend,
}

func init() {
	diagnoseCmd.AddCommand(diagnoseRecommendCmd)
	rootCmd.AddCommand(diagnoseCmd)
}

type diagnosis struct {
	Summary model.PerformanceSummary `json:"summary"`
	Issues  []model.PerformanceIssue `json:"issues"`
}

func runDiagnose(_ *cobra.Command, args []string) error {
	agentID, err := agentArg(args)
	if err != nil {
		return err
	}

	return withAnalysis(func(svc *pipeline.Service) error {
		summary, issues, err := svc.Diagnose(context.Background(), agentID, flagHours)
		if err != nil {
			return fmt.Errorf("agent %s: %w", agentID, err)
		}
		if issues == nil {
			issues = []model.PerformanceIssue{}
		}

		return emit(diagnosis{Summary: summary, Issues: issues}, func() {
			fmt.Println()
			fmt.Println(cli.RenderTitle(fmt.Sprintf("%s  Last %dh", summary.AgentName, flagHours)))
			fmt.Println()
			fmt.Print(cli.RenderTable(cli.Table{
				Headers: []string{"Score", "Value"},
				Rows: [][]string{
					{"Overall", cli.RenderHealth(summary.OverallHealth)},
					{"---"},
					{"Latency", cli.RenderScore(summary.LatencyScore)},
					{"Throughput", cli.RenderScore(summary.ThroughputScore)},
					{"Resources", cli.RenderScore(summary.ResourceEfficiencyScore)},
					{"Reliability", cli.RenderScore(summary.ReliabilityScore)},
				},
			}))

			if summary.OverallHealth == model.HealthUnknown {
				fmt.Println("\n  No samples in the selected window.")
				return
			}
			if len(issues) == 0 {
				fmt.Println("\n  No issues detected.")
				return
			}

			rows := make([][]string, 0, len(issues))
			for _, is := range issues {
				rows = append(rows, []string{
					is.Title,
					cli.RenderSeverity(is.Severity),
					cli.FormatFloat(is.CurrentValue, 1),
					cli.FormatFloat(is.ThresholdValue, 1),
					cli.FormatNumber(int64(is.OccurrenceCount)),
				})
			}
			fmt.Println()
			fmt.Print(cli.RenderTable(cli.Table{
				Title:   "Issues",
				Headers: []string{"Issue", "Severity", "Current", "Threshold", "Count"},
				Rows:    rows,
			}))
			for _, is := range issues {
				if is.Recommendation != "" {
					fmt.Println(cli.RenderMuted(fmt.Sprintf("  %s: %s", is.Title, is.Recommendation)))
				}
			}
		})
	})
}

func runDiagnoseRecommend(_ *cobra.Command, args []string) error {
	agentID, err := agentArg(args)
	if err != nil {
		return err
	}

	return withAnalysis(func(svc *pipeline.Service) error {
		recs, err := svc.PerformanceRecommendations(context.Background(), agentID, flagDays)
		if err != nil {
			return fmt.Errorf("agent %s: %w", agentID, err)
		}
		if recs == nil {
			recs = []model.Recommendation{}
		}

		return emit(map[string]any{"agent_id": agentID, "recommendations": recs}, func() {
			if len(recs) == 0 {
				fmt.Printf("\n  No recommendations: the agent looks healthy over the last %dd.\n", flagDays)
				return
			}
			fmt.Println()
			fmt.Println(cli.RenderTitle(fmt.Sprintf("RECOMMENDATIONS  Last %dd", flagDays)))
			for _, r := range recs {
				fmt.Printf("\n  [%s] %s (%s)\n", r.Priority, r.Title, r.Category)
				fmt.Println(cli.RenderMuted("  " + r.Description))
				for _, a := range r.Actions {
					fmt.Printf("    - %s\n", a)
				}
			}
		})
	})
}
