package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinelai/sentinel/internal/cli"
	"github.com/sentinelai/sentinel/internal/model"
	"github.com/sentinelai/sentinel/internal/pipeline"
)

var (
	flagInterval string
	flagMetric   string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate [agent-id]",
	Short: "Bucket samples by minute, hour, day, week or month",
	Long:  "Aggregate samples into calendar buckets. Without an agent every agent gets its own buckets.\nThe range defaults to the last --hours.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAggregate,
}

var summaryCmd = &cobra.Command{
	Use:   "summary [agent-id]",
	Short: "Headline performance summary of one agent over --days",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSummary,
}

var trendCmd = &cobra.Command{
	Use:   "trend [agent-id]",
	Short: "Classify the hourly trend of one metric over --hours",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTrend,
}

func init() {
	aggregateCmd.Flags().StringVar(&flagInterval, "interval", string(model.IntervalHour), "Bucket interval: minute, hour, day, week, month")
	aggregateCmd.Flags().StringVar(&flagStart, "start", "", "Range start (RFC 3339 or ISO-8601)")
	aggregateCmd.Flags().StringVar(&flagEnd, "end", "", "Range end (RFC 3339 or ISO-8601)")
	trendCmd.Flags().StringVar(&flagMetric, "metric", model.MetricLatency, "Metric name, e.g. latency_ms or cost_per_request")

	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(trendCmd)
}

func runAggregate(_ *cobra.Command, args []string) error {
	iv, err := model.ParseInterval(flagInterval)
	if err != nil {
		return err
	}
	start, end, err := timeRange()
	if err != nil {
		return err
	}
	if start.IsZero() && end.IsZero() {
		end = time.Now().UTC()
		start = end.Add(-time.Duration(flagHours) * time.Hour)
	}
	agentID := flagAgent
	if len(args) > 0 {
		agentID = args[0]
	}

	return withAnalysis(func(svc *pipeline.Service) error {
		buckets, err := svc.Aggregate(context.Background(), agentID, start, end, iv)
		if err != nil {
			return err
		}
		return emit(buckets, func() {
			if len(buckets) == 0 {
				fmt.Println("\n  No samples in the selected range.")
				return
			}
			rows := make([][]string, 0, len(buckets))
			for _, b := range buckets {
				rows = append(rows, []string{
					cli.FormatTime(b.Start),
					model.DefaultAgentName(b.AgentID),
					cli.FormatNumber(int64(b.SampleCount)),
					cli.Optional(b.AvgLatencyMs, cli.FormatLatency),
					cli.Optional(b.MaxLatencyMs, cli.FormatLatency),
					cli.Optional(b.AvgThroughput, func(v float64) string { return cli.FormatFloat(v, 1) }),
					cli.Optional(b.TotalCost, cli.FormatCost),
					cli.Optional(b.AvgCPUPercent, cli.FormatPercent),
					cli.Optional(b.AvgMemoryMB, cli.FormatMemory),
				})
			}
			fmt.Println()
			fmt.Println(cli.RenderTitle(fmt.Sprintf("AGGREGATES  per %s", iv)))
			fmt.Println()
			fmt.Print(cli.RenderTable(cli.Table{
				Headers: []string{"Bucket (UTC)", "Agent", "Samples", "Avg Lat", "Max Lat", "Req/min", "Cost", "CPU", "Memory"},
				Rows:    rows,
			}))
		})
	})
}

func runSummary(_ *cobra.Command, args []string) error {
	agentID, err := agentArg(args)
	if err != nil {
		return err
	}

	return withAnalysis(func(svc *pipeline.Service) error {
		s, err := svc.AgentSummary(context.Background(), agentID, flagDays)
		if err != nil {
			return fmt.Errorf("agent %s: %w", agentID, err)
		}
		return emit(s, func() {
			fmt.Println()
			fmt.Println(cli.RenderTitle(fmt.Sprintf("%s  Last %dd", s.AgentName, s.PeriodDays)))
			fmt.Println()
			if s.TotalMetrics == 0 {
				fmt.Println("  No samples in the selected period.")
				return
			}

			var first, last time.Time
			if s.FirstMetric != nil {
				first = *s.FirstMetric
			}
			if s.LastMetric != nil {
				last = *s.LastMetric
			}
			fmt.Print(cli.RenderTable(cli.Table{
				Headers: []string{"Metric", "Value"},
				Rows: [][]string{
					{"Samples", cli.FormatNumber(int64(s.TotalMetrics))},
					{"Uptime", fmt.Sprintf("%dh", s.UptimeHours)},
					{"First sample", cli.FormatTime(first)},
					{"Last sample", cli.FormatTime(last)},
					{"---"},
					{"Avg latency", cli.Optional(s.AvgLatencyMs, cli.FormatLatency)},
					{"P95 latency", cli.Optional(s.P95LatencyMs, cli.FormatLatency)},
					{"Avg throughput", cli.Optional(s.AvgThroughput, func(v float64) string { return cli.FormatFloat(v, 1) + "/min" })},
					{"---"},
					{"Total cost", cli.FormatCost(s.TotalCost)},
					{"Avg CPU", cli.Optional(s.AvgCPUPercent, cli.FormatPercent)},
					{"Avg GPU", cli.Optional(s.AvgGPUPercent, cli.FormatPercent)},
					{"Avg memory", cli.Optional(s.AvgMemoryMB, cli.FormatMemory)},
				},
			}))
		})
	})
}

// bucketMetric picks the bucket average that corresponds to a metric name.
func bucketMetric(b model.Bucket, metric string) *float64 {
	switch metric {
	case model.MetricLatency:
		return b.AvgLatencyMs
	case model.MetricThroughput:
		return b.AvgThroughput
	case model.MetricCost:
		return b.AvgCostPerRequest
	case model.MetricCPU:
		return b.AvgCPUPercent
	case model.MetricGPU:
		return b.AvgGPUPercent
	case model.MetricMemory:
		return b.AvgMemoryMB
	}
	return nil
}

func runTrend(_ *cobra.Command, args []string) error {
	agentID, err := agentArg(args)
	if err != nil {
		return err
	}

	return withAnalysis(func(svc *pipeline.Service) error {
		ctx := context.Background()
		ta, err := svc.TrendAnalysis(ctx, agentID, flagMetric, flagHours)
		if err != nil {
			return err
		}
		return emit(ta, func() {
			fmt.Println()
			fmt.Println(cli.RenderTitle(fmt.Sprintf("%s TREND  Last %dh", ta.MetricName, ta.PeriodHours)))
			fmt.Println()

			rows := [][]string{
				{"Trend", string(ta.Trend)},
				{"Change", cli.FormatChange(ta.ChangePercent)},
				{"Hourly points", cli.FormatNumber(int64(ta.DataPoints))},
			}
			format := func(v float64) string { return cli.FormatFloat(v, 2) }
			if ta.CurrentValue != nil {
				rows = append(rows,
					[]string{"---"},
					[]string{"Current", cli.Optional(ta.CurrentValue, format)},
					[]string{"Min", cli.Optional(ta.MinValue, format)},
					[]string{"Max", cli.Optional(ta.MaxValue, format)},
					[]string{"Average", cli.Optional(ta.AvgValue, format)},
				)
			}

			end := time.Now().UTC()
			buckets, err := svc.Aggregate(ctx, agentID, end.Add(-time.Duration(flagHours)*time.Hour), end, model.IntervalHour)
			if err == nil {
				var series []float64
				for _, b := range buckets {
					if v := bucketMetric(b, ta.MetricName); v != nil {
						series = append(series, *v)
					}
				}
				if len(series) > 1 {
					rows = append(rows, []string{"---"}, []string{"Hourly", cli.RenderSparkline(series)})
				}
			}

			fmt.Print(cli.RenderTable(cli.Table{Headers: []string{"Metric", "Value"}, Rows: rows}))
		})
	})
}
