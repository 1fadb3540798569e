package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinelai/sentinel/internal/cli"
	"github.com/sentinelai/sentinel/internal/daemon"
	"github.com/sentinelai/sentinel/internal/model"
	"github.com/sentinelai/sentinel/internal/source"
)

var (
	flagStart       string
	flagEnd         string
	flagSampleLimit int
	flagExportAs    string
	flagExportOut   string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics [agent-id]",
	Short: "List raw samples, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMetrics,
}

var exportCmd = &cobra.Command{
	Use:   "export [agent-id]",
	Short: "Export one agent's samples for a time range as CSV or JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExport,
}

func init() {
	for _, c := range []*cobra.Command{metricsCmd, exportCmd} {
		c.Flags().StringVar(&flagStart, "start", "", "Range start (RFC 3339 or ISO-8601)")
		c.Flags().StringVar(&flagEnd, "end", "", "Range end (RFC 3339 or ISO-8601)")
	}
	metricsCmd.Flags().IntVar(&flagSampleLimit, "limit", 50, "Max samples to list (1-10000)")
	exportCmd.Flags().StringVar(&flagExportAs, "as", "csv", "Export encoding: csv or json")
	exportCmd.Flags().StringVar(&flagExportOut, "output", "", "Output file (default stdout)")

	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(exportCmd)
}

// timeRange parses --start/--end. Unset bounds stay zero.
func timeRange() (start, end time.Time, err error) {
	if flagStart != "" {
		if start, err = source.ParseTimestamp(flagStart); err != nil {
			return start, end, err
		}
	}
	if flagEnd != "" {
		if end, err = source.ParseTimestamp(flagEnd); err != nil {
			return start, end, err
		}
	}
	return start.UTC(), end.UTC(), nil
}

func runMetrics(_ *cobra.Command, args []string) error {
	if flagSampleLimit < 1 || flagSampleLimit > 10000 {
		return fmt.Errorf("%w: --limit must be between 1 and 10000", model.ErrInvalidArgument)
	}
	start, end, err := timeRange()
	if err != nil {
		return err
	}
	f := model.SampleFilter{Start: start, End: end, Limit: flagSampleLimit}
	if len(args) > 0 {
		f.AgentID = args[0]
	} else {
		f.AgentID = flagAgent
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	samples, total, err := st.ListSamples(context.Background(), f)
	if err != nil {
		return err
	}

	return emit(map[string]any{"metrics": samples, "total": total}, func() {
		if total == 0 {
			fmt.Println("\n  No samples found.")
			return
		}
		rows := make([][]string, 0, len(samples))
		for _, s := range samples {
			rows = append(rows, []string{
				cli.FormatTime(s.Timestamp),
				model.DefaultAgentName(s.AgentID),
				cli.Optional(s.LatencyMs, cli.FormatLatency),
				cli.Optional(s.Throughput, func(v float64) string { return cli.FormatFloat(v, 1) }),
				cli.Optional(s.CostPerRequest, cli.FormatCost),
				cli.Optional(s.CPUPercent, cli.FormatPercent),
				cli.Optional(s.GPUPercent, cli.FormatPercent),
				cli.Optional(s.MemoryMB, cli.FormatMemory),
			})
		}
		fmt.Println()
		fmt.Print(cli.RenderTable(cli.Table{
			Headers: []string{"Time (UTC)", "Agent", "Latency", "Req/min", "Cost/req", "CPU", "GPU", "Memory"},
			Rows:    rows,
		}))
		if len(samples) < total {
			fmt.Println(cli.RenderMuted(fmt.Sprintf("  Showing %d of %d samples", len(samples), total)))
		}
	})
}

func runExport(_ *cobra.Command, args []string) error {
	agentID, err := agentArg(args)
	if err != nil {
		return err
	}
	if flagExportAs != "csv" && flagExportAs != "json" {
		return fmt.Errorf("%w: --as must be csv or json", model.ErrInvalidArgument)
	}
	start, end, err := timeRange()
	if err != nil {
		return err
	}
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -flagDays)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	agent, err := st.GetAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("agent %s: %w", agentID, err)
	}
	samples, err := st.FetchSamples(ctx, agentID, start, end)
	if err != nil {
		return err
	}

	out := os.Stdout
	if flagExportOut != "" {
		f, err := os.Create(flagExportOut)
		if err != nil {
			return fmt.Errorf("creating %s: %w", flagExportOut, err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	if flagExportAs == "json" {
		err = cli.WriteStructured(out, cli.FormatJSON, map[string]any{
			"agent_id":   agent.ID,
			"agent_name": agent.Name,
			"start_date": start,
			"end_date":   end,
			"total":      len(samples),
			"metrics":    samples,
		})
	} else {
		err = daemon.WriteCSV(out, samples)
	}
	if err != nil {
		return err
	}
	progressf("  Exported %s samples for %s\n", cli.FormatNumber(int64(len(samples))), agent.Name)
	return nil
}
