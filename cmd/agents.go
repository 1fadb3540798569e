package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sentinelai/sentinel/internal/cli"
	"github.com/sentinelai/sentinel/internal/model"
)

var (
	flagAgentStatus string
	flagAgentLimit  int
	flagAgentOffset int

	flagRegisterName        string
	flagRegisterDescription string
	flagRegisterStatus      string
	flagRegisterMeta        []string
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List registered agents",
	RunE:  runAgents,
}

var agentsShowCmd = &cobra.Command{
	Use:   "show <agent-id>",
	Short: "Show one agent",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAgentsShow,
}

var agentsRegisterCmd = &cobra.Command{
	Use:   "register [agent-id]",
	Short: "Register or update an agent (a new UUID is generated when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAgentsRegister,
}

func init() {
	agentsCmd.Flags().StringVar(&flagAgentStatus, "status", "", "Filter by status (running, stopped, error, unknown)")
	agentsCmd.Flags().IntVar(&flagAgentLimit, "limit", 100, "Max agents to list")
	agentsCmd.Flags().IntVar(&flagAgentOffset, "offset", 0, "Agents to skip")

	agentsRegisterCmd.Flags().StringVar(&flagRegisterName, "name", "", "Display name")
	agentsRegisterCmd.Flags().StringVar(&flagRegisterDescription, "description", "", "Description")
	agentsRegisterCmd.Flags().StringVar(&flagRegisterStatus, "status", string(model.AgentRunning), "Lifecycle status")
	agentsRegisterCmd.Flags().StringArrayVar(&flagRegisterMeta, "meta", nil, "Metadata as key=value (repeatable)")

	agentsCmd.AddCommand(agentsShowCmd)
	agentsCmd.AddCommand(agentsRegisterCmd)
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(_ *cobra.Command, _ []string) error {
	f := model.AgentFilter{Limit: flagAgentLimit, Offset: flagAgentOffset}
	if flagAgentStatus != "" {
		status, err := model.ParseAgentStatus(flagAgentStatus)
		if err != nil {
			return err
		}
		f.Status = status
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	agents, total, err := st.ListAgents(context.Background(), f)
	if err != nil {
		return err
	}

	return emit(map[string]any{"agents": agents, "total": total}, func() {
		if total == 0 {
			fmt.Println("\n  No agents registered yet.")
			fmt.Println("  Import sample files with `sentinel import <dir>` or POST to /api/v1/metrics.")
			return
		}

		now := time.Now()
		rows := make([][]string, 0, len(agents))
		for _, a := range agents {
			rows = append(rows, []string{a.Name, a.ID, string(a.Status), cli.FormatAgo(a.LastSeen, now)})
		}

		fmt.Println()
		fmt.Println(cli.RenderTitle(fmt.Sprintf("AGENTS  %d registered", total)))
		fmt.Println()
		fmt.Print(cli.RenderTable(cli.Table{
			Headers: []string{"Name", "ID", "Status", "Last Seen"},
			Rows:    rows,
		}))
		if len(agents) < total {
			fmt.Println(cli.RenderMuted(fmt.Sprintf("  Showing %d of %d (use --limit/--offset)", len(agents), total)))
		}
	})
}

func runAgentsShow(_ *cobra.Command, args []string) error {
	agentID, err := agentArg(args)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	agent, err := st.GetAgent(context.Background(), agentID)
	if err != nil {
		return fmt.Errorf("agent %s: %w", agentID, err)
	}

	return emit(agent, func() {
		rows := [][]string{
			{"ID", agent.ID},
			{"Name", agent.Name},
			{"Status", string(agent.Status)},
			{"Created", cli.FormatTime(agent.CreatedAt)},
			{"Last Seen", cli.FormatAgo(agent.LastSeen, time.Now())},
		}
		if agent.Description != "" {
			rows = append(rows, []string{"Description", agent.Description})
		}
		if len(agent.Metadata) > 0 {
			rows = append(rows, []string{"---"})
			for k, v := range agent.Metadata {
				rows = append(rows, []string{k, fmt.Sprint(v)})
			}
		}
		fmt.Println()
		fmt.Print(cli.RenderTable(cli.Table{Headers: []string{"Field", "Value"}, Rows: rows}))
	})
}

func runAgentsRegister(_ *cobra.Command, args []string) error {
	agentID := uuid.NewString()
	if len(args) > 0 {
		agentID = args[0]
	}
	if _, err := uuid.Parse(agentID); err != nil {
		return fmt.Errorf("%w: agent ID must be a valid UUID", model.ErrInvalidArgument)
	}
	status, err := model.ParseAgentStatus(flagRegisterStatus)
	if err != nil {
		return err
	}

	meta := make(map[string]any, len(flagRegisterMeta))
	for _, kv := range flagRegisterMeta {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("%w: --meta wants key=value, got %q", model.ErrInvalidArgument, kv)
		}
		meta[k] = v
	}

	name := flagRegisterName
	if name == "" {
		name = model.DefaultAgentName(agentID)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	agent := model.Agent{
		ID:          agentID,
		Name:        name,
		Description: flagRegisterDescription,
		Status:      status,
		Metadata:    meta,
	}
	if err := st.UpsertAgent(context.Background(), agent); err != nil {
		return err
	}
	fmt.Printf("  Registered %s (%s)\n", name, agentID)
	return nil
}
