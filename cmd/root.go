// Package cmd implements the sentinel CLI commands.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinelai/sentinel/internal/cli"
	"github.com/sentinelai/sentinel/internal/config"
	"github.com/sentinelai/sentinel/internal/pipeline"
	"github.com/sentinelai/sentinel/internal/store"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

var (
	flagDB     string
	flagDriver string
	flagDays   int
	flagHours  int
	flagAgent  string
	flagFormat string
	flagQuiet  bool

	appConfig config.Config
)

var rootCmd = &cobra.Command{
	Use:          "sentinel",
	Short:        "AI agent performance metrics",
	Long:         "Collect, aggregate and diagnose latency, throughput, cost and resource metrics of AI agents.",
	Version:      Version,
	SilenceUsage: true,
	RunE:         runAgents,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig applies config file defaults to flags the user did not set.
func loadConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	appConfig = cfg

	// Config supplies defaults; explicit flags win.
	flags := cmd.Flags()
	if !flags.Changed("days") {
		flagDays = cfg.General.DefaultDays
	}
	if !flags.Changed("hours") {
		flagHours = cfg.General.DefaultHours
	}
	if !flags.Changed("driver") {
		flagDriver = cfg.Store.Driver
	}
	if !flags.Changed("db") {
		flagDB = cfg.Store.DSN
	}
	if !cli.ValidFormat(flagFormat) {
		return fmt.Errorf("unknown --format %q (want table, json or yaml)", flagFormat)
	}
	return nil
}

func init() {
	rootCmd.PersistentPreRunE = loadConfig

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDB, "db", "", "Database DSN or SQLite file (default: data dir)")
	pf.StringVar(&flagDriver, "driver", store.DriverSQLite, "Database driver (sqlite or postgres)")
	pf.IntVarP(&flagDays, "days", "n", 7, "Analysis window in days")
	pf.IntVar(&flagHours, "hours", 24, "Analysis window in hours")
	pf.StringVarP(&flagAgent, "agent", "a", "", "Agent ID")
	pf.StringVarP(&flagFormat, "format", "o", cli.FormatTable, "Output format: table, json or yaml")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
}

// openStore opens the configured database. An empty DSN with the SQLite
// driver means the default file under the data directory.
func openStore() (*store.Store, error) {
	dsn := flagDB
	if dsn == "" {
		if flagDriver != "" && flagDriver != store.DriverSQLite {
			return nil, fmt.Errorf("--db is required for the %s driver", flagDriver)
		}
		dsn = pipeline.DatabasePath()
	}
	return store.Open(flagDriver, dsn)
}

// withAnalysis opens the store and runs fn against an analysis service.
func withAnalysis(fn func(*pipeline.Service) error) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return fn(pipeline.NewService(st))
}

// agentArg resolves the agent from the first positional argument or --agent.
func agentArg(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if flagAgent != "" {
		return flagAgent, nil
	}
	return "", errors.New("an agent ID is required (argument or --agent)")
}

// emit writes v in the structured --format, or calls table for the default
// terminal rendering.
func emit(v any, table func()) error {
	if flagFormat != cli.FormatTable {
		return cli.WriteStructured(os.Stdout, flagFormat, v)
	}
	table()
	return nil
}

func progressf(format string, a ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, a...)
	}
}
