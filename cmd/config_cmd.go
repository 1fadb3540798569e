package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sentinelai/sentinel/internal/config"
	"github.com/sentinelai/sentinel/internal/pipeline"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg := appConfig

	fmt.Printf("  Config file: %s\n", config.ConfigPath())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Default days:  %d\n", cfg.General.DefaultDays)
	fmt.Printf("    Default hours: %d\n", cfg.General.DefaultHours)
	fmt.Println()

	fmt.Println("  [Store]")
	fmt.Printf("    Driver: %s\n", cfg.Store.Driver)
	if cfg.Store.DSN != "" {
		fmt.Printf("    DSN:    %s\n", maskDSN(cfg.Store.DSN))
	} else {
		fmt.Printf("    DSN:    %s (default)\n", pipeline.DatabasePath())
	}
	fmt.Println()

	fmt.Println("  [Server]")
	fmt.Printf("    Address:        %s\n", cfg.Server.Addr)
	fmt.Printf("    Poll interval:  %ds\n", cfg.Server.PollIntervalSec)
	fmt.Printf("    Alert window:   %dh\n", cfg.Server.AlertWindowHours)
	fmt.Printf("    Events buffer:  %d\n", cfg.Server.EventsBuffer)
	if cfg.Server.RetentionDays > 0 {
		fmt.Printf("    Retention:      %d days\n", cfg.Server.RetentionDays)
	} else {
		fmt.Println("    Retention:      keep everything")
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		fmt.Printf("    CORS origins:   %s\n", strings.Join(cfg.Server.AllowedOrigins, ", "))
	} else {
		fmt.Println("    CORS origins:   any")
	}
	fmt.Println()

	fmt.Println("  [Log]")
	fmt.Printf("    Level: %s\n", cfg.Log.Level)
	if cfg.Log.File != "" {
		fmt.Printf("    File:  %s (%d MB x %d backups, %d days)\n",
			cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays)
	} else {
		fmt.Println("    File:  stderr")
	}
	fmt.Println()

	fmt.Println("  Run `sentinel setup` to reconfigure.")
	return nil
}

// maskDSN hides the password of a URL-style DSN.
func maskDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, hasPass := strings.Cut(creds, ":")
	if !hasPass {
		return dsn
	}
	return scheme + "://" + user + ":****@" + host
}
