package cmd

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/sentinelai/sentinel/internal/config"
	"github.com/sentinelai/sentinel/internal/store"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

var daysOptions = []int{1, 7, 30, 90}

func runSetup(_ *cobra.Command, _ []string) error {
	// Start from the stored config, not flag overrides.
	cfg := appConfig

	retention := strconv.Itoa(cfg.Server.RetentionDays)
	dayOpts := make([]huh.Option[int], 0, len(daysOptions))
	for _, d := range daysOptions {
		dayOpts = append(dayOpts, huh.NewOption(fmt.Sprintf("%d days", d), d))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to sentinel").
				Description("Pick where samples are stored and how the daemon behaves.\nEverything can be changed later in "+config.ConfigPath()),
			huh.NewSelect[string]().
				Title("Database").
				Options(
					huh.NewOption("SQLite file (default location)", store.DriverSQLite),
					huh.NewOption("PostgreSQL", store.DriverPostgres),
				).
				Value(&cfg.Store.Driver),
			huh.NewInput().
				Title("DSN").
				Description("SQLite file path or postgres:// URL. Leave empty for the default SQLite file.").
				Value(&cfg.Store.DSN).
				Validate(func(s string) error {
					if cfg.Store.Driver == store.DriverPostgres && s == "" {
						return errors.New("PostgreSQL needs a DSN")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Default analysis window").
				Options(dayOpts...).
				Value(&cfg.General.DefaultDays),
			huh.NewInput().
				Title("Daemon listen address").
				Value(&cfg.Server.Addr).
				Validate(func(s string) error {
					_, _, err := net.SplitHostPort(s)
					return err
				}),
			huh.NewInput().
				Title("Retention (days, 0 keeps everything)").
				Value(&retention).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 0 {
						return errors.New("enter a whole number of days")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Log level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&cfg.Log.Level),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("  Setup canceled, nothing saved.")
			return nil
		}
		return err
	}

	// Validated above.
	cfg.Server.RetentionDays, _ = strconv.Atoi(retention)

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", config.ConfigPath())
	fmt.Println("  Run `sentinel setup` anytime to reconfigure.")
	fmt.Println()
	return nil
}
