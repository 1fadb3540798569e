package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinelai/sentinel/internal/cli"
	"github.com/sentinelai/sentinel/internal/pipeline"
)

var flagImportDryRun bool

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Import sample files (jsonl, json, yaml) from a directory",
	Long: "Scan a directory for *.jsonl, *.json and *.yaml sample files, validate every\n" +
		"sample and store it. Files unchanged since the last import are skipped.",
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&flagImportDryRun, "dry-run", false, "Parse and validate without storing")
	rootCmd.AddCommand(importCmd)
}

func importProgress(current, total int) {
	if flagQuiet {
		return
	}
	if current%50 == 0 || current == total {
		fmt.Fprintf(os.Stderr, "\r  Parsing %s", cli.RenderProgressBar(current, total, 24))
	}
}

func runImport(_ *cobra.Command, args []string) error {
	dir := args[0]
	now := time.Now()
	progressf("  Scanning %s...\n", dir)

	if flagImportDryRun {
		result, err := pipeline.Load(dir, now, importProgress)
		if err != nil {
			return err
		}
		progressf("\n")
		fmt.Printf("  %s files, %s valid samples, %d invalid, %d unreadable files (dry run)\n",
			cli.FormatNumber(int64(result.TotalFiles)),
			cli.FormatNumber(int64(len(result.Samples))),
			result.ParseErrors,
			result.FileErrors,
		)
		return nil
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	result, err := pipeline.Import(context.Background(), dir, st, now, importProgress)
	if err != nil {
		return err
	}
	if result.TotalFiles == 0 {
		fmt.Println("\n  No sample files found.")
		return nil
	}
	progressf("\n")

	fmt.Printf("  Imported %s samples from %d files (%d unchanged, skipped)\n",
		cli.FormatNumber(int64(result.Stored)),
		result.Imported,
		result.Skipped,
	)
	if result.ParseErrors > 0 {
		fmt.Fprintf(os.Stderr, "  %d samples failed validation\n", result.ParseErrors)
	}
	if result.FileErrors > 0 {
		fmt.Fprintf(os.Stderr, "  %d files could not be read\n", result.FileErrors)
	}
	return nil
}
