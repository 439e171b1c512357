package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"livewatch/internal/cleanup"
	"livewatch/internal/ui"
)

var (
	flagDays   int
	flagDryRun bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete recordings older than the retention period",
	Long: `Delete files under the recording root older than the retention period.
Files under the live/ directory are always kept.`,
	Args: cobra.NoArgs,
	RunE: cleanupRun,
}

func init() {
	cleanupCmd.Flags().IntVar(&flagDays, "days", 0, "Retention in days (default from config)")
	cleanupCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Only list what would be deleted")
}

func cleanupRun(cmd *cobra.Command, args []string) error {
	days := cfg.RetentionDays
	if cmd.Flags().Changed("days") {
		if flagDays < 1 {
			return fmt.Errorf("--days must be at least 1")
		}
		days = flagDays
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	settings, err := st.Settings(context.Background())
	if err != nil {
		return err
	}

	c := cleanup.New(settings.RootDirectory, days, nil)
	summary, err := c.Summarize()
	if err != nil {
		return err
	}
	ui.NewPrinter(os.Stdout).CleanupSummary(summary)

	rep, err := c.Run(flagDryRun)
	if err != nil {
		return err
	}
	if flagDryRun {
		for _, f := range rep.Files {
			fmt.Printf("  %s (%.1f days)\n", f.Path, f.AgeDays)
		}
		return nil
	}
	fmt.Printf("Deleted %d file(s)\n", len(rep.Deleted))
	return nil
}
