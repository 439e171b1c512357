package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"livewatch/internal/metrics"
)

var flagWatch bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor every enabled source until interrupted",
	Args:  cobra.NoArgs,
	RunE:  monitorRun,
}

func init() {
	monitorCmd.Flags().BoolVarP(&flagWatch, "watch", "w", false, "Reload sources when the store file changes")
}

func monitorRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	settings, err := st.Settings(ctx)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	sources, err := st.ListSources(ctx, true)
	if err != nil {
		return fmt.Errorf("loading sources: %w", err)
	}
	if len(sources) == 0 {
		fmt.Fprintln(os.Stderr, "No enabled sources. Add one with:")
		fmt.Fprintln(os.Stderr, "  livewatch source add NAME URL")
		return nil
	}

	log, closeLog, err := openDaemonLogger(settings)
	if err != nil {
		return err
	}
	defer closeLog()

	sup := newSupervisor(log, metrics.New())
	if err := sup.Start(ctx, sources, settings); err != nil {
		return fmt.Errorf("starting monitors: %w", err)
	}
	log.Info("monitoring", "sources", len(sources), "interval_seconds", settings.PollIntervalSeconds,
		"split_mode", settings.SplitPolicy.String(), "root", settings.RootDirectory)

	if flagWatch || cfg.WatchStore {
		if err := watchStore(ctx, st, sup, log); err != nil {
			stopMonitors(sup, log)
			return err
		}
	}

	<-ctx.Done()
	log.Info("shutdown signal received, stopping monitors")
	stopMonitors(sup, log)
	return nil
}
