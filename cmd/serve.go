package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"livewatch/internal/api"
	"livewatch/internal/cleanup"
	"livewatch/internal/download"
	"livewatch/internal/metrics"
	"livewatch/internal/source"
)

const shutdownTimeout = 10 * time.Second

var (
	flagListen    string
	flagAutostart bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP control API",
	Args:  cobra.NoArgs,
	RunE:  serveRun,
}

func init() {
	serveCmd.Flags().StringVarP(&flagListen, "listen", "l", "", "Listen address (default :8000)")
	serveCmd.Flags().BoolVar(&flagAutostart, "autostart", false, "Start monitoring enabled sources immediately")
}

func serveRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flagListen != "" {
		cfg.Listen = flagListen
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	settings, err := st.Settings(ctx)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	log, closeLog, err := openDaemonLogger(settings)
	if err != nil {
		return err
	}
	defer closeLog()

	met := metrics.New()
	sup := newSupervisor(log, met)
	engine := newEngine()
	h := api.NewHandler(ctx, st, sup, download.New(engine, engine, nil), log, met)
	h.RetentionDays = cfg.RetentionDays

	if flagAutostart {
		sources, err := st.ListSources(ctx, true)
		if err != nil {
			return fmt.Errorf("loading sources: %w", err)
		}
		if err := sup.Start(ctx, sources, settings); err != nil {
			return fmt.Errorf("starting monitors: %w", err)
		}
	}

	if cfg.CleanupCron != "" {
		sched, err := cleanup.NewScheduler(log)
		if err != nil {
			return err
		}
		root := func() string {
			s, err := st.Settings(ctx)
			if err != nil {
				return source.DefaultSettings().RootDirectory
			}
			return s.RootDirectory
		}
		if err := cleanup.ScheduleRetention(sched, cfg.CleanupCron, root, cfg.RetentionDays, log); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	if cfg.WatchStore {
		if err := watchStore(ctx, st, sup, log); err != nil {
			return err
		}
	}

	srv := &http.Server{Addr: cfg.Listen, Handler: h.Router()}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info("server starting", "listen", cfg.Listen, "store", cfg.StorePath, "backend", cfg.StoreBackend)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, draining connections")
	case err := <-errCh:
		stopMonitors(sup, log)
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	stopMonitors(sup, log)
	log.Info("server stopped")
	return nil
}
