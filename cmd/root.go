// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"livewatch/internal/config"
	"livewatch/internal/detect"
	"livewatch/internal/extract"
	"livewatch/internal/logger"
	"livewatch/internal/metrics"
	"livewatch/internal/monitor"
	"livewatch/internal/record"
	"livewatch/internal/source"
	"livewatch/internal/store"
	"livewatch/internal/watch"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagStore   string
	flagBackend string
	flagDebug   bool
)

// cfg holds the loaded configuration (merged: defaults < config file < env < flags).
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "livewatch",
	Short: "Watch broadcasters and record their live streams",
	Long: `livewatch polls a list of channels, detects when one goes live and
records the broadcast to disk in fixed-length or fixed-size segments.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagStore, "config-store", "s", "", "Source store file (default: channels.json)")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "Store backend: json | sqlite")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < env < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if flagStore != "" {
		cfg.StorePath = flagStore
	}
	if flagBackend != "" {
		cfg.StoreBackend = flagBackend
	}
	if flagDebug {
		cfg.Debug = true
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.SetDefault(logger.New(os.Stderr, cfg.EffectiveLogLevel(), cfg.LogFormat))
	return nil
}

// storePath returns the absolute store path.
func storePath() (string, error) {
	return config.ExpandPath(cfg.StorePath)
}

// openStore opens the configured source store.
func openStore() (store.Store, error) {
	path, err := storePath()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.StoreBackend, path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	slog.Debug("store opened", "backend", cfg.StoreBackend, "path", path)
	return st, nil
}

func newEngine() *extract.YtDlp {
	return extract.NewYtDlp(extract.Options{
		Path:           cfg.YtDlpPath,
		CookiesFile:    cfg.CookiesFile,
		CookiesBrowser: cfg.CookiesBrowser,
	})
}

// newSupervisor wires detection and recording behind a supervisor.
func newSupervisor(log *slog.Logger, m *metrics.Metrics) *monitor.Supervisor {
	engine := newEngine()
	detector := detect.New(engine, log, m)
	var progress io.Writer
	if cfg.Debug {
		progress = os.Stderr
	}
	ffmpeg := record.NewFFmpeg(cfg.FFmpegPath, nil, progress)
	segmenter := record.NewSegmenter(engine, engine, ffmpeg, log, m)
	return monitor.NewSupervisor(detector, segmenter, log, m)
}

func stopMonitors(sup *monitor.Supervisor, log *slog.Logger) {
	if err := sup.StopAll(); err != nil {
		log.Warn("monitors stopped with recordings still running", "error", err)
	}
}

// openDaemonLogger opens the logger for long-running commands, which also
// append to the log file named in the settings.
func openDaemonLogger(settings source.Settings) (*slog.Logger, func(), error) {
	log, closer, err := logger.Open(settings.LogPath, cfg.EffectiveLogLevel(), cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(log)
	return log, func() { closer.Close() }, nil
}

// watchStore reloads sources and settings into sup whenever the store file
// changes. It returns once the watcher is running.
func watchStore(ctx context.Context, st store.Store, sup *monitor.Supervisor, log *slog.Logger) error {
	if cfg.StoreBackend == store.BackendSQLite {
		log.Warn("store watching is only supported for the json backend")
		return nil
	}
	path, err := storePath()
	if err != nil {
		return err
	}

	reload := func() {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		settings, err := st.Settings(ctx)
		if err != nil {
			log.Error("reloading settings failed", "error", err)
			return
		}
		if err := sup.UpdateSettings(settings); err != nil {
			log.Error("reloaded settings rejected", "error", err)
		}

		sources, err := st.ListSources(ctx, false)
		if err != nil {
			log.Error("reloading sources failed", "error", err)
			return
		}
		if err := sup.Reconcile(sources); err != nil && !errors.Is(err, monitor.ErrNotRunning) {
			log.Error("reconciling sources failed", "error", err)
		}
	}

	w, err := watch.New(path, 0, reload, log)
	if err != nil {
		return fmt.Errorf("watching store: %w", err)
	}
	go w.Run(ctx)
	log.Info("watching store for changes", "path", path)
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("livewatch %s\n", Version)
	},
}
