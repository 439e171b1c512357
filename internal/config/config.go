// Package config handles process configuration: defaults, an optional TOML
// file, LIVEWATCH_* environment variables (optionally from a .env file),
// then command-line flags applied by the caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LIVEWATCH_"

// Config holds all process configuration. Domain settings (poll interval,
// split policy, directories) live in the source store instead.
type Config struct {
	StorePath      string `toml:"store_path"`
	StoreBackend   string `toml:"store_backend"`
	Listen         string `toml:"listen"`
	LogLevel       string `toml:"log_level"`
	LogFormat      string `toml:"log_format"`
	YtDlpPath      string `toml:"ytdlp_path"`
	FFmpegPath     string `toml:"ffmpeg_path"`
	CookiesFile    string `toml:"cookies_file"`
	CookiesBrowser string `toml:"cookies_browser"`
	RetentionDays  int    `toml:"retention_days"`
	CleanupCron    string `toml:"cleanup_cron"`
	WatchStore     bool   `toml:"watch_store"`
	Debug          bool   `toml:"debug"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		StorePath:      "channels.json",
		StoreBackend:   "json",
		Listen:         ":8000",
		LogLevel:       "info",
		LogFormat:      "text",
		YtDlpPath:      "yt-dlp",
		FFmpegPath:     "ffmpeg",
		CookiesFile:    "cookies.txt",
		CookiesBrowser: "firefox",
		RetentionDays:  7,
		CleanupCron:    "0 4 * * *",
		WatchStore:     false,
		Debug:          false,
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "livewatch"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "livewatch"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load merges defaults, the TOML config file and the environment, then
// validates the result. A missing config file or .env file is not an error.
func Load() (*Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err == nil {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// .env only fills variables that are not already set.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from LIVEWATCH_* variables.
func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"STORE_PATH":      &c.StorePath,
		"STORE_BACKEND":   &c.StoreBackend,
		"LISTEN":          &c.Listen,
		"LOG_LEVEL":       &c.LogLevel,
		"LOG_FORMAT":      &c.LogFormat,
		"YTDLP_PATH":      &c.YtDlpPath,
		"FFMPEG_PATH":     &c.FFmpegPath,
		"COOKIES_FILE":    &c.CookiesFile,
		"COOKIES_BROWSER": &c.CookiesBrowser,
		"CLEANUP_CRON":    &c.CleanupCron,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	if v := os.Getenv(EnvPrefix + "RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sRETENTION_DAYS: %w", EnvPrefix, err)
		}
		c.RetentionDays = n
	}

	bools := map[string]*bool{
		"WATCH_STORE": &c.WatchStore,
		"DEBUG":       &c.Debug,
	}
	for key, dst := range bools {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}
	return nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("store_path cannot be empty")
	}

	switch strings.ToLower(c.StoreBackend) {
	case "json", "sqlite":
	default:
		return fmt.Errorf("unsupported store_backend %q (valid: json, sqlite)", c.StoreBackend)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log_format %q (valid: text, json)", c.LogFormat)
	}

	if c.RetentionDays < 1 {
		return fmt.Errorf("retention_days must be at least 1, got %d", c.RetentionDays)
	}

	if c.CleanupCron != "" {
		if _, err := cron.ParseStandard(c.CleanupCron); err != nil {
			return fmt.Errorf("invalid cleanup_cron %q: %w", c.CleanupCron, err)
		}
	}

	return nil
}

// EffectiveLogLevel returns "debug" when Debug is set, else LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}

// ExpandPath resolves a leading ~ and makes p absolute.
func ExpandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		p = filepath.Join(home, p[2:])
	}
	return filepath.Abs(p)
}
