package source

import (
	"fmt"
	"strings"
	"time"
)

// SplitPolicy controls how a recording session is divided into files.
type SplitPolicy int

const (
	SplitTime SplitPolicy = iota
	SplitSize
	SplitNone
)

func (p SplitPolicy) String() string {
	switch p {
	case SplitTime:
		return "time"
	case SplitSize:
		return "size"
	case SplitNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseSplitPolicy parses "time", "size" or "none" (case-insensitive).
func ParseSplitPolicy(s string) (SplitPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "time":
		return SplitTime, nil
	case "size":
		return SplitSize, nil
	case "none":
		return SplitNone, nil
	default:
		return 0, fmt.Errorf("%w: split_mode must be 'time', 'size', or 'none', got %q", ErrInvalidSettings, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p SplitPolicy) MarshalText() ([]byte, error) {
	if p < SplitTime || p > SplitNone {
		return nil, fmt.Errorf("%w: unknown split policy %d", ErrInvalidSettings, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *SplitPolicy) UnmarshalText(b []byte) error {
	v, err := ParseSplitPolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Settings is the process-wide record shared read-only by all monitors.
type Settings struct {
	PollIntervalSeconds int         `json:"check_interval_seconds"`
	RootDirectory       string      `json:"download_directory"`
	LogPath             string      `json:"log_file"`
	SplitPolicy         SplitPolicy `json:"split_mode"`
	SplitTimeMinutes    int         `json:"split_time_minutes"`
	SplitSizeMB         int         `json:"split_size_mb"`
}

// DefaultSettings returns the settings written to a fresh store.
func DefaultSettings() Settings {
	return Settings{
		PollIntervalSeconds: 60,
		RootDirectory:       "./downloads",
		LogPath:             "./live_monitor.log",
		SplitPolicy:         SplitTime,
		SplitTimeMinutes:    30,
		SplitSizeMB:         500,
	}
}

// Validate reports the first out-of-range value.
func (s Settings) Validate() error {
	if s.PollIntervalSeconds < 1 {
		return fmt.Errorf("%w: check_interval_seconds must be at least 1", ErrInvalidSettings)
	}
	if s.RootDirectory == "" {
		return fmt.Errorf("%w: download_directory cannot be empty", ErrInvalidSettings)
	}
	if _, err := s.SplitPolicy.MarshalText(); err != nil {
		return err
	}
	if s.SplitTimeMinutes < 1 {
		return fmt.Errorf("%w: split_time_minutes must be at least 1", ErrInvalidSettings)
	}
	if s.SplitSizeMB < 1 {
		return fmt.Errorf("%w: split_size_mb must be at least 1", ErrInvalidSettings)
	}
	return nil
}

// PollInterval returns the poll interval as a duration.
func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// SettingsPatch holds optional settings changes.
type SettingsPatch struct {
	PollIntervalSeconds *int         `json:"check_interval_seconds,omitempty"`
	RootDirectory       *string      `json:"download_directory,omitempty"`
	LogPath             *string      `json:"log_file,omitempty"`
	SplitPolicy         *SplitPolicy `json:"split_mode,omitempty"`
	SplitTimeMinutes    *int         `json:"split_time_minutes,omitempty"`
	SplitSizeMB         *int         `json:"split_size_mb,omitempty"`
}

// Apply returns a copy of s with the patch applied. The result is not validated.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.PollIntervalSeconds != nil {
		s.PollIntervalSeconds = *p.PollIntervalSeconds
	}
	if p.RootDirectory != nil {
		s.RootDirectory = *p.RootDirectory
	}
	if p.LogPath != nil {
		s.LogPath = *p.LogPath
	}
	if p.SplitPolicy != nil {
		s.SplitPolicy = *p.SplitPolicy
	}
	if p.SplitTimeMinutes != nil {
		s.SplitTimeMinutes = *p.SplitTimeMinutes
	}
	if p.SplitSizeMB != nil {
		s.SplitSizeMB = *p.SplitSizeMB
	}
	return s
}
