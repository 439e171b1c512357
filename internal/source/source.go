// Package source defines the watched broadcast sources and the global
// settings shared by every monitor.
package source

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultFormat is the yt-dlp format selector used when a source does not set one.
const DefaultFormat = "bestvideo[height<=720]+bestaudio/best[height<=720]"

var (
	// ErrInvalidSource is returned when a source definition is incomplete.
	ErrInvalidSource = errors.New("invalid source")

	// ErrInvalidSettings is returned when a settings value is out of range.
	// Monitors are never started with settings that fail validation.
	ErrInvalidSettings = errors.New("invalid settings")
)

// Source is a named broadcaster being watched.
type Source struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"url"`
	Enabled bool   `json:"enabled"`
	Format  string `json:"download_format"`
}

// Validate checks the required fields of a source.
func (s Source) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidSource)
	}
	if strings.TrimSpace(s.Address) == "" {
		return fmt.Errorf("%w: url cannot be empty", ErrInvalidSource)
	}
	return nil
}

// FormatOrDefault returns the source's format selector, or DefaultFormat.
func (s Source) FormatOrDefault() string {
	if s.Format == "" {
		return DefaultFormat
	}
	return s.Format
}

// Patch holds optional changes to a source. Nil fields are left untouched.
type Patch struct {
	Name    *string `json:"name,omitempty"`
	Address *string `json:"url,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
	Format  *string `json:"download_format,omitempty"`
}

// Apply returns a copy of s with the patch applied. The address is
// normalized before it is stored.
func (p Patch) Apply(s Source) Source {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Address != nil {
		s.Address = NormalizeAddress(*p.Address)
	}
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.Format != nil {
		s.Format = *p.Format
	}
	return s
}

// Enabled filters sources down to the enabled ones, preserving order.
func Enabled(sources []Source) []Source {
	var out []Source
	for _, s := range sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
