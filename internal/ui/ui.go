// Package ui renders sources, monitor status and settings for the command
// line. Output is styled with lipgloss on a terminal and left plain when
// piped, so it stays greppable.
package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"livewatch/internal/cleanup"
	"livewatch/internal/monitor"
	"livewatch/internal/source"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	keyStyle     = lipgloss.NewStyle().Bold(true)
	enabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	liveStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// Printer writes human-readable output.
type Printer struct {
	w      io.Writer
	styled bool
}

// NewPrinter returns a Printer for w. Styling is enabled only when w is a
// terminal.
func NewPrinter(w io.Writer) *Printer {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	return &Printer{w: w, styled: styled}
}

// Plain returns a Printer that never styles its output.
func Plain(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *Printer) renderTable(headers []string, rows [][]string) {
	t := table.New().Headers(headers...).Rows(rows...)
	if p.styled {
		t = t.Border(lipgloss.RoundedBorder()).
			BorderStyle(borderStyle).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
	} else {
		t = t.Border(lipgloss.HiddenBorder()).
			BorderTop(false).
			BorderBottom(false).
			StyleFunc(func(row, col int) lipgloss.Style {
				return lipgloss.NewStyle().PaddingRight(2)
			})
	}
	fmt.Fprintln(p.w, t.String())
}

// Sources prints the configured sources in store order.
func (p *Printer) Sources(sources []source.Source) {
	if len(sources) == 0 {
		fmt.Fprintln(p.w, "No sources configured.")
		return
	}
	rows := make([][]string, 0, len(sources))
	for _, s := range sources {
		state := p.style(mutedStyle, "disabled")
		if s.Enabled {
			state = p.style(enabledStyle, "enabled")
		}
		rows = append(rows, []string{s.ID, s.Name, s.Address, state})
	}
	p.renderTable([]string{"ID", "NAME", "URL", "STATUS"}, rows)
}

// Statuses prints the running monitors.
func (p *Printer) Statuses(statuses []monitor.Status) {
	if len(statuses) == 0 {
		fmt.Fprintln(p.w, "No monitors running.")
		return
	}
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		state := s.State.String()
		if s.State == monitor.Recording {
			state = p.style(liveStyle, state)
		}
		last := "never"
		if !s.LastCheck.IsZero() {
			last = s.LastCheck.Format(time.DateTime)
		}
		rows = append(rows, []string{s.Name, state, last, s.LiveTitle})
	}
	p.renderTable([]string{"NAME", "STATE", "LAST CHECK", "LIVE"}, rows)
}

// Settings prints the global settings as key/value lines.
func (p *Printer) Settings(s source.Settings) {
	p.pairs([][2]string{
		{"check_interval_seconds", strconv.Itoa(s.PollIntervalSeconds)},
		{"download_directory", s.RootDirectory},
		{"log_file", s.LogPath},
		{"split_mode", s.SplitPolicy.String()},
		{"split_time_minutes", strconv.Itoa(s.SplitTimeMinutes)},
		{"split_size_mb", strconv.Itoa(s.SplitSizeMB)},
	})
}

// CleanupSummary prints what a cleanup would remove.
func (p *Printer) CleanupSummary(s *cleanup.Summary) {
	p.pairs([][2]string{
		{"retention_days", strconv.Itoa(s.RetentionDays)},
		{"files_to_delete", strconv.Itoa(s.FilesToDelete)},
		{"total_size_mb", fmt.Sprintf("%.2f", s.TotalSizeMB)},
		{"live_files_preserved", strconv.Itoa(s.LiveFilesPreserved)},
		{"live_size_mb", fmt.Sprintf("%.2f", s.LiveSizeMB)},
	})
}

func (p *Printer) pairs(kv [][2]string) {
	width := 0
	for _, e := range kv {
		width = max(width, len(e[0]))
	}
	for _, e := range kv {
		key := e[0] + ":" + strings.Repeat(" ", width-len(e[0]))
		fmt.Fprintf(p.w, "%s  %s\n", p.style(keyStyle, key), e[1])
	}
}

// Confirm asks a yes/no question on out and reads the answer from in.
// Anything other than y or yes is a no.
func Confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
