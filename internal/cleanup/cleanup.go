// Package cleanup deletes recordings and downloads older than the
// retention period. Files under the live/ subtree are never touched.
package cleanup

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LiveDir is the subtree of the root that cleanup preserves.
const LiveDir = "live"

// DefaultRetentionDays is used when no retention is configured.
const DefaultRetentionDays = 7

// OldFile is a file past the retention period.
type OldFile struct {
	Path    string  `json:"path"`
	AgeDays float64 `json:"age_days"`
	Size    int64   `json:"-"`
}

// Summary describes what a cleanup would do.
type Summary struct {
	FilesToDelete      int     `json:"files_to_delete"`
	TotalSizeBytes     int64   `json:"total_size_bytes"`
	TotalSizeMB        float64 `json:"total_size_mb"`
	RetentionDays      int     `json:"retention_days"`
	LiveFilesPreserved int     `json:"live_files_preserved"`
	LiveSizeMB         float64 `json:"live_size_mb"`
}

// Cleaner applies a retention period to one root directory.
type Cleaner struct {
	root          string
	retentionDays int
	log           *slog.Logger
	now           func() time.Time
}

// New returns a Cleaner for root. A non-positive retention uses
// DefaultRetentionDays.
func New(root string, retentionDays int, log *slog.Logger) *Cleaner {
	if retentionDays < 1 {
		retentionDays = DefaultRetentionDays
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cleaner{root: root, retentionDays: retentionDays, log: log, now: time.Now}
}

// inLive reports whether path lies under root/live.
func (c *Cleaner) inLive(path string) bool {
	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		return false
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return first == LiveDir
}

// FindOld returns files at least retentionDays old outside the live
// subtree, oldest first. A missing root yields no files.
func (c *Cleaner) FindOld() ([]OldFile, error) {
	old := []OldFile{}
	now := c.now()

	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == c.root {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if path != c.root && c.inLive(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		age := now.Sub(info.ModTime()).Hours() / 24
		if age >= float64(c.retentionDays) {
			old = append(old, OldFile{Path: path, AgeDays: age, Size: info.Size()})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", c.root, err)
	}

	sort.Slice(old, func(i, j int) bool { return old[i].AgeDays > old[j].AgeDays })
	return old, nil
}

// Report is the result of one cleanup run.
type Report struct {
	DryRun  bool      `json:"dry_run"`
	Files   []OldFile `json:"files"`
	Deleted []string  `json:"deleted_files"`
}

// Run removes old files and then empty directories. With dryRun nothing is
// deleted and Deleted stays empty.
func (c *Cleaner) Run(dryRun bool) (*Report, error) {
	old, err := c.FindOld()
	if err != nil {
		return nil, err
	}

	res := &Report{DryRun: dryRun, Files: old, Deleted: []string{}}
	if len(old) == 0 {
		c.log.Info("no files to clean up", "root", c.root)
		return res, nil
	}

	c.log.Info("old files found", "count", len(old), "retention_days", c.retentionDays, "dry_run", dryRun)
	if dryRun {
		return res, nil
	}

	for _, f := range old {
		if err := os.Remove(f.Path); err != nil {
			c.log.Error("failed to delete file", "path", f.Path, "error", err)
			continue
		}
		c.log.Info("deleted", "path", f.Path, "age_days", fmt.Sprintf("%.1f", f.AgeDays))
		res.Deleted = append(res.Deleted, f.Path)
	}

	c.removeEmptyDirs()
	return res, nil
}

// removeEmptyDirs deletes empty directories below root, deepest first.
func (c *Cleaner) removeEmptyDirs() {
	var dirs []string
	filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != c.root {
			if c.inLive(path) {
				return filepath.SkipDir
			}
			dirs = append(dirs, path)
		}
		return nil
	})

	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(d); err == nil {
			c.log.Info("removed empty directory", "path", d)
		}
	}
}

// Summarize reports what a cleanup would delete and what the live subtree
// holds.
func (c *Cleaner) Summarize() (*Summary, error) {
	old, err := c.FindOld()
	if err != nil {
		return nil, err
	}

	s := &Summary{FilesToDelete: len(old), RetentionDays: c.retentionDays}
	for _, f := range old {
		s.TotalSizeBytes += f.Size
	}
	s.TotalSizeMB = toMB(s.TotalSizeBytes)

	var liveBytes int64
	filepath.WalkDir(filepath.Join(c.root, LiveDir), func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			s.LiveFilesPreserved++
			liveBytes += info.Size()
		}
		return nil
	})
	s.LiveSizeMB = toMB(liveBytes)
	return s, nil
}

// RetentionDays returns the retention period in effect.
func (c *Cleaner) RetentionDays() int { return c.retentionDays }

func toMB(n int64) float64 {
	return float64(n) / (1024 * 1024)
}
