// Package download fetches single, finished videos on demand.
// Output paths are validated against directory traversal and the
// extraction engine is always called with an explicit argument list.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"livewatch/internal/extract"
	"livewatch/internal/httputil"
	"livewatch/internal/media"
	"livewatch/internal/source"
)

// WebDir is the subdirectory of the recording root used for downloads
// requested through the control surface.
const WebDir = "web_downloads"

// Qualities lists the accepted quality values, best first.
var Qualities = []string{"best", "2160", "1440", "1080", "720", "480", "360"}

// ErrInvalidQuality is returned for a quality not in Qualities.
var ErrInvalidQuality = errors.New("unsupported quality")

// FormatString returns the extraction format selector for a quality.
func FormatString(quality string, audioOnly bool) (string, error) {
	if audioOnly {
		return "bestaudio/best", nil
	}
	if quality == "" || quality == "best" {
		return "bestvideo+bestaudio/best", nil
	}
	for _, q := range Qualities {
		if q == quality {
			return fmt.Sprintf("bestvideo[height<=%s]+bestaudio/best[height<=%s]", quality, quality), nil
		}
	}
	return "", fmt.Errorf("%w %q (valid: %s)", ErrInvalidQuality, quality, strings.Join(Qualities, ", "))
}

// Request describes one on-demand download.
type Request struct {
	URL       string
	Dir       string // output directory, created if missing
	Quality   string // one of Qualities; empty means best
	AudioOnly bool   // extract audio to mp3
	Filename  string // base name without extension; empty means a timestamped name
}

// Result describes a finished download.
type Result struct {
	Dir      string `json:"download_directory"`
	Filename string `json:"filename"`
	Path     string `json:"file_path"`
}

// Service runs on-demand downloads through the extraction engine.
type Service struct {
	downloader extract.Downloader
	inspector  extract.Inspector
	progress   io.Writer
	now        func() time.Time
}

// New creates a Service. progress receives engine output and may be nil.
func New(downloader extract.Downloader, inspector extract.Inspector, progress io.Writer) *Service {
	return &Service{
		downloader: downloader,
		inspector:  inspector,
		progress:   progress,
		now:        time.Now,
	}
}

// Download fetches req.URL into req.Dir and returns where it was written.
// A partial file is removed on failure.
func (s *Service) Download(ctx context.Context, req Request) (*Result, error) {
	if err := httputil.ValidateURL(req.URL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	format, err := FormatString(req.Quality, req.AudioOnly)
	if err != nil {
		return nil, err
	}

	absDir, err := filepath.Abs(req.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving output directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	filename := OutputName(req.Filename, req.AudioOnly, s.now())
	outputPath, err := httputil.SafeDownloadPath(absDir, filename)
	if err != nil {
		return nil, fmt.Errorf("invalid output path: %w", err)
	}

	opts := extract.DownloadOptions{
		Format:    format,
		Output:    outputPath,
		AudioOnly: req.AudioOnly,
		Progress:  s.progress,
	}
	if !req.AudioOnly {
		opts.MergeFormat = "mp4"
	}

	if err := s.downloader.Download(ctx, source.NormalizeAddress(req.URL), opts); err != nil {
		os.Remove(outputPath)
		return nil, fmt.Errorf("download failed: %w", err)
	}

	return &Result{Dir: absDir, Filename: filepath.Base(outputPath), Path: outputPath}, nil
}

// Info fetches metadata for a single video.
func (s *Service) Info(ctx context.Context, rawURL string) (*media.Info, error) {
	if err := httputil.ValidateURL(rawURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	return s.inspector.Info(ctx, source.NormalizeAddress(rawURL))
}

// OutputName returns the sanitized file name for a download.
func OutputName(base string, audioOnly bool, t time.Time) string {
	ext := ".mp4"
	prefix := "video_"
	if audioOnly {
		ext = ".mp3"
		prefix = "audio_"
	}
	if base == "" {
		base = prefix + t.Format("20060102_150405")
	}
	return httputil.SanitizeFilename(base + ext)
}
