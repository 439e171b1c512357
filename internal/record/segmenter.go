package record

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"livewatch/internal/extract"
	"livewatch/internal/media"
	"livewatch/internal/metrics"
	"livewatch/internal/source"
)

// MediaResolver resolves a watch URL into direct media locators.
type MediaResolver interface {
	ResolveMedia(ctx context.Context, url, format string) ([]media.Locator, error)
}

// Request describes one recording session.
type Request struct {
	URL      string // watch URL of the live broadcast
	Prefix   string // file name prefix
	Dir      string // output directory, created if missing
	Format   string // extraction format selector
	Settings source.Settings
}

// Segmenter records a broadcast either as one file or as a sequence of
// fixed-length segments.
type Segmenter struct {
	resolver   MediaResolver
	downloader extract.Downloader
	muxer      Muxer
	log        *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewSegmenter creates a Segmenter. m may be nil.
func NewSegmenter(resolver MediaResolver, downloader extract.Downloader, muxer Muxer, log *slog.Logger, m *metrics.Metrics) *Segmenter {
	if log == nil {
		log = slog.Default()
	}
	return &Segmenter{
		resolver:   resolver,
		downloader: downloader,
		muxer:      muxer,
		log:        log,
		metrics:    m,
		now:        time.Now,
	}
}

// Record blocks until the session ends and reports whether it succeeded.
// Failures are logged, never returned.
func (s *Segmenter) Record(ctx context.Context, req Request) bool {
	s.metrics.RecordingStarted()
	err := s.record(ctx, req)
	s.metrics.RecordingFinished(err == nil)

	if err != nil {
		s.log.Error("recording failed", "url", req.URL, "prefix", req.Prefix, "error", err)
		return false
	}
	s.log.Info("recording finished", "url", req.URL, "prefix", req.Prefix)
	return true
}

func (s *Segmenter) record(ctx context.Context, req Request) error {
	if err := os.MkdirAll(req.Dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	format := req.Format
	if format == "" {
		format = source.DefaultFormat
	}
	started := s.now()

	if req.Settings.SplitPolicy == source.SplitNone {
		out := SingleOutput(req.Dir, req.Prefix, started)
		s.log.Info("recording to single file", "url", req.URL, "output", out)
		return s.downloader.Download(ctx, req.URL, extract.DownloadOptions{
			Format:       format,
			Output:       out,
			MergeFormat:  "mp4",
			WaitForVideo: true,
		})
	}

	seconds, err := SegmentSeconds(req.Settings)
	if err != nil {
		return err
	}

	locators, err := s.resolver.ResolveMedia(ctx, req.URL, format)
	if err != nil {
		return fmt.Errorf("resolving media: %w", err)
	}

	pattern := OutputPattern(req.Dir, req.Prefix, started)
	args, err := MuxArgs(locators, seconds, pattern)
	if err != nil {
		return err
	}

	s.log.Info("recording segments",
		"url", req.URL,
		"pattern", pattern,
		"segment_seconds", seconds,
		"streams", len(locators),
	)
	return s.muxer.Mux(ctx, args)
}
