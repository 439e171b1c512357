// Package extract resolves source and watch URLs into live status and
// playable media locators by driving yt-dlp.
package extract

import (
	"context"
	"io"

	"livewatch/internal/media"
)

// Extractor is the extraction engine used by detection and recording.
type Extractor interface {
	// ResolveListing returns the item or listing behind url.
	ResolveListing(ctx context.Context, url string) (*media.Listing, error)

	// ResolveMedia returns one locator, or two when video and audio are
	// delivered as separate streams (video first).
	ResolveMedia(ctx context.Context, url, format string) ([]media.Locator, error)
}

// Downloader saves a URL to disk in one piece.
type Downloader interface {
	Download(ctx context.Context, url string, opts DownloadOptions) error
}

// Inspector fetches descriptive metadata without downloading.
type Inspector interface {
	Info(ctx context.Context, url string) (*media.Info, error)
}

// DownloadOptions controls a whole-file download.
type DownloadOptions struct {
	Format       string    // yt-dlp format selector
	Output       string    // output file path
	MergeFormat  string    // container for merged video+audio, e.g. "mp4"
	AudioOnly    bool      // extract audio to mp3
	WaitForVideo bool      // wait for scheduled broadcasts to start
	Progress     io.Writer // receives yt-dlp output; nil discards it
}
