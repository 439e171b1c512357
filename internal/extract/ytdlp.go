package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"livewatch/internal/media"
)

// ErrNoMedia is returned when the extraction engine yields no playable locator.
var ErrNoMedia = errors.New("no playable media found")

// listingLimit bounds how many entries of a listing are fetched.
const listingLimit = 30

// Runner executes a command, writing its stdout to w.
type Runner func(ctx context.Context, w io.Writer, name string, args ...string) error

// Options configures the yt-dlp backed extractor.
type Options struct {
	Path           string // yt-dlp binary, default "yt-dlp"
	CookiesFile    string // Netscape cookies file, used when it exists
	CookiesBrowser string // browser to read cookies from otherwise
	Runner         Runner // nil uses os/exec
}

// YtDlp implements Extractor, Downloader and Inspector.
type YtDlp struct {
	path           string
	cookiesFile    string
	cookiesBrowser string
	run            Runner
}

// NewYtDlp returns a yt-dlp backed extractor.
func NewYtDlp(opts Options) *YtDlp {
	y := &YtDlp{
		path:           opts.Path,
		cookiesFile:    opts.CookiesFile,
		cookiesBrowser: opts.CookiesBrowser,
		run:            opts.Runner,
	}
	if y.path == "" {
		y.path = "yt-dlp"
	}
	if y.run == nil {
		y.run = ExecRunner
	}
	return y
}

// ResolveListing implements Extractor.
func (y *YtDlp) ResolveListing(ctx context.Context, url string) (*media.Listing, error) {
	args := []string{
		"-J",
		"--flat-playlist",
		"--no-warnings",
		"--playlist-end", fmt.Sprint(listingLimit),
	}
	args = append(args, y.cookieArgs()...)
	args = append(args, "--", url)

	var listing media.Listing
	if err := y.runJSON(ctx, &listing, args...); err != nil {
		return nil, fmt.Errorf("resolving listing %s: %w", url, err)
	}
	return &listing, nil
}

// ResolveMedia implements Extractor.
func (y *YtDlp) ResolveMedia(ctx context.Context, url, format string) ([]media.Locator, error) {
	args := []string{"-J", "--no-warnings", "--no-playlist"}
	if format != "" {
		args = append(args, "-f", format)
	}
	args = append(args, y.cookieArgs()...)
	args = append(args, "--", url)

	var info struct {
		media.Locator
		RequestedFormats []media.Locator `json:"requested_formats"`
	}
	if err := y.runJSON(ctx, &info, args...); err != nil {
		return nil, fmt.Errorf("resolving media %s: %w", url, err)
	}
	return pickLocators(info.Locator, info.RequestedFormats)
}

// pickLocators chooses at most one video and one audio locator, video first.
func pickLocators(single media.Locator, requested []media.Locator) ([]media.Locator, error) {
	if len(requested) >= 2 {
		video, audio := requested[0], requested[1]
		if !video.HasVideo() && audio.HasVideo() {
			video, audio = audio, video
		}
		if video.URL == "" || audio.URL == "" {
			return nil, ErrNoMedia
		}
		return []media.Locator{video, audio}, nil
	}
	if len(requested) == 1 && requested[0].URL != "" {
		return []media.Locator{requested[0]}, nil
	}
	if single.URL != "" {
		return []media.Locator{single}, nil
	}
	return nil, ErrNoMedia
}

// Info implements Inspector.
func (y *YtDlp) Info(ctx context.Context, url string) (*media.Info, error) {
	args := []string{"-J", "--no-warnings", "--no-playlist", "--skip-download"}
	args = append(args, y.cookieArgs()...)
	args = append(args, "--", url)

	var info media.Info
	if err := y.runJSON(ctx, &info, args...); err != nil {
		return nil, fmt.Errorf("fetching info %s: %w", url, err)
	}
	return &info, nil
}

// Download implements Downloader.
func (y *YtDlp) Download(ctx context.Context, url string, opts DownloadOptions) error {
	if opts.Output == "" {
		return fmt.Errorf("download %s: output path required", url)
	}
	args := []string{"--no-playlist", "--newline", "-o", opts.Output}
	if opts.Format != "" {
		args = append(args, "-f", opts.Format)
	}
	if opts.AudioOnly {
		args = append(args, "-x", "--audio-format", "mp3", "--audio-quality", "192K")
	} else if opts.MergeFormat != "" {
		args = append(args,
			"--merge-output-format", opts.MergeFormat,
			"--remux-video", opts.MergeFormat,
		)
	}
	if opts.WaitForVideo {
		args = append(args, "--wait-for-video", "5-20")
	}
	args = append(args, y.cookieArgs()...)
	args = append(args, "--", url)

	w := opts.Progress
	if w == nil {
		w = io.Discard
	}
	if err := y.run(ctx, w, y.path, args...); err != nil {
		return fmt.Errorf("downloading %s: %w", url, err)
	}
	return nil
}

// cookieArgs prefers a cookies file when present, then browser cookies.
func (y *YtDlp) cookieArgs() []string {
	if y.cookiesFile != "" {
		if _, err := os.Stat(y.cookiesFile); err == nil {
			return []string{"--cookies", y.cookiesFile}
		}
	}
	if y.cookiesBrowser != "" {
		return []string{"--cookies-from-browser", y.cookiesBrowser}
	}
	return nil
}

func (y *YtDlp) runJSON(ctx context.Context, v any, args ...string) error {
	var out bytes.Buffer
	if err := y.run(ctx, &out, y.path, args...); err != nil {
		return err
	}
	data := bytes.TrimSpace(out.Bytes())
	if len(data) == 0 {
		return fmt.Errorf("%s produced no output", y.path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s output: %w", y.path, err)
	}
	return nil
}

// ExecRunner runs name with explicit arguments (no shell) and reports the
// last line of stderr on failure.
func ExecRunner(ctx context.Context, w io.Writer, name string, args ...string) error {
	bin, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH: %w", name, err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = w
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := lastLine(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
