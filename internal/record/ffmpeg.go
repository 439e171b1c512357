package record

import (
	"context"
	"fmt"
	"io"

	"livewatch/internal/extract"
)

// Muxer runs the muxing engine once and blocks until it exits.
type Muxer interface {
	Mux(ctx context.Context, args []string) error
}

// FFmpeg runs the ffmpeg binary with an explicit argument slice.
type FFmpeg struct {
	path     string
	run      extract.Runner
	progress io.Writer
}

// NewFFmpeg returns an ffmpeg muxer. An empty path means "ffmpeg" from
// PATH; a nil run uses os/exec. progress receives ffmpeg's stdout and may
// be nil.
func NewFFmpeg(path string, run extract.Runner, progress io.Writer) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	if run == nil {
		run = extract.ExecRunner
	}
	if progress == nil {
		progress = io.Discard
	}
	return &FFmpeg{path: path, run: run, progress: progress}
}

// Mux implements Muxer. A non-zero exit is returned as an error.
func (f *FFmpeg) Mux(ctx context.Context, args []string) error {
	full := append([]string{"-hide_banner", "-loglevel", "error", "-y"}, args...)
	if err := f.run(ctx, f.progress, f.path, full...); err != nil {
		return fmt.Errorf("ffmpeg segmented recording failed: %w", err)
	}
	return nil
}
