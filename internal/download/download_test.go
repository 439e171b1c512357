package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"livewatch/internal/extract"
	"livewatch/internal/media"
)

func TestFormatString(t *testing.T) {
	tests := []struct {
		quality string
		audio   bool
		want    string
		wantErr bool
	}{
		{"best", false, "bestvideo+bestaudio/best", false},
		{"", false, "bestvideo+bestaudio/best", false},
		{"720", false, "bestvideo[height<=720]+bestaudio/best[height<=720]", false},
		{"2160", false, "bestvideo[height<=2160]+bestaudio/best[height<=2160]", false},
		{"1080", true, "bestaudio/best", false},
		{"4k", false, "", true},
		{"721", false, "", true},
	}

	for _, tt := range tests {
		got, err := FormatString(tt.quality, tt.audio)
		if (err != nil) != tt.wantErr {
			t.Errorf("FormatString(%q, %v) error = %v, wantErr %v", tt.quality, tt.audio, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, ErrInvalidQuality) {
			t.Errorf("FormatString(%q) error should wrap ErrInvalidQuality: %v", tt.quality, err)
		}
		if got != tt.want {
			t.Errorf("FormatString(%q, %v) = %q, want %q", tt.quality, tt.audio, got, tt.want)
		}
	}
}

func TestOutputName(t *testing.T) {
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	tests := []struct {
		base  string
		audio bool
		want  string
	}{
		{"", false, "video_20240506_070809.mp4"},
		{"", true, "audio_20240506_070809.mp3"},
		{"talk", false, "talk.mp4"},
		{"../../etc/passwd", false, "passwd.mp4"},
	}
	for _, tt := range tests {
		if got := OutputName(tt.base, tt.audio, at); got != tt.want {
			t.Errorf("OutputName(%q, %v) = %q, want %q", tt.base, tt.audio, got, tt.want)
		}
	}
}

type fakeEngine struct {
	url   string
	opts  extract.DownloadOptions
	err   error
	write bool
	info  *media.Info
}

func (f *fakeEngine) Download(_ context.Context, url string, opts extract.DownloadOptions) error {
	f.url = url
	f.opts = opts
	if f.write {
		os.WriteFile(opts.Output, []byte("partial"), 0644)
	}
	return f.err
}

func (f *fakeEngine) Info(_ context.Context, url string) (*media.Info, error) {
	f.url = url
	return f.info, f.err
}

func newTestService(f *fakeEngine) *Service {
	s := New(f, f, nil)
	s.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	return s
}

func TestDownload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "web_downloads")
	f := &fakeEngine{}

	res, err := newTestService(f).Download(context.Background(), Request{
		URL:     "https://www.youtube.com/watch?v=abc&list=PL1",
		Dir:     dir,
		Quality: "1080",
	})
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	if f.url != "https://www.youtube.com/watch?v=abc" {
		t.Errorf("engine got %q, want normalized URL", f.url)
	}
	if f.opts.Format != "bestvideo[height<=1080]+bestaudio/best[height<=1080]" {
		t.Errorf("format = %q", f.opts.Format)
	}
	if f.opts.MergeFormat != "mp4" || f.opts.AudioOnly {
		t.Errorf("unexpected options: %+v", f.opts)
	}
	if res.Filename != "video_20240506_070809.mp4" {
		t.Errorf("filename = %q", res.Filename)
	}
	if res.Path != filepath.Join(dir, res.Filename) || f.opts.Output != res.Path {
		t.Errorf("path = %q, output = %q", res.Path, f.opts.Output)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("output directory not created: %v", err)
	}
}

func TestDownloadAudioOnly(t *testing.T) {
	f := &fakeEngine{}
	res, err := newTestService(f).Download(context.Background(), Request{
		URL:       "https://www.youtube.com/watch?v=abc",
		Dir:       t.TempDir(),
		AudioOnly: true,
		Filename:  "song",
	})
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if !f.opts.AudioOnly || f.opts.MergeFormat != "" {
		t.Errorf("unexpected options: %+v", f.opts)
	}
	if res.Filename != "song.mp3" {
		t.Errorf("filename = %q", res.Filename)
	}
}

func TestDownloadRejectsInput(t *testing.T) {
	f := &fakeEngine{}
	s := newTestService(f)

	if _, err := s.Download(context.Background(), Request{URL: "file:///etc/passwd", Dir: t.TempDir()}); err == nil {
		t.Error("expected error for non-http URL")
	}
	if _, err := s.Download(context.Background(), Request{URL: "https://a/b", Dir: t.TempDir(), Quality: "8k"}); !errors.Is(err, ErrInvalidQuality) {
		t.Errorf("expected ErrInvalidQuality, got %v", err)
	}
	if f.url != "" {
		t.Error("engine must not run for rejected input")
	}
}

func TestDownloadFailureRemovesPartial(t *testing.T) {
	dir := t.TempDir()
	f := &fakeEngine{err: errors.New("exit status 1"), write: true}

	if _, err := newTestService(f).Download(context.Background(), Request{URL: "https://a/b", Dir: dir}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(f.opts.Output); !os.IsNotExist(err) {
		t.Errorf("partial file should be removed, stat err = %v", err)
	}
}

func TestInfo(t *testing.T) {
	f := &fakeEngine{info: &media.Info{Title: "Talk", Duration: 61}}
	info, err := newTestService(f).Info(context.Background(), "https://www.youtube.com/watch?v=x&index=3")
	if err != nil {
		t.Fatalf("Info() error: %v", err)
	}
	if info.Title != "Talk" {
		t.Errorf("title = %q", info.Title)
	}
	if f.url != "https://www.youtube.com/watch?v=x" {
		t.Errorf("engine got %q", f.url)
	}
}
