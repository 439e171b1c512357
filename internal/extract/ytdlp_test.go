package extract

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

// fakeRunner records the last invocation and writes a canned reply.
type fakeRunner struct {
	name   string
	args   []string
	output string
	err    error
}

func (f *fakeRunner) run(ctx context.Context, w io.Writer, name string, args ...string) error {
	f.name = name
	f.args = args
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, f.output)
	return err
}

func newTestYtDlp(f *fakeRunner) *YtDlp {
	return NewYtDlp(Options{Runner: f.run})
}

func TestResolveListingSingleItem(t *testing.T) {
	f := &fakeRunner{output: `{"id":"abc123","title":"Show","is_live":true,"live_status":"is_live"}`}
	y := newTestYtDlp(f)

	l, err := y.ResolveListing(context.Background(), "https://www.youtube.com/@a/live")
	if err != nil {
		t.Fatalf("ResolveListing() error: %v", err)
	}
	if l.IsPlaylist() {
		t.Error("single item should not be a playlist")
	}
	if !l.Live() || l.ID != "abc123" || l.Title != "Show" {
		t.Errorf("unexpected listing: %+v", l)
	}
	if f.name != "yt-dlp" {
		t.Errorf("binary = %q, want yt-dlp", f.name)
	}
	if f.args[len(f.args)-1] != "https://www.youtube.com/@a/live" || f.args[len(f.args)-2] != "--" {
		t.Errorf("url must be passed after --, got %v", f.args)
	}
	if !slices.Contains(f.args, "--flat-playlist") {
		t.Errorf("listing should be flat: %v", f.args)
	}
}

func TestResolveListingEntries(t *testing.T) {
	f := &fakeRunner{output: `{"_type":"playlist","id":"UC1","entries":[null,{"title":"no id"},{"id":"v1","live_status":"was_live"},{"id":"v2","live_status":"is_live"}]}`}
	y := newTestYtDlp(f)

	l, err := y.ResolveListing(context.Background(), "https://www.youtube.com/@a/streams")
	if err != nil {
		t.Fatalf("ResolveListing() error: %v", err)
	}
	if !l.IsPlaylist() || len(l.Entries) != 4 {
		t.Fatalf("expected 4 entries, got %+v", l.Entries)
	}
	if l.Entries[0] != nil {
		t.Error("null entry should decode as nil")
	}
	if l.Entries[2].Live() {
		t.Error("was_live entry should not be live")
	}
	if !l.Entries[3].Live() {
		t.Error("is_live entry should be live")
	}
}

func TestResolveListingErrors(t *testing.T) {
	tests := []struct {
		name string
		f    *fakeRunner
	}{
		{"runner error", &fakeRunner{err: errors.New("exit status 1")}},
		{"empty output", &fakeRunner{output: "  \n"}},
		{"bad json", &fakeRunner{output: "ERROR: not live"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestYtDlp(tt.f).ResolveListing(context.Background(), "https://www.youtube.com/@a")
			if err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestResolveMedia(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    []string
		wantErr bool
	}{
		{
			name:   "separate video and audio",
			output: `{"requested_formats":[{"url":"https://v","vcodec":"avc1","acodec":"none"},{"url":"https://a","vcodec":"none","acodec":"mp4a"}]}`,
			want:   []string{"https://v", "https://a"},
		},
		{
			name:   "audio listed first is reordered",
			output: `{"requested_formats":[{"url":"https://a","vcodec":"none","acodec":"opus"},{"url":"https://v","vcodec":"vp9","acodec":"none"}]}`,
			want:   []string{"https://v", "https://a"},
		},
		{
			name:   "single muxed stream",
			output: `{"url":"https://muxed","vcodec":"avc1","acodec":"mp4a"}`,
			want:   []string{"https://muxed"},
		},
		{
			name:    "no url",
			output:  `{"id":"x"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeRunner{output: tt.output}
			locs, err := newTestYtDlp(f).ResolveMedia(context.Background(), "https://www.youtube.com/watch?v=x", "best")
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveMedia() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrNoMedia) {
					t.Errorf("error should wrap ErrNoMedia: %v", err)
				}
				return
			}
			var got []string
			for _, l := range locs {
				got = append(got, l.URL)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("locators = %v, want %v", got, tt.want)
			}
			if !slices.Contains(f.args, "best") {
				t.Errorf("format selector not passed: %v", f.args)
			}
		})
	}
}

func TestCookieArgs(t *testing.T) {
	dir := t.TempDir()
	cookies := filepath.Join(dir, "cookies.txt")

	y := NewYtDlp(Options{CookiesFile: cookies, CookiesBrowser: "firefox"})
	if got := y.cookieArgs(); !slices.Equal(got, []string{"--cookies-from-browser", "firefox"}) {
		t.Errorf("missing cookie file should fall back to browser, got %v", got)
	}

	if err := os.WriteFile(cookies, []byte("# Netscape HTTP Cookie File\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := y.cookieArgs(); !slices.Equal(got, []string{"--cookies", cookies}) {
		t.Errorf("existing cookie file should be used, got %v", got)
	}

	if got := NewYtDlp(Options{}).cookieArgs(); got != nil {
		t.Errorf("no cookie config should give no args, got %v", got)
	}
}

func TestDownloadArgs(t *testing.T) {
	f := &fakeRunner{}
	y := newTestYtDlp(f)

	err := y.Download(context.Background(), "https://www.youtube.com/watch?v=x", DownloadOptions{
		Format:       "best",
		Output:       "/tmp/out.mp4",
		MergeFormat:  "mp4",
		WaitForVideo: true,
	})
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	for _, want := range []string{"-o", "/tmp/out.mp4", "--merge-output-format", "mp4", "--wait-for-video"} {
		if !slices.Contains(f.args, want) {
			t.Errorf("args %v missing %q", f.args, want)
		}
	}

	if err := y.Download(context.Background(), "https://x", DownloadOptions{}); err == nil {
		t.Error("missing output path should fail")
	}
}

func TestDownloadAudioOnly(t *testing.T) {
	f := &fakeRunner{}
	y := newTestYtDlp(f)

	if err := y.Download(context.Background(), "https://x", DownloadOptions{Output: "a.mp3", AudioOnly: true, MergeFormat: "mp4"}); err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if !slices.Contains(f.args, "-x") || !slices.Contains(f.args, "mp3") {
		t.Errorf("audio-only args missing: %v", f.args)
	}
	if slices.Contains(f.args, "--merge-output-format") {
		t.Errorf("audio-only should not merge video: %v", f.args)
	}
}

func TestInfo(t *testing.T) {
	f := &fakeRunner{output: `{"id":"x","title":"T","uploader":"U","duration":125,"view_count":7,"formats":[{"format_id":"18","ext":"mp4"}]}`}
	info, err := newTestYtDlp(f).Info(context.Background(), "https://www.youtube.com/watch?v=x")
	if err != nil {
		t.Fatalf("Info() error: %v", err)
	}
	if info.Title != "T" || info.Uploader != "U" || info.Duration != 125 || len(info.Formats) != 1 {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestLastLine(t *testing.T) {
	if got := lastLine("a\nb\nERROR: gone\n"); got != "ERROR: gone" {
		t.Errorf("lastLine = %q", got)
	}
	if got := lastLine(""); got != "" {
		t.Errorf("lastLine(\"\") = %q", got)
	}
}

var _ Extractor = (*YtDlp)(nil)
var _ Downloader = (*YtDlp)(nil)
var _ Inspector = (*YtDlp)(nil)
