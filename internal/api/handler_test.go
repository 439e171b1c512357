package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"livewatch/internal/detect"
	"livewatch/internal/download"
	"livewatch/internal/extract"
	"livewatch/internal/logger"
	"livewatch/internal/media"
	"livewatch/internal/metrics"
	"livewatch/internal/monitor"
	"livewatch/internal/record"
	"livewatch/internal/source"
	"livewatch/internal/store"
)

type notLive struct{}

func (notLive) CheckLive(context.Context, string) (bool, *detect.Result) { return false, nil }

type noRecord struct{}

func (noRecord) Record(context.Context, record.Request) bool { return true }

type fakeEngine struct {
	info  *media.Info
	err   error
	delay time.Duration
}

func (f *fakeEngine) Download(_ context.Context, _ string, opts extract.DownloadOptions) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(opts.Output, []byte("media"), 0644)
}

func (f *fakeEngine) Info(ctx context.Context, _ string) (*media.Info, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.info, f.err
}

type testEnv struct {
	h      *Handler
	srv    http.Handler
	store  store.Store
	sup    *monitor.Supervisor
	engine *fakeEngine
	root   string
}

func newTestHandler(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.OpenJSON(filepath.Join(t.TempDir(), "sources.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	root := t.TempDir()
	if _, err := st.UpdateSettings(context.Background(), source.SettingsPatch{RootDirectory: &root}); err != nil {
		t.Fatalf("set root: %v", err)
	}

	log := logger.Discard()
	sup := monitor.NewSupervisor(notLive{}, noRecord{}, log, nil)
	sup.StopTimeout = time.Second
	t.Cleanup(func() { _ = sup.StopAll() })

	engine := &fakeEngine{info: &media.Info{Title: "Talk", Uploader: "Chan", Duration: 61, ViewCount: 7}}
	h := NewHandler(context.Background(), st, sup, download.New(engine, engine, nil), log, metrics.New())
	h.RetentionDays = 7
	return &testEnv{h: h, srv: h.Router(), store: st, sup: sup, engine: engine, root: root}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (e *testEnv) addSource(t *testing.T, name, url string, enabled bool) source.Source {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/sources", map[string]any{"name": name, "url": url, "enabled": enabled})
	if rec.Code != http.StatusOK {
		t.Fatalf("create source: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	return decodeBody[source.Source](t, rec)
}

func TestHandler_CreateAndGetSource(t *testing.T) {
	e := newTestHandler(t)

	src := e.addSource(t, "Alpha", "https://www.youtube.com/watch?v=x&list=PL1", true)
	if src.ID == "" {
		t.Fatal("expected an id")
	}
	if src.Address != "https://www.youtube.com/watch?v=x" {
		t.Errorf("address not normalized: %q", src.Address)
	}
	if src.Format != source.DefaultFormat {
		t.Errorf("format = %q", src.Format)
	}

	rec := e.do(t, http.MethodGet, "/api/sources/"+src.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeBody[source.Source](t, rec); got != src {
		t.Errorf("got %+v, want %+v", got, src)
	}
}

func TestHandler_CreateSource_bad_request(t *testing.T) {
	e := newTestHandler(t)
	e.addSource(t, "Alpha", "https://www.youtube.com/@alpha", true)

	tests := []struct {
		name string
		body any
	}{
		{"duplicate url", map[string]any{"name": "Other", "url": "https://www.youtube.com/@alpha"}},
		{"missing name", map[string]any{"url": "https://www.youtube.com/@beta"}},
		{"bad scheme", map[string]any{"name": "B", "url": "ftp://example.com"}},
		{"not json", "nope"},
	}
	for _, tt := range tests {
		rec := e.do(t, http.MethodPost, "/api/sources", tt.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tt.name, rec.Code)
		}
		if decodeBody[errorBody](t, rec).Detail == "" {
			t.Errorf("%s: expected an error detail", tt.name)
		}
	}
}

func TestHandler_ListSources(t *testing.T) {
	e := newTestHandler(t)

	rec := e.do(t, http.MethodGet, "/api/sources", nil)
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("empty list should encode as [], got %s", body)
	}

	e.addSource(t, "Alpha", "https://www.youtube.com/@alpha", true)
	e.addSource(t, "Beta", "https://www.youtube.com/@beta", false)

	all := decodeBody[[]source.Source](t, e.do(t, http.MethodGet, "/api/sources", nil))
	if len(all) != 2 || all[0].Name != "Alpha" || all[1].Name != "Beta" {
		t.Errorf("unexpected list: %+v", all)
	}
	enabled := decodeBody[[]source.Source](t, e.do(t, http.MethodGet, "/api/sources?enabled_only=true", nil))
	if len(enabled) != 1 || enabled[0].Name != "Alpha" {
		t.Errorf("unexpected enabled list: %+v", enabled)
	}
}

func TestHandler_SourceNotFound(t *testing.T) {
	e := newTestHandler(t)

	for _, method := range []string{http.MethodGet, http.MethodPatch, http.MethodDelete} {
		rec := e.do(t, method, "/api/sources/missing", map[string]any{"name": "x"})
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", method, rec.Code)
		}
	}
	if rec := e.do(t, http.MethodGet, "/api/sources/bad%20id", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id: expected 400, got %d", rec.Code)
	}
}

func TestHandler_MonitorLifecycle(t *testing.T) {
	e := newTestHandler(t)

	if rec := e.do(t, http.MethodPost, "/api/monitor/stop", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("stop while idle: expected 400, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/api/monitor/start", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("start without sources: expected 400, got %d", rec.Code)
	}

	a := e.addSource(t, "Alpha", "https://www.youtube.com/@alpha", true)
	e.addSource(t, "Beta", "https://www.youtube.com/@beta", false)

	if rec := e.do(t, http.MethodPost, "/api/monitor/start", nil); rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := e.do(t, http.MethodPost, "/api/monitor/start", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("second start: expected 400, got %d", rec.Code)
	}

	status := decodeBody[monitorStatusResponse](t, e.do(t, http.MethodGet, "/api/monitor/status", nil))
	if !status.IsRunning || status.ActiveChannels != 1 || status.TotalChannels != 2 {
		t.Errorf("unexpected status: %+v", status)
	}
	if len(status.Monitors) != 1 || status.Monitors[0].ID != a.ID {
		t.Errorf("unexpected monitors: %+v", status.Monitors)
	}

	if rec := e.do(t, http.MethodPost, "/api/monitor/stop", nil); rec.Code != http.StatusOK {
		t.Errorf("stop: expected 200, got %d", rec.Code)
	}
	if e.sup.Running() || e.sup.Len() != 0 {
		t.Error("supervisor should be stopped and empty")
	}
}

func TestHandler_SourceChangesReachRunningSupervisor(t *testing.T) {
	e := newTestHandler(t)
	a := e.addSource(t, "Alpha", "https://www.youtube.com/@alpha", true)

	if rec := e.do(t, http.MethodPost, "/api/monitor/start", nil); rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", rec.Code)
	}

	b := e.addSource(t, "Beta", "https://www.youtube.com/@beta", true)
	if !e.sup.Has(b.ID) {
		t.Error("enabled source created while running should be monitored")
	}
	c := e.addSource(t, "Gamma", "https://www.youtube.com/@gamma", false)
	if e.sup.Has(c.ID) {
		t.Error("disabled source must not be monitored")
	}

	if rec := e.do(t, http.MethodPatch, "/api/sources/"+a.ID, map[string]any{"enabled": false}); rec.Code != http.StatusOK {
		t.Fatalf("disable: expected 200, got %d", rec.Code)
	}
	if e.sup.Has(a.ID) {
		t.Error("disabled source should stop being monitored")
	}

	if rec := e.do(t, http.MethodPatch, "/api/sources/"+c.ID, map[string]any{"enabled": true}); rec.Code != http.StatusOK {
		t.Fatalf("enable: expected 200, got %d", rec.Code)
	}
	if !e.sup.Has(c.ID) {
		t.Error("enabled source should be monitored")
	}

	if rec := e.do(t, http.MethodDelete, "/api/sources/"+b.ID, nil); rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
	if e.sup.Has(b.ID) {
		t.Error("deleted source should stop being monitored")
	}
	if _, err := e.store.GetSource(context.Background(), b.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("deleted source still stored: %v", err)
	}
}

func TestHandler_Settings(t *testing.T) {
	e := newTestHandler(t)

	s := decodeBody[source.Settings](t, e.do(t, http.MethodGet, "/api/settings", nil))
	if s.RootDirectory != e.root || s.SplitPolicy != source.SplitTime {
		t.Errorf("unexpected settings: %+v", s)
	}

	rec := e.do(t, http.MethodPatch, "/api/settings", map[string]any{"split_mode": "size", "split_size_mb": 100})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[source.Settings](t, rec)
	if got.SplitPolicy != source.SplitSize || got.SplitSizeMB != 100 {
		t.Errorf("unexpected settings: %+v", got)
	}
	if e.sup.Settings().SplitPolicy != source.SplitSize {
		t.Error("supervisor snapshot not updated")
	}

	for _, body := range []map[string]any{
		{"split_mode": "hourly"},
		{"check_interval_seconds": 0},
	} {
		if rec := e.do(t, http.MethodPatch, "/api/settings", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%v: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestHandler_VideoInfo(t *testing.T) {
	e := newTestHandler(t)

	rec := e.do(t, http.MethodPost, "/api/video/info", map[string]any{"url": "https://www.youtube.com/watch?v=x"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	info := decodeBody[videoInfoResponse](t, rec)
	if !info.Success || info.Title != "Talk" || info.Uploader != "Chan" || info.ViewCount != 7 {
		t.Errorf("unexpected info: %+v", info)
	}

	if rec := e.do(t, http.MethodPost, "/api/video/info", map[string]any{"url": "nope"}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad url: expected 400, got %d", rec.Code)
	}
}

func TestHandler_VideoInfo_timeout(t *testing.T) {
	e := newTestHandler(t)
	e.h.InfoTimeout = 20 * time.Millisecond
	e.engine.delay = time.Second

	rec := e.do(t, http.MethodPost, "/api/video/info", map[string]any{"url": "https://www.youtube.com/watch?v=x"})
	if rec.Code != http.StatusRequestTimeout {
		t.Errorf("expected 408, got %d", rec.Code)
	}
}

func TestHandler_DownloadAndServeFile(t *testing.T) {
	e := newTestHandler(t)

	rec := e.do(t, http.MethodPost, "/api/download", map[string]any{"url": "https://www.youtube.com/watch?v=x", "quality": "720"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	res := decodeBody[downloadResponse](t, rec)
	if !res.Success || res.Result == nil {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
	if res.Dir != filepath.Join(e.root, download.WebDir) {
		t.Errorf("download_directory = %q", res.Dir)
	}
	if !strings.HasPrefix(res.Filename, "video_") || !strings.HasSuffix(res.Filename, ".mp4") {
		t.Errorf("filename = %q", res.Filename)
	}

	file := e.do(t, http.MethodGet, "/api/download/file/"+res.Filename, nil)
	if file.Code != http.StatusOK || file.Body.String() != "media" {
		t.Errorf("serve file: got %d %q", file.Code, file.Body.String())
	}
	if cd := file.Header().Get("Content-Disposition"); !strings.Contains(cd, res.Filename) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	if rec := e.do(t, http.MethodGet, "/api/download/file/missing.mp4", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing file: expected 404, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/api/download", map[string]any{"url": "https://a/b", "quality": "8k"}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad quality: expected 400, got %d", rec.Code)
	}
}

func TestHandler_DownloadFailure(t *testing.T) {
	e := newTestHandler(t)
	e.engine.err = errors.New("exit status 1")

	rec := e.do(t, http.MethodPost, "/api/download", map[string]any{"url": "https://www.youtube.com/watch?v=x"})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestHandler_Cleanup(t *testing.T) {
	e := newTestHandler(t)

	old := filepath.Join(e.root, "Alpha", "old.mp4")
	live := filepath.Join(e.root, "live", "keep.mp4")
	for _, p := range []string{old, live} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, make([]byte, 1024), 0644); err != nil {
			t.Fatal(err)
		}
		past := time.Now().Add(-30 * 24 * time.Hour)
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatal(err)
		}
	}

	status := decodeBody[map[string]any](t, e.do(t, http.MethodGet, "/api/cleanup/status", nil))
	if status["files_to_delete"] != float64(1) || status["live_files_preserved"] != float64(1) {
		t.Errorf("unexpected status: %v", status)
	}

	dry := decodeBody[dryRunResponse](t, e.do(t, http.MethodPost, "/api/cleanup", map[string]any{"dry_run": true}))
	if !dry.DryRun || dry.FilesToDelete != 1 || len(dry.Files) != 1 || dry.Files[0].Path != old {
		t.Errorf("unexpected dry run: %+v", dry)
	}
	if _, err := os.Stat(old); err != nil {
		t.Error("dry run must not delete")
	}

	res := decodeBody[cleanupResponse](t, e.do(t, http.MethodPost, "/api/cleanup", nil))
	if res.DryRun || res.DeletedCount != 1 {
		t.Errorf("unexpected cleanup: %+v", res)
	}
	if _, err := os.Stat(live); err != nil {
		t.Error("live files must be preserved")
	}
}

func TestHandler_Metrics(t *testing.T) {
	e := newTestHandler(t)
	e.do(t, http.MethodGet, "/api/sources", nil)

	rec := e.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "active_monitors") {
		t.Errorf("metrics output missing gauge:\n%s", rec.Body.String())
	}
}
