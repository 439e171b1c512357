package api

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"livewatch/internal/cleanup"
	"livewatch/internal/download"
	"livewatch/internal/httputil"
	"livewatch/internal/monitor"
)

type monitorStatusResponse struct {
	IsRunning      bool             `json:"is_running"`
	ActiveChannels int              `json:"active_channels"`
	TotalChannels  int              `json:"total_channels"`
	Monitors       []monitor.Status `json:"monitors"`
}

// MonitorStatus handles GET /api/monitor/status.
func (h *Handler) MonitorStatus(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.ListSources(r.Context(), false)
	if err != nil {
		h.fail(w, "list sources failed", err)
		return
	}
	active := 0
	for _, s := range all {
		if s.Enabled {
			active++
		}
	}
	writeJSON(w, http.StatusOK, monitorStatusResponse{
		IsRunning:      h.supervisor.Running(),
		ActiveChannels: active,
		TotalChannels:  len(all),
		Monitors:       h.supervisor.Statuses(),
	})
}

// StartMonitor handles POST /api/monitor/start.
func (h *Handler) StartMonitor(w http.ResponseWriter, r *http.Request) {
	if h.supervisor.Running() {
		writeError(w, http.StatusBadRequest, "monitor is already running")
		return
	}
	sources, err := h.store.ListSources(r.Context(), true)
	if err != nil {
		h.fail(w, "list sources failed", err)
		return
	}
	if len(sources) == 0 {
		writeError(w, http.StatusBadRequest, "no enabled sources to monitor")
		return
	}
	settings, err := h.store.Settings(r.Context())
	if err != nil {
		h.fail(w, "load settings failed", err)
		return
	}
	if err := h.supervisor.Start(h.ctx, sources, settings); err != nil {
		h.fail(w, "start monitor failed", err)
		return
	}
	h.log.Info("monitor started", slog.Int("sources", len(sources)))
	writeJSON(w, http.StatusOK, messageBody{Message: "monitor started"})
}

// StopMonitor handles POST /api/monitor/stop.
func (h *Handler) StopMonitor(w http.ResponseWriter, r *http.Request) {
	if !h.supervisor.Running() {
		writeError(w, http.StatusBadRequest, "monitor is not running")
		return
	}
	if err := h.supervisor.StopAll(); err != nil {
		h.log.Warn("monitor stopped with recordings still running", slog.Any("error", err))
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "monitor stopped"})
}

type videoRequest struct {
	URL       string `json:"url"`
	Quality   string `json:"quality"`
	AudioOnly bool   `json:"audio_only"`
}

type videoInfoResponse struct {
	Success   bool    `json:"success"`
	Title     string  `json:"title"`
	Uploader  string  `json:"uploader"`
	Duration  float64 `json:"duration"`
	ViewCount int64   `json:"view_count"`
	Thumbnail string  `json:"thumbnail"`
}

// VideoInfo handles POST /api/video/info. A lookup exceeding InfoTimeout
// answers 408.
func (h *Handler) VideoInfo(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := httputil.ValidateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.InfoTimeout)
	defer cancel()

	info, err := h.downloads.Info(ctx, req.URL)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			h.log.Error("video info timed out", slog.String("url", req.URL))
			writeError(w, http.StatusRequestTimeout, "request timeout: the site took too long to respond")
			return
		}
		h.fail(w, "video info failed", err)
		return
	}

	resp := videoInfoResponse{
		Success:   true,
		Title:     info.Title,
		Uploader:  info.Uploader,
		Duration:  info.Duration,
		ViewCount: info.ViewCount,
		Thumbnail: info.Thumbnail,
	}
	if resp.Title == "" {
		resp.Title = "Unknown"
	}
	if resp.Uploader == "" {
		resp.Uploader = "Unknown"
	}
	writeJSON(w, http.StatusOK, resp)
}

type downloadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	*download.Result
}

// downloadDir returns the directory on-demand downloads are written to.
func (h *Handler) downloadDir(ctx context.Context) (string, error) {
	s, err := h.store.Settings(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.RootDirectory, download.WebDir), nil
}

// Download handles POST /api/download.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := httputil.ValidateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dir, err := h.downloadDir(r.Context())
	if err != nil {
		h.fail(w, "load settings failed", err)
		return
	}

	res, err := h.downloads.Download(r.Context(), download.Request{
		URL:       req.URL,
		Dir:       dir,
		Quality:   req.Quality,
		AudioOnly: req.AudioOnly,
	})
	if err != nil {
		h.fail(w, "download failed", err)
		return
	}
	h.log.Info("download completed", slog.String("file", res.Path))
	writeJSON(w, http.StatusOK, downloadResponse{Success: true, Message: "download completed", Result: res})
}

// DownloadFile handles GET /api/download/file/{filename}. Only files inside
// the downloads directory are served.
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	dir, err := h.downloadDir(r.Context())
	if err != nil {
		h.fail(w, "load settings failed", err)
		return
	}
	path, err := httputil.SafeDownloadPath(dir, chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		h.fail(w, "open download failed", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	name := filepath.Base(path)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), f)
}

type cleanupRequest struct {
	RetentionDays int  `json:"retention_days"`
	DryRun        bool `json:"dry_run"`
}

type cleanupFile struct {
	Path    string  `json:"path"`
	AgeDays float64 `json:"age_days"`
}

type dryRunResponse struct {
	DryRun        bool          `json:"dry_run"`
	FilesToDelete int           `json:"files_to_delete"`
	TotalSizeMB   float64       `json:"total_size_mb"`
	Files         []cleanupFile `json:"files"`
}

type cleanupResponse struct {
	DryRun       bool     `json:"dry_run"`
	DeletedCount int      `json:"deleted_count"`
	DeletedFiles []string `json:"deleted_files"`
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// CleanupStatus handles GET /api/cleanup/status.
func (h *Handler) CleanupStatus(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Settings(r.Context())
	if err != nil {
		h.fail(w, "load settings failed", err)
		return
	}
	summary, err := cleanup.New(s.RootDirectory, h.RetentionDays, h.log).Summarize()
	if err != nil {
		h.fail(w, "cleanup summary failed", err)
		return
	}
	summary.TotalSizeMB = round(summary.TotalSizeMB, 2)
	summary.LiveSizeMB = round(summary.LiveSizeMB, 2)
	writeJSON(w, http.StatusOK, summary)
}

// RunCleanup handles POST /api/cleanup. retention_days defaults to the
// configured retention.
func (h *Handler) RunCleanup(w http.ResponseWriter, r *http.Request) {
	req := cleanupRequest{RetentionDays: h.RetentionDays}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RetentionDays < 0 {
		writeError(w, http.StatusBadRequest, "retention_days must be positive")
		return
	}
	s, err := h.store.Settings(r.Context())
	if err != nil {
		h.fail(w, "load settings failed", err)
		return
	}

	c := cleanup.New(s.RootDirectory, req.RetentionDays, h.log)
	rep, err := c.Run(req.DryRun)
	if err != nil {
		h.fail(w, "cleanup failed", err)
		return
	}

	if req.DryRun {
		resp := dryRunResponse{DryRun: true, FilesToDelete: len(rep.Files), Files: make([]cleanupFile, 0, len(rep.Files))}
		var total int64
		for _, f := range rep.Files {
			total += f.Size
			resp.Files = append(resp.Files, cleanupFile{Path: f.Path, AgeDays: round(f.AgeDays, 1)})
		}
		resp.TotalSizeMB = round(float64(total)/(1024*1024), 2)
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{DeletedCount: len(rep.Deleted), DeletedFiles: rep.Deleted})
}
