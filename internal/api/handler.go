// Package api exposes the sources, settings, supervisor, downloads and
// cleanup over HTTP using chi.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"livewatch/internal/download"
	"livewatch/internal/httputil"
	"livewatch/internal/logger"
	"livewatch/internal/metrics"
	"livewatch/internal/monitor"
	"livewatch/internal/source"
	"livewatch/internal/store"
)

// DefaultInfoTimeout bounds a metadata lookup.
const DefaultInfoTimeout = 20 * time.Second

// Handler serves the control surface.
type Handler struct {
	ctx        context.Context
	store      store.Store
	supervisor *monitor.Supervisor
	downloads  *download.Service
	log        *slog.Logger
	metrics    *metrics.Metrics

	InfoTimeout   time.Duration
	RetentionDays int
}

// NewHandler returns a Handler. ctx bounds monitors started through the
// API and should live as long as the process. m may be nil to disable
// metric recording (e.g. in tests).
func NewHandler(ctx context.Context, st store.Store, sup *monitor.Supervisor, dl *download.Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		ctx:         ctx,
		store:       st,
		supervisor:  sup,
		downloads:   dl,
		log:         log,
		metrics:     m,
		InfoTimeout: DefaultInfoTimeout,
	}
}

// Router returns the chi router with every route mounted.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(h.log))
	r.Use(metrics.RequestMiddleware(h.metrics))

	if h.metrics != nil {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			h.metrics.Handler(func() { h.metrics.SetActiveMonitors(h.supervisor.Len()) }).ServeHTTP(w, r)
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/sources", func(r chi.Router) {
			r.Get("/", h.ListSources)
			r.Post("/", h.CreateSource)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetSource)
				r.Patch("/", h.UpdateSource)
				r.Delete("/", h.DeleteSource)
			})
		})
		r.Get("/settings", h.GetSettings)
		r.Patch("/settings", h.UpdateSettings)

		r.Get("/monitor/status", h.MonitorStatus)
		r.Post("/monitor/start", h.StartMonitor)
		r.Post("/monitor/stop", h.StopMonitor)

		r.Post("/video/info", h.VideoInfo)
		r.Post("/download", h.Download)
		r.Get("/download/file/{filename}", h.DownloadFile)

		r.Get("/cleanup/status", h.CleanupStatus)
		r.Post("/cleanup", h.RunCleanup)
	})
	return r
}

type errorBody struct {
	Detail string `json:"detail"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateSource),
		errors.Is(err, source.ErrInvalidSource),
		errors.Is(err, source.ErrInvalidSettings),
		errors.Is(err, download.ErrInvalidQuality):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error(msg, slog.String("error", err.Error()))
	} else {
		h.log.Debug(msg, slog.String("error", err.Error()))
	}
	writeError(w, status, err.Error())
}

// sourceID extracts and validates the {id} path parameter.
func sourceID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := httputil.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}
