package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"livewatch/internal/httputil"
	"livewatch/internal/source"
)

type createSourceRequest struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Enabled *bool  `json:"enabled"`
	Format  string `json:"download_format"`
}

// ListSources handles GET /api/sources?enabled_only=.
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	enabledOnly, _ := strconv.ParseBool(r.URL.Query().Get("enabled_only"))
	sources, err := h.store.ListSources(r.Context(), enabledOnly)
	if err != nil {
		h.fail(w, "list sources failed", err)
		return
	}
	if sources == nil {
		sources = []source.Source{}
	}
	writeJSON(w, http.StatusOK, sources)
}

// GetSource handles GET /api/sources/{id}.
func (h *Handler) GetSource(w http.ResponseWriter, r *http.Request) {
	id, ok := sourceID(w, r)
	if !ok {
		return
	}
	src, err := h.store.GetSource(r.Context(), id)
	if err != nil {
		h.fail(w, "get source failed", err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// CreateSource handles POST /api/sources. An enabled source starts being
// monitored immediately when the supervisor runs.
func (h *Handler) CreateSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := httputil.ValidateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	created, err := h.store.AddSource(r.Context(), source.Source{
		Name:    req.Name,
		Address: req.URL,
		Enabled: enabled,
		Format:  req.Format,
	})
	if err != nil {
		h.fail(w, "create source failed", err)
		return
	}

	h.log.Info("source created", slog.String("source_id", created.ID), slog.String("source", created.Name))
	if created.Enabled {
		h.supervisor.AddAndStart(created)
	}
	writeJSON(w, http.StatusOK, created)
}

// UpdateSource handles PATCH /api/sources/{id}. While the supervisor runs,
// disabling stops the monitor, enabling starts it, and a changed name, url
// or format restarts it.
func (h *Handler) UpdateSource(w http.ResponseWriter, r *http.Request) {
	id, ok := sourceID(w, r)
	if !ok {
		return
	}
	var patch source.Patch
	if err := decode(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if patch.Address != nil {
		if err := httputil.ValidateURL(*patch.Address); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	updated, err := h.store.UpdateSource(r.Context(), id, patch)
	if err != nil {
		h.fail(w, "update source failed", err)
		return
	}

	if h.supervisor.Running() {
		switch {
		case !updated.Enabled:
			h.supervisor.RemoveAndStop(id)
		case patch.Name != nil || patch.Address != nil || patch.Format != nil:
			h.supervisor.RemoveAndStop(id)
			h.supervisor.AddAndStart(updated)
		default:
			h.supervisor.AddAndStart(updated)
		}
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteSource handles DELETE /api/sources/{id}. The monitor is stopped
// before the source is removed.
func (h *Handler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	id, ok := sourceID(w, r)
	if !ok {
		return
	}
	h.supervisor.RemoveAndStop(id)
	if err := h.store.RemoveSource(r.Context(), id); err != nil {
		h.fail(w, "delete source failed", err)
		return
	}
	h.log.Info("source deleted", slog.String("source_id", id))
	writeJSON(w, http.StatusOK, messageBody{Message: "source deleted"})
}

// GetSettings handles GET /api/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Settings(r.Context())
	if err != nil {
		h.fail(w, "get settings failed", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSettings handles PATCH /api/settings. Running monitors pick up the
// new values on their next cycle.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch source.SettingsPatch
	if err := decode(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := h.store.UpdateSettings(r.Context(), patch)
	if err != nil {
		h.fail(w, "update settings failed", err)
		return
	}
	if err := h.supervisor.UpdateSettings(s); err != nil {
		h.fail(w, "apply settings failed", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
