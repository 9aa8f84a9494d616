package schedule

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// templateStore is the read/write access the handler needs. *Cache
// satisfies it.
type templateStore interface {
	Source
	Writer
}

// Handler exposes schedule template management over HTTP.
type Handler struct {
	templates templateStore
	logger    *logging.Logger
}

// NewHandler creates a schedule handler.
func NewHandler(templates templateStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{templates: templates, logger: logger}
}

// GetTemplate handles GET /providers/{providerID}/schedule.
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	if providerID == "" {
		writeError(w, http.StatusBadRequest, "provider_id required")
		return
	}

	t, err := h.templates.Get(r.Context(), providerID)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		h.logger.Error("failed to load schedule template", "provider_id", providerID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// PutTemplate handles PUT /providers/{providerID}/schedule.
func (h *Handler) PutTemplate(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	if providerID == "" {
		writeError(w, http.StatusBadRequest, "provider_id required")
		return
	}

	var t Template
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t.ProviderID = providerID

	if err := h.templates.Upsert(r.Context(), &t); err != nil {
		if errors.Is(err, ErrInvalidTemplate) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to save schedule template", "provider_id", providerID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("schedule template saved", "provider_id", providerID)
	writeJSON(w, http.StatusOK, &t)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
