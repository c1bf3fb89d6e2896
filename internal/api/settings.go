package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ekovalev/prompt-iterator/internal/domain"
)

// SettingsHandler serves the single application settings record.
type SettingsHandler struct {
	*Handler
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(base *Handler) *SettingsHandler {
	return &SettingsHandler{Handler: base}
}

// RegisterRoutes registers settings routes.
func (h *SettingsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/settings", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Put)
	})
}

// Get returns the stored settings, falling back to defaults.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.repo.GetSettings(r.Context())
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	JSON(w, http.StatusOK, settings)
}

// Put overwrites the settings record wholesale. Running turns keep the
// snapshot they started with; the new settings apply from the next turn.
func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var settings domain.AppSettings
	if err := h.decodeBody(w, r, &settings); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(settings.BaseURL) == "" {
		Error(w, http.StatusBadRequest, "base_url is required")
		return
	}
	if strings.TrimSpace(settings.ModelID) == "" {
		Error(w, http.StatusBadRequest, "model_id is required")
		return
	}
	if len(settings.AvailableModels) == 0 {
		settings.AvailableModels = domain.DefaultSettings().AvailableModels
	}
	if err := h.repo.SaveSettings(r.Context(), settings); err != nil {
		slog.Error("Failed to save settings", "error", err)
		Error(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	JSON(w, http.StatusOK, settings)
}
