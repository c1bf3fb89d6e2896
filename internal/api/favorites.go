package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ekovalev/prompt-iterator/internal/store"
)

// FavoriteHandler serves the saved-prompt collection. Favorites are
// standalone documents, independent of the sessions they came from.
type FavoriteHandler struct {
	*Handler
}

// NewFavoriteHandler creates a new favorite handler.
func NewFavoriteHandler(base *Handler) *FavoriteHandler {
	return &FavoriteHandler{Handler: base}
}

// RegisterRoutes registers favorite routes.
func (h *FavoriteHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/favorites", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Put("/{favoriteID}", h.Update)
		r.Delete("/{favoriteID}", h.Delete)
	})
}

type favoriteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// List returns all favorites, most recently updated first.
func (h *FavoriteHandler) List(w http.ResponseWriter, r *http.Request) {
	favorites, err := h.repo.ListFavorites(r.Context())
	if err != nil {
		slog.Error("Failed to list favorites", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list favorites")
		return
	}
	JSON(w, http.StatusOK, favorites)
}

// Create saves a prompt document as a favorite.
func (h *FavoriteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		Error(w, http.StatusBadRequest, "title and content are required")
		return
	}
	fav, err := h.repo.CreateFavorite(r.Context(), req.Title, req.Content)
	if err != nil {
		slog.Error("Failed to create favorite", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create favorite")
		return
	}
	JSON(w, http.StatusCreated, fav)
}

// Update rewrites a favorite's title and content.
func (h *FavoriteHandler) Update(w http.ResponseWriter, r *http.Request) {
	favoriteID := chi.URLParam(r, "favoriteID")
	var req favoriteRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		Error(w, http.StatusBadRequest, "title and content are required")
		return
	}
	if err := h.repo.UpdateFavorite(r.Context(), favoriteID, req.Title, req.Content); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "favorite not found")
			return
		}
		slog.Error("Failed to update favorite", "error", err, "favorite_id", favoriteID)
		Error(w, http.StatusInternalServerError, "failed to update favorite")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Delete removes a favorite.
func (h *FavoriteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	favoriteID := chi.URLParam(r, "favoriteID")
	if err := h.repo.DeleteFavorite(r.Context(), favoriteID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "favorite not found")
			return
		}
		slog.Error("Failed to delete favorite", "error", err, "favorite_id", favoriteID)
		Error(w, http.StatusInternalServerError, "failed to delete favorite")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
