package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ekovalev/prompt-iterator/internal/store"
)

// SessionHandler serves the session directory and turn history.
type SessionHandler struct {
	*Handler
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base}
}

// RegisterRoutes registers session and turn routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Delete("/{sessionID}", h.Delete)
		r.Get("/{sessionID}/turns", h.Turns)
	})
	r.Delete("/api/turns/{turnID}", h.DeleteTurn)
}

// List returns all sessions, most recently updated first.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.repo.ListSessions(r.Context())
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	JSON(w, http.StatusOK, sessions)
}

// Create creates an empty named session.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := h.decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "新对话"
	}
	session, err := h.repo.CreateSession(r.Context(), title, "")
	if err != nil {
		slog.Error("Failed to create session", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	JSON(w, http.StatusCreated, session)
}

// Delete removes a session and all of its turns.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.repo.DeleteSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("Failed to delete session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	h.runner.Stop(sessionID)
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Turns returns a session's turns in creation order.
func (h *SessionHandler) Turns(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.repo.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("Failed to load session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	turns, err := h.repo.ListTurns(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to list turns", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to list turns")
		return
	}
	JSON(w, http.StatusOK, turns)
}

// DeleteTurn removes exactly one turn.
func (h *SessionHandler) DeleteTurn(w http.ResponseWriter, r *http.Request) {
	turnID := chi.URLParam(r, "turnID")
	if err := h.repo.DeleteTurn(r.Context(), turnID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "turn not found")
			return
		}
		slog.Error("Failed to delete turn", "error", err, "turn_id", turnID)
		Error(w, http.StatusInternalServerError, "failed to delete turn")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
