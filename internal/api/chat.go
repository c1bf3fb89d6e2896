package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ekovalev/prompt-iterator/internal/domain"
	"github.com/ekovalev/prompt-iterator/internal/engine"
)

const (
	sessionTitleLimit   = 30
	sessionPreviewLimit = 50
)

// ChatHandler streams assistant turns and controls in-flight generation.
type ChatHandler struct {
	*Handler
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(base *Handler) *ChatHandler {
	return &ChatHandler{Handler: base}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/", h.Chat)
		r.Post("/stop", h.Stop)
	})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Chat runs one generation turn and streams engine events over SSE.
//
// A missing session id creates a session titled after the message. The user
// turn is persisted before the provider call; the assistant turn is persisted
// only when the stream finishes. Cancellation leaves the transcript untouched.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" && req.SessionID == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	// Settings are snapshotted at the start of the turn; edits made while
	// the turn is streaming take effect on the next one.
	settings, err := h.repo.GetSettings(r.Context())
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	cfg := engine.Config{
		APIKey:       settings.APIKey,
		BaseURL:      settings.BaseURL,
		ModelID:      settings.ModelID,
		SystemPrompt: settings.SystemPrompt,
	}
	if v := r.Header.Get("x-api-key"); v != "" {
		cfg.APIKey = v
	}
	if v := r.Header.Get("x-base-url"); v != "" {
		cfg.BaseURL = v
	}

	sessionID := req.SessionID
	created := false
	if sessionID == "" {
		session, err := h.repo.CreateSession(r.Context(), truncateRunes(req.Message, sessionTitleLimit), "")
		if err != nil {
			slog.Error("Failed to create session", "error", err)
			Error(w, http.StatusInternalServerError, "failed to create session")
			return
		}
		sessionID = session.ID
		created = true
	} else if _, err := h.repo.GetSession(r.Context(), sessionID); err != nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	if strings.TrimSpace(req.Message) != "" {
		userTurn := &domain.Turn{
			SessionID: sessionID,
			Role:      domain.RoleUser,
			Content:   req.Message,
		}
		if err := h.repo.AppendTurn(r.Context(), userTurn); err != nil {
			slog.Error("Failed to persist user turn", "error", err, "session_id", sessionID)
			Error(w, http.StatusInternalServerError, "failed to persist message")
			return
		}
	}

	history, err := h.loadHistory(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load history", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if len(history) == 0 {
		Error(w, http.StatusBadRequest, "session has no turns to continue from")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx, done := h.runner.Begin(r.Context(), sessionID)
	defer done()

	streaming := false
	startStream := func() {
		if streaming {
			return
		}
		streaming = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		if created {
			payload, _ := json.Marshal(map[string]string{"session_id": sessionID})
			if err := writeSSE(w, "session", string(payload)); err != nil {
				slog.Warn("failed to write SSE session event", "error", err)
			}
			flusher.Flush()
		}
	}

	for evt, err := range h.engine.RunTurn(ctx, history, cfg) {
		if err != nil {
			if ctx.Err() != nil {
				// Stopped or disconnected: discard partial text, persist
				// nothing new.
				slog.Info("Generation cancelled", "session_id", sessionID)
				return
			}
			h.streamFailure(w, flusher, err, streaming, startStream)
			return
		}

		if evt.Type == engine.EventFinish {
			if err := h.finishTurn(ctx, sessionID, evt); err != nil {
				slog.Error("Failed to persist assistant turn", "error", err, "session_id", sessionID)
				startStream()
				if writeErr := writeSSE(w, "error", `{"error":"failed to persist assistant turn"}`); writeErr != nil {
					slog.Warn("failed to write SSE error event", "error", writeErr)
				}
				flusher.Flush()
				return
			}
		}

		data, err := json.Marshal(evt)
		if err != nil {
			slog.Warn("failed to marshal engine event", "error", err)
			continue
		}
		startStream()
		if err := writeSSE(w, "message", string(data)); err != nil {
			slog.Warn("failed to write SSE message event", "error", err)
			return
		}
		flusher.Flush()
	}
}

// Stop cancels the session's in-flight generation, if any.
func (h *ChatHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := h.decodeBody(w, r, &req); err != nil || req.SessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}
	stopped := h.runner.Stop(req.SessionID)
	JSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

func (h *ChatHandler) loadHistory(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	turns, err := h.repo.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	history := make([]domain.Turn, 0, len(turns))
	for _, t := range turns {
		history = append(history, *t)
	}
	return history, nil
}

// finishTurn persists the completed assistant turn and refreshes the session
// preview. Called exactly once per successful stream.
func (h *ChatHandler) finishTurn(ctx context.Context, sessionID string, evt *engine.Event) error {
	for _, call := range evt.Calls {
		if !domain.KnownTool(call.ToolName) {
			// Stored as-is; resolution will reject it, but the transcript
			// keeps what the model actually emitted.
			slog.Warn("Model invoked unrecognized tool", "tool", call.ToolName, "session_id", sessionID)
		}
	}
	turn := &domain.Turn{
		SessionID:       sessionID,
		Role:            domain.RoleAssistant,
		Content:         evt.Content,
		ToolInvocations: evt.Calls,
	}
	if err := h.repo.AppendTurn(ctx, turn); err != nil {
		return err
	}
	preview := truncateRunes(evt.Content, sessionPreviewLimit)
	if preview == "" && len(evt.Calls) > 0 {
		preview = evt.Calls[0].ToolName
	}
	return h.repo.TouchSession(ctx, sessionID, preview)
}

// streamFailure surfaces an engine failure either as a plain HTTP error (when
// nothing has been streamed yet) or as a terminal SSE error event.
func (h *ChatHandler) streamFailure(w http.ResponseWriter, flusher http.Flusher, err error, streaming bool, startStream func()) {
	var failure *engine.Failure
	if !errors.As(err, &failure) {
		failure = &engine.Failure{Kind: engine.FailureUnknown, Detail: err.Error()}
	}
	slog.Error("Generation failed", "kind", failure.Kind, "detail", failure.Detail)

	if !streaming {
		Error(w, failure.HTTPStatus(), failure.UserMessage())
		return
	}
	startStream()
	payload, _ := json.Marshal(map[string]string{"error": failure.UserMessage()})
	if writeErr := writeSSE(w, "error", string(payload)); writeErr != nil {
		slog.Warn("failed to write SSE error event", "error", writeErr)
		return
	}
	flusher.Flush()
}

// truncateRunes shortens s to at most n runes.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
