package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ekovalev/prompt-iterator/internal/domain"
	"github.com/ekovalev/prompt-iterator/internal/reconcile"
	"github.com/ekovalev/prompt-iterator/internal/store"
)

// Acknowledgment recorded against an invocation whose user response folds in
// as a fresh message rather than a typed payload. Keeps the wire history
// valid: every tool call gets a result, while the instruction itself travels
// as the next user turn.
const foldInAck = "User submitted their choices; see the following message."

// ToolHandler folds user responses to pending tool invocations back into the
// conversation.
type ToolHandler struct {
	*Handler
}

// NewToolHandler creates a new tool handler.
func NewToolHandler(base *Handler) *ToolHandler {
	return &ToolHandler{Handler: base}
}

// RegisterRoutes registers tool routes.
func (h *ToolHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/tools/resolve", h.Resolve)
}

type resolveRequest struct {
	SessionID  string            `json:"session_id"`
	ToolCallID string            `json:"tool_call_id"`
	Answers    map[string]string `json:"answers,omitempty"`
	Selections map[string]string `json:"selections,omitempty"`
	Custom     map[string]string `json:"custom,omitempty"`
}

type resolveResponse struct {
	Kind       reconcile.FoldInKind `json:"kind"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	Result     string               `json:"result,omitempty"`
	Content    string               `json:"content,omitempty"`
	TurnID     string               `json:"turn_id,omitempty"`
}

// Resolve records the user's response to a pending invocation and appends the
// fold-in turn. The invocation's result is persisted before the fold-in turn
// so the transcript never shows an answer to a call that was not yet
// resolved. A repeated resolution fails with 409 and leaves the first result
// intact.
func (h *ToolHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || req.ToolCallID == "" {
		Error(w, http.StatusBadRequest, "session_id and tool_call_id are required")
		return
	}

	inv, err := h.findInvocation(r, req.SessionID, req.ToolCallID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "tool invocation not found")
			return
		}
		slog.Error("Failed to load invocation", "error", err, "session_id", req.SessionID)
		Error(w, http.StatusInternalServerError, "failed to load invocation")
		return
	}

	fold, err := reconcile.Resolve(*inv, reconcile.Response{
		Answers:    req.Answers,
		Selections: req.Selections,
		Custom:     req.Custom,
	})
	if err != nil {
		h.resolveError(w, err, req.ToolCallID)
		return
	}

	result := fold.Result
	if fold.Kind == reconcile.KindNewMessage {
		result = foldInAck
	}
	if err := h.repo.ResolveToolInvocation(r.Context(), req.SessionID, req.ToolCallID, result); err != nil {
		if errors.Is(err, store.ErrAlreadyResolved) {
			Error(w, http.StatusConflict, "tool invocation already resolved")
			return
		}
		slog.Error("Failed to persist resolution", "error", err, "tool_call_id", req.ToolCallID)
		Error(w, http.StatusInternalServerError, "failed to persist resolution")
		return
	}

	resp := resolveResponse{
		Kind:       fold.Kind,
		ToolCallID: fold.ToolCallID,
		Result:     fold.Result,
		Content:    fold.Content,
	}
	if fold.Kind == reconcile.KindNewMessage {
		turn := &domain.Turn{
			SessionID: req.SessionID,
			Role:      domain.RoleUser,
			Content:   fold.Content,
		}
		if err := h.repo.AppendTurn(r.Context(), turn); err != nil {
			slog.Error("Failed to append fold-in turn", "error", err, "session_id", req.SessionID)
			Error(w, http.StatusInternalServerError, "failed to append fold-in turn")
			return
		}
		resp.TurnID = turn.ID
	}

	JSON(w, http.StatusOK, resp)
}

func (h *ToolHandler) findInvocation(r *http.Request, sessionID, toolCallID string) (*domain.ToolInvocation, error) {
	turns, err := h.repo.ListTurns(r.Context(), sessionID)
	if err != nil {
		return nil, err
	}
	for _, turn := range turns {
		for i := range turn.ToolInvocations {
			if turn.ToolInvocations[i].ToolCallID == toolCallID {
				return &turn.ToolInvocations[i], nil
			}
		}
	}
	return nil, store.ErrNotFound
}

func (h *ToolHandler) resolveError(w http.ResponseWriter, err error, toolCallID string) {
	switch {
	case errors.Is(err, reconcile.ErrDuplicateResolution):
		Error(w, http.StatusConflict, "tool invocation already resolved")
	case errors.Is(err, reconcile.ErrPayloadIncomplete):
		Error(w, http.StatusConflict, "tool arguments still streaming")
	case errors.Is(err, reconcile.ErrPayloadMalformed):
		Error(w, http.StatusUnprocessableEntity, "tool arguments are malformed")
	default:
		slog.Error("Failed to reconcile response", "error", err, "tool_call_id", toolCallID)
		Error(w, http.StatusBadRequest, "failed to reconcile response")
	}
}
