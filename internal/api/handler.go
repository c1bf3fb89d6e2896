// Package api provides HTTP handlers for the prompt iterator API.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ekovalev/prompt-iterator/internal/config"
	"github.com/ekovalev/prompt-iterator/internal/engine"
	"github.com/ekovalev/prompt-iterator/internal/notify"
	"github.com/ekovalev/prompt-iterator/internal/store"
)

// Handler provides common handler utilities and shared dependencies.
type Handler struct {
	repo   store.Repository
	engine *engine.Engine
	runner *engine.Runner
	bus    *notify.Bus
	cfg    *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, eng *engine.Engine, runner *engine.Runner, bus *notify.Bus, cfg *config.Config) *Handler {
	return &Handler{
		repo:   repo,
		engine: eng,
		runner: runner,
		bus:    bus,
		cfg:    cfg,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeBody decodes a JSON request body with a size cap.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
