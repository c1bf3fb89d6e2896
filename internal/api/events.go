package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/ekovalev/prompt-iterator/internal/notify"
)

// EventsHandler pushes store change notifications to subscribed clients over
// WebSocket, so the session list can react without polling.
type EventsHandler struct {
	*Handler
	isDev bool
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(base *Handler, isDev bool) *EventsHandler {
	return &EventsHandler{Handler: base, isDev: isDev}
}

// RegisterRoutes registers the events feed route.
func (h *EventsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/events", h.Events)
}

// Events upgrades to WebSocket and relays every bus event as a JSON text
// message until the client disconnects.
func (h *EventsHandler) Events(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if h.isDev {
		opts.InsecureSkipVerify = true
	} else if h.cfg.FrontendURL != "" {
		opts.OriginPatterns = []string{h.cfg.FrontendURL}
	}

	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Warn("WebSocket accept failed", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed closed"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	events, cancel := h.bus.Subscribe()
	defer cancel()

	// Reads are drained only to observe disconnects; clients do not send.
	readCtx := ws.CloseRead(r.Context())

	for {
		select {
		case <-readCtx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := h.writeEvent(readCtx, ws, evt); err != nil {
				slog.Debug("WebSocket write failed", "error", err)
				return
			}
		}
	}
}

func (h *EventsHandler) writeEvent(ctx context.Context, ws *websocket.Conn, evt notify.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
