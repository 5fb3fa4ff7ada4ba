package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/crossroads/go/internal/session/hub"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler attaches sockets to sessions.
type WebSocketHandler struct {
	hub               *hub.Hub
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(h *hub.Hub, cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{hub: h, connectionManager: cm}
}

// HandleSessionConnection handles GET /ws/sessions/{id}. Unknown rooms are
// created when the hub allows it.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	sess, err := h.hub.Ensure(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	// Upgrade writes its own HTTP error response on failure.
	if err := h.connectionManager.Serve(w, r, sess); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats handles GET /ws/stats.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.Stats())
}
