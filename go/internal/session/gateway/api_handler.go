package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mcdev12/crossroads/go/internal/apperr"
	"github.com/mcdev12/crossroads/go/internal/session"
	"github.com/mcdev12/crossroads/go/internal/session/hub"
)

// CreateSessionRequest is the body of POST /api/sessions. Both fields are
// optional.
type CreateSessionRequest struct {
	SessionID string `json:"sessionId"`
	SceneID   string `json:"sceneId"`
}

type LoadSceneRequest struct {
	SceneID string `json:"sceneId"`
}

type SessionListResponse struct {
	Sessions []string `json:"sessions"`
	Count    int      `json:"count"`
}

// APIHandler exposes the admin operations of the hub over HTTP.
type APIHandler struct {
	hub *hub.Hub
}

func NewAPIHandler(h *hub.Hub) *APIHandler {
	return &APIHandler{hub: h}
}

// HandleCreateSession handles POST /api/sessions
func (h *APIHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	sess, err := h.hub.Create(r.Context(), req.SessionID, req.SceneID)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := sess.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// HandleListSessions handles GET /api/sessions
func (h *APIHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	ids := h.hub.List()
	writeJSON(w, http.StatusOK, SessionListResponse{Sessions: ids, Count: len(ids)})
}

// HandleGetState handles GET /api/sessions/{id}/state
func (h *APIHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(sess *session.Session) error { return nil })
}

// HandleStartVoting handles POST /api/sessions/{id}/start
func (h *APIHandler) HandleStartVoting(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(sess *session.Session) error {
		return sess.StartVoting(r.Context())
	})
}

// HandleLoadScene handles POST /api/sessions/{id}/scene
func (h *APIHandler) HandleLoadScene(w http.ResponseWriter, r *http.Request) {
	var req LoadSceneRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SceneID == "" {
		writeError(w, apperr.Validation("sceneId is required"))
		return
	}
	h.withSession(w, r, func(sess *session.Session) error {
		return sess.LoadScene(r.Context(), req.SceneID)
	})
}

// HandleDeleteSession handles DELETE /api/sessions/{id}
func (h *APIHandler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.hub.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// withSession runs fn against the session named in the path and replies with
// its state afterwards.
func (h *APIHandler) withSession(w http.ResponseWriter, r *http.Request, fn func(*session.Session) error) {
	id := chi.URLParam(r, "id")
	sess, ok := h.hub.Get(id)
	if !ok {
		writeError(w, apperr.NotFound("session %s not found", id))
		return
	}
	if err := fn(sess); err != nil {
		writeError(w, err)
		return
	}
	view, err := sess.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
