package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mcdev12/crossroads/go/internal/session/hub"
	"github.com/rs/zerolog/log"
)

// Service serves the WebSocket endpoint and the HTTP API of a hub.
type Service struct {
	hub               *hub.Hub
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	apiHandler        *APIHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

func DefaultConfig() Config {
	return Config{ConnectionConfig: DefaultConnectionConfig()}
}

func NewService(config Config, h *hub.Hub) *Service {
	cm := NewConnectionManager(config.ConnectionConfig)
	return &Service{
		hub:               h,
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(h, cm),
		apiHandler:        NewAPIHandler(h),
	}
}

// Routes builds the router for every gateway endpoint.
func (s *Service) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.HandleHealth)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.apiHandler.HandleCreateSession)
		r.Get("/", s.apiHandler.HandleListSessions)
		r.Get("/{id}/state", s.apiHandler.HandleGetState)
		r.Post("/{id}/start", s.apiHandler.HandleStartVoting)
		r.Post("/{id}/scene", s.apiHandler.HandleLoadScene)
		r.Delete("/{id}", s.apiHandler.HandleDeleteSession)
	})

	r.Get("/ws/sessions/{id}", s.wsHandler.HandleSessionConnection)
	r.Get("/ws/stats", s.wsHandler.HandleConnectionStats)

	log.Info().Msg("gateway routes registered")
	return r
}

type HealthResponse struct {
	Status      string `json:"status"`
	Sessions    int    `json:"sessions"`
	Connections int    `json:"connections"`
}

// HandleHealth handles GET /health
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Sessions:    s.hub.Len(),
		Connections: s.connectionManager.Stats().TotalConnections,
	})
}
