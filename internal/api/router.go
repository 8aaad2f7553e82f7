package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRouter creates and configures the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(h.RecoveryMiddleware)
	r.Use(CORSMiddleware)
	r.Use(h.LoggingMiddleware)

	r.NotFoundHandler = http.HandlerFunc(NotFoundHandler)

	// Public routes
	r.HandleFunc("/", h.ServerInfo).Methods("GET")
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/api/game-state", h.GetStateRaw).Methods("GET")

	// Observer channel
	r.HandleFunc("/ws", h.HandleWebSocket).Methods("GET")

	// API v1 routes
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/game/state", h.GetState).Methods("GET")
	api.HandleFunc("/game/actions/{action}", h.PerformAction).Methods("POST", "OPTIONS")

	if h.events != nil {
		api.HandleFunc("/audit/events", h.GetEvents).Methods("GET")
	}

	return r
}

// NotFoundHandler handles 404 errors
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
}
