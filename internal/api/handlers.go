// Package api exposes the game engine over HTTP and WebSocket
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/alexbotov/dond/internal/audit"
	"github.com/alexbotov/dond/internal/game"
	"github.com/alexbotov/dond/internal/rng"
	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
)

// Version is reported by GET /
var Version = "dev"

// Handler contains all HTTP handlers
type Handler struct {
	game     *game.Engine
	rng      *rng.Service
	events   *audit.Service
	hub      *Hub
	currency string
	logger   *log.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithEventStore enables the audit query endpoint
func WithEventStore(events *audit.Service) Option {
	return func(h *Handler) {
		h.events = events
	}
}

// WithCurrency sets the currency code reported to clients
func WithCurrency(code string) Option {
	return func(h *Handler) {
		h.currency = code
	}
}

// WithLogger sets the handler logger
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		h.logger = logger.WithPrefix("api")
	}
}

// New creates a new API handler
func New(gameEngine *game.Engine, rngSvc *rng.Service, opts ...Option) *Handler {
	h := &Handler{
		game:     gameEngine,
		rng:      rngSvc,
		currency: "USD",
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.hub = newHub(h.logger)
	gameEngine.Subscribe(h.hub)
	return h
}

// Hub returns the WebSocket hub broadcasting accepted actions
func (h *Handler) Hub() *Hub {
	return h.hub
}

// Response helpers

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	})
}

// Error codes shared by the REST and WebSocket surfaces
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeIllegalPhase   = "ILLEGAL_PHASE"
	CodeInternal       = "INTERNAL_ERROR"
)

// classify maps an engine error to an HTTP status and error code
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, game.ErrInvalidInput):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, game.ErrIllegalPhase):
		return http.StatusConflict, CodeIllegalPhase
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func errorMessage(err error) string {
	if game.IsRejection(err) {
		return game.Reason(err)
	}
	return "Internal server error"
}

// === Health & Info ===

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	rngHealth, err := h.rng.HealthCheck()
	if err != nil || !rngHealth.Healthy {
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":     "degraded",
			"rng_status": rngHealth,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"rng_status": rngHealth,
		"clients":    h.hub.ClientCount(),
	})
}

// ServerInfo handles GET /
func (h *Handler) ServerInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":        "dond",
		"version":     Version,
		"description": "Deal or No Deal game server",
		"currency":    h.currency,
	})
}

// === Game ===

// GetState handles GET /api/v1/game/state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.game.Snapshot())
}

// GetStateRaw handles GET /api/game-state, returning the bare snapshot
func (h *Handler) GetStateRaw(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.game.Snapshot())
}

// PerformAction handles POST /api/v1/game/actions/{action}
func (h *Handler) PerformAction(w http.ResponseWriter, r *http.Request) {
	var cmd game.Command
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
			return
		}
	}
	cmd.Action = game.Action(mux.Vars(r)["action"])

	out, err := h.game.Execute(r.Context(), cmd)
	if err != nil {
		status, code := classify(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("Action failed", "action", cmd.Action, "err", err)
		}
		respondError(w, status, code, errorMessage(err))
		return
	}

	respondJSON(w, http.StatusOK, out)
}

// === Audit ===

// GetEvents handles GET /api/v1/audit/events
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &audit.EventFilter{
		GameID: q.Get("game_id"),
		Type:   q.Get("type"),
		Limit:  100,
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, CodeInvalidRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(limit, 1000)
	}
	for key, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		if v := q.Get(key); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				respondError(w, http.StatusBadRequest, CodeInvalidRequest, key+" must be an RFC 3339 timestamp")
				return
			}
			*dst = ts
		}
	}

	events, err := h.events.GetEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to query audit events", "err", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to get events")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}
