package client

import (
	"encoding/json"
	"time"

	"github.com/alexbotov/dond/internal/domain"
)

// Error codes returned by the game server
const (
	ErrInvalidRequest = "INVALID_REQUEST"
	ErrInvalidInput   = "INVALID_INPUT"
	ErrIllegalPhase   = "ILLEGAL_PHASE"
	ErrInternal       = "INTERNAL_ERROR"
	ErrNotFound       = "NOT_FOUND"
)

// Action names accepted by the server
const (
	ActionStartGame       = "start_game"
	ActionSelectCase      = "select_case"
	ActionOpenCase        = "open_case"
	ActionMakeOffer       = "make_offer"
	ActionAcceptOffer     = "accept_offer"
	ActionRejectOffer     = "reject_offer"
	ActionAdminForceOffer = "admin_handle_offer"
	ActionResetGame       = "reset_game"
)

// State is the full game snapshot broadcast after every accepted action
type State = domain.Snapshot

// Case is one case inside a State
type Case = domain.Case

// APIError represents an error response from the server
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Response wraps the API response with either data or error
type Response[T any] struct {
	Success bool      `json:"success"`
	Data    *T        `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// Payload is the body of an action request. Fields an action does not use
// are ignored by the server.
type Payload struct {
	PlayerName   string   `json:"playerName,omitempty"`
	CaseNumber   string   `json:"caseNumber,omitempty"`
	Offer        *float64 `json:"offer,omitempty"`
	UseSuggested bool     `json:"useSuggested,omitempty"`
	Accepted     bool     `json:"accepted,omitempty"`
}

// Notice is a follow-up event raised by an action, such as suggest_offer
type Notice struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Result is the outcome of an accepted action
type Result struct {
	Event    string   `json:"event"`
	Snapshot *State   `json:"snapshot"`
	Notices  []Notice `json:"notices,omitempty"`
}

// ServerInfo is returned by GET /
type ServerInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Currency    string `json:"currency"`
}

// Health is returned by GET /health
type Health struct {
	Status    string `json:"status"`
	Clients   int    `json:"clients"`
	RNGStatus struct {
		Healthy   bool      `json:"healthy"`
		Seeded    bool      `json:"seeded"`
		Timestamp time.Time `json:"timestamp"`
		ChiSquare float64   `json:"chi_square"`
	} `json:"rng_status"`
}

// Event is one frame received from the observer channel
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// State decodes the payload of a snapshot-carrying event
func (e *Event) State() (*State, error) {
	var s State
	if err := json.Unmarshal(e.Payload, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Err decodes the payload of an error event
func (e *Event) Err() *APIError {
	if e.Type != "error" {
		return nil
	}
	var apiErr APIError
	if err := json.Unmarshal(e.Payload, &apiErr); err != nil {
		return &APIError{Code: ErrInvalidRequest, Message: string(e.Payload)}
	}
	return &apiErr
}

// SnapshotEvent reports whether the event payload is a full State
func (e *Event) SnapshotEvent() bool {
	switch e.Type {
	case "error", "pong", "suggest_offer", "game_over":
		return false
	}
	return true
}
