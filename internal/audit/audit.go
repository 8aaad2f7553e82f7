// Package audit records significant game events: deals, offers, resets
// and rejected actions.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alexbotov/dond/internal/domain"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Event types
const (
	EventGameStarted    = "game_started"
	EventCaseSelected   = "case_selected"
	EventCaseOpened     = "case_opened"
	EventRoundComplete  = "round_complete"
	EventOfferMade      = "offer_made"
	EventDealTaken      = "deal_taken"
	EventOfferRejected  = "offer_rejected"
	EventGameOver       = "game_over"
	EventGameReset      = "game_reset"
	EventActionRejected = "action_rejected"
)

// Recorder stores audit events
type Recorder interface {
	Record(ctx context.Context, event *domain.AuditEvent) error
}

// NewEvent builds an event with a fresh ID
func NewEvent(eventType string, severity domain.EventSeverity, description string, data interface{}, opts ...EventOption) *domain.AuditEvent {
	event := &domain.AuditEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Severity:    severity,
		Timestamp:   time.Now().UTC(),
		Description: description,
		Component:   "game",
	}

	if data != nil {
		jsonData, err := json.Marshal(data)
		if err == nil {
			event.Data = jsonData
		}
	}

	for _, opt := range opts {
		opt(event)
	}

	return event
}

// EventOption is a functional option for configuring audit events
type EventOption func(*domain.AuditEvent)

// WithGame sets the game ID for the event
func WithGame(gameID string) EventOption {
	return func(e *domain.AuditEvent) {
		if gameID != "" {
			e.GameID = &gameID
		}
	}
}

// WithPlayer sets the player name for the event
func WithPlayer(name string) EventOption {
	return func(e *domain.AuditEvent) {
		if name != "" {
			e.PlayerName = &name
		}
	}
}

// WithState sets the phase and round the event happened in
func WithState(phase domain.Phase, round int) EventOption {
	return func(e *domain.AuditEvent) {
		e.Phase = phase
		e.RoundNumber = round
	}
}

// WithTime overrides the event timestamp
func WithTime(ts time.Time) EventOption {
	return func(e *domain.AuditEvent) {
		e.Timestamp = ts.UTC()
	}
}

// WithComponent sets the component for the event
func WithComponent(component string) EventOption {
	return func(e *domain.AuditEvent) {
		e.Component = component
	}
}

// Service stores audit events in the game_events table
type Service struct {
	db *sql.DB
}

// New creates a new audit service
func New(db *sql.DB) *Service {
	return &Service{db: db}
}

// Record inserts one event
func (s *Service) Record(ctx context.Context, event *domain.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var data interface{}
	if len(event.Data) > 0 {
		data = string(event.Data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO game_events (id, type, severity, timestamp, game_id, player_name, phase, round_number, description, data, component)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, event.ID, event.Type, event.Severity, event.Timestamp, event.GameID, event.PlayerName,
		event.Phase, event.RoundNumber, event.Description, data, event.Component)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}

	return nil
}

// GetEvents retrieves audit events with optional filtering, newest first
func (s *Service) GetEvents(ctx context.Context, filter *EventFilter) ([]*domain.AuditEvent, error) {
	query := `SELECT id, type, severity, timestamp, game_id, player_name, phase, round_number, description, data, component
			  FROM game_events WHERE 1=1`
	args := []interface{}{}
	paramIdx := 1

	if filter != nil {
		if filter.GameID != "" {
			query += fmt.Sprintf(" AND game_id = $%d", paramIdx)
			args = append(args, filter.GameID)
			paramIdx++
		}
		if filter.Type != "" {
			query += fmt.Sprintf(" AND type = $%d", paramIdx)
			args = append(args, filter.Type)
			paramIdx++
		}
		if !filter.From.IsZero() {
			query += fmt.Sprintf(" AND timestamp >= $%d", paramIdx)
			args = append(args, filter.From)
			paramIdx++
		}
		if !filter.To.IsZero() {
			query += fmt.Sprintf(" AND timestamp <= $%d", paramIdx)
			args = append(args, filter.To)
			paramIdx++
		}
	}

	query += " ORDER BY timestamp DESC"

	if filter != nil && filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", paramIdx)
		args = append(args, filter.Limit)
	} else {
		query += " LIMIT 100"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.AuditEvent
	for rows.Next() {
		var event domain.AuditEvent
		var gameID, playerName, data sql.NullString

		err := rows.Scan(&event.ID, &event.Type, &event.Severity, &event.Timestamp,
			&gameID, &playerName, &event.Phase, &event.RoundNumber, &event.Description, &data, &event.Component)
		if err != nil {
			return nil, err
		}

		if gameID.Valid {
			event.GameID = &gameID.String
		}
		if playerName.Valid {
			event.PlayerName = &playerName.String
		}
		if data.Valid && data.String != "" {
			event.Data = json.RawMessage(data.String)
		}

		events = append(events, &event)
	}

	return events, rows.Err()
}

// EventFilter defines criteria for filtering audit events
type EventFilter struct {
	GameID string
	Type   string
	From   time.Time
	To     time.Time
	Limit  int
}

// LogRecorder writes audit events to a structured logger. It is used when
// no audit database is configured.
type LogRecorder struct {
	logger *log.Logger
}

// NewLogRecorder creates a recorder that logs under the "audit" prefix
func NewLogRecorder(logger *log.Logger) *LogRecorder {
	return &LogRecorder{logger: logger.WithPrefix("audit")}
}

// Record logs one event
func (r *LogRecorder) Record(ctx context.Context, event *domain.AuditEvent) error {
	kv := []interface{}{
		"type", event.Type,
		"phase", event.Phase,
		"round", event.RoundNumber,
	}
	if event.GameID != nil {
		kv = append(kv, "game", *event.GameID)
	}
	if event.PlayerName != nil {
		kv = append(kv, "player", *event.PlayerName)
	}
	if len(event.Data) > 0 {
		kv = append(kv, "data", string(event.Data))
	}

	switch event.Severity {
	case domain.SeverityWarning:
		r.logger.Warn(event.Description, kv...)
	case domain.SeverityError, domain.SeverityCritical:
		r.logger.Error(event.Description, kv...)
	default:
		r.logger.Info(event.Description, kv...)
	}
	return nil
}
