// Package domain contains core domain models for the game server
//
// A game is one session of 26 sealed cases. The player keeps one case,
// opens the others in scheduled rounds and after each round may take the
// banker's offer instead of playing on.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Phase is the single discriminator governing which actions are legal
type Phase string

const (
	PhaseNotStarted    Phase = "not_started"
	PhaseCaseSelection Phase = "case_selection"
	PhaseOpeningCases  Phase = "opening_cases"
	PhaseOfferPhase    Phase = "offer_phase"
	PhaseDealTaken     Phase = "deal_taken"
	PhaseGameOver      Phase = "game_over"
)

// Phases lists every phase in lifecycle order
var Phases = []Phase{
	PhaseNotStarted,
	PhaseCaseSelection,
	PhaseOpeningCases,
	PhaseOfferPhase,
	PhaseDealTaken,
	PhaseGameOver,
}

// String returns the wire name of the phase
func (p Phase) String() string {
	return string(p)
}

// Valid reports whether p is one of the six known phases
func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no player action leads out of the phase
func (p Phase) Terminal() bool {
	return p == PhaseDealTaken || p == PhaseGameOver
}

// Case is one sealed container. Value is assigned once at game start.
type Case struct {
	Value    float64 `json:"value"`
	Opened   bool    `json:"opened"`
	Selected bool    `json:"selected"`
}

// InPlay reports whether the case can still be opened for elimination
func (c *Case) InPlay() bool {
	return !c.Opened && !c.Selected
}

// BankerOffer is an immutable record of one offer event
type BankerOffer struct {
	Amount        float64   `json:"amount"`
	RoundNumber   int       `json:"round_number"`
	Timestamp     time.Time `json:"timestamp"`
	AutoGenerated bool      `json:"auto_generated"`
}

// Entry returns the history tuple broadcast to observers
func (o BankerOffer) Entry() OfferEntry {
	return OfferEntry{Amount: o.Amount, AutoGenerated: o.AutoGenerated}
}

// OfferEntry is one element of the broadcast offer history.
// On the wire it is the two-element array [amount, autoGenerated].
type OfferEntry struct {
	Amount        float64
	AutoGenerated bool
}

// MarshalJSON encodes the entry as [amount, autoGenerated]
func (e OfferEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{e.Amount, e.AutoGenerated})
}

// UnmarshalJSON decodes the [amount, autoGenerated] array form
func (e *OfferEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("offer entry: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("offer entry: expected 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.Amount); err != nil {
		return fmt.Errorf("offer entry amount: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.AutoGenerated); err != nil {
		return fmt.Errorf("offer entry flag: %w", err)
	}
	return nil
}

// Snapshot is the full serializable state sent to every observer
type Snapshot struct {
	Cases          map[string]Case `json:"cases"`
	SelectedCase   *string         `json:"selectedCase"`
	CurrentOffer   *float64        `json:"currentOffer"`
	SuggestedOffer *float64        `json:"suggestedOffer"`
	GameStarted    bool            `json:"gameStarted"`
	PlayerName     *string         `json:"playerName"`
	Phase          Phase           `json:"phase"`
	RoundNumber    int             `json:"roundNumber"`
	CasesToOpen    int             `json:"casesToOpen"`
	CasesRemaining int             `json:"casesRemaining"`
	OfferHistory   []OfferEntry    `json:"offerHistory"`
}

// OpenedCount returns the number of opened cases in the snapshot
func (s *Snapshot) OpenedCount() int {
	n := 0
	for _, c := range s.Cases {
		if c.Opened {
			n++
		}
	}
	return n
}

// EventSeverity represents audit event severity
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityError    EventSeverity = "error"
	SeverityCritical EventSeverity = "critical"
)

// AuditEvent represents a significant game event
type AuditEvent struct {
	ID          string          `json:"id" db:"id"`
	Type        string          `json:"type" db:"type"`
	Severity    EventSeverity   `json:"severity" db:"severity"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
	GameID      *string         `json:"game_id,omitempty" db:"game_id"`
	PlayerName  *string         `json:"player_name,omitempty" db:"player_name"`
	Phase       Phase           `json:"phase" db:"phase"`
	RoundNumber int             `json:"round_number" db:"round_number"`
	Description string          `json:"description" db:"description"`
	Data        json.RawMessage `json:"data,omitempty" db:"data"`
	Component   string          `json:"component" db:"component"`
}
