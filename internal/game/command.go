package game

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/alexbotov/dond/internal/domain"
)

// Broadcast event names
const (
	EventGameState     = "game_state"
	EventGameStarted   = "game_started"
	EventCaseSelected  = "case_selected"
	EventCaseOpened    = "case_opened"
	EventSuggestOffer  = "suggest_offer"
	EventNewOffer      = "new_offer"
	EventDealTaken     = "deal_taken"
	EventOfferRejected = "offer_rejected"
	EventGameOver      = "game_over"
	EventGameReset     = "game_reset"
	EventError         = "error"
)

// CaseNumber is a case identifier. Clients send it either as a JSON
// string or a JSON number.
type CaseNumber string

// UnmarshalJSON accepts "7" and 7 alike
func (c *CaseNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = CaseNumber(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("case number: %w", err)
	}
	i, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("case number %s is not an integer", n)
	}
	*c = CaseNumber(strconv.FormatInt(i, 10))
	return nil
}

// Command is one inbound action with its payload
type Command struct {
	Action       Action     `json:"action"`
	PlayerName   string     `json:"playerName,omitempty"`
	CaseNumber   CaseNumber `json:"caseNumber,omitempty"`
	Offer        *float64   `json:"offer,omitempty"`
	UseSuggested bool       `json:"useSuggested,omitempty"`
	Accepted     bool       `json:"accepted,omitempty"`
}

// Notice is an additional message broadcast after an accepted action
type Notice struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Outcome is the result of an accepted action
type Outcome struct {
	Event    string           `json:"event"`
	Snapshot *domain.Snapshot `json:"snapshot"`
	Notices  []Notice         `json:"notices,omitempty"`
}
