package main

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/alexbotov/dond/internal/domain"
	"github.com/alexbotov/dond/pkg/client"
	"github.com/stretchr/testify/assert"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount   float64
		currency string
		want     string
	}{
		{0.01, "USD", "$0.01"},
		{75, "USD", "$75.00"},
		{71963.16, "USD", "$71,963.16"},
		{1000000, "", "$1,000,000.00"},
		{500, "EUR", "€500.00"},
		{5, "GBP", "5.00 GBP"},
		{-1234.5, "USD", "-$1,234.50"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatMoney(tt.amount, tt.currency))
	}
}

func boardState() *client.State {
	name := "Alice"
	selected := "7"
	offer := 5000.0
	state := &client.State{
		Cases:          make(map[string]domain.Case),
		SelectedCase:   &selected,
		CurrentOffer:   &offer,
		GameStarted:    true,
		PlayerName:     &name,
		Phase:          domain.PhaseOfferPhase,
		RoundNumber:    1,
		CasesRemaining: 19,
		OfferHistory:   []domain.OfferEntry{{Amount: 5000}},
	}
	for i := 1; i <= 26; i++ {
		state.Cases[strconv.Itoa(i)] = domain.Case{
			Value:    float64(i * 100),
			Opened:   i <= 6,
			Selected: i == 7,
		}
	}
	return state
}

func TestRenderBoard(t *testing.T) {
	out := renderBoard(boardState(), "USD")

	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "round 1")
	assert.Contains(t, out, "offer_phase")
	assert.Contains(t, out, "Your case: 7")
	assert.Contains(t, out, "Cases left: 19")
	assert.Contains(t, out, "Banker offers $5,000.00")
	assert.Contains(t, out, "$2,600.00")
	assert.NotContains(t, out, "Open ")
}

func TestRenderBoardNoGame(t *testing.T) {
	out := renderBoard(&client.State{Phase: domain.PhaseNotStarted}, "USD")
	assert.Contains(t, out, "No game in progress")
}

func TestDescribeNotice(t *testing.T) {
	ev := &client.Event{Type: "suggest_offer", Payload: json.RawMessage(`{"suggestedOffer":71963.16}`)}
	assert.Equal(t, "banker suggests $71,963.16", describeNotice(ev, "USD"))

	ev = &client.Event{Type: "game_over", Payload: json.RawMessage(`{"selectedCase":"7","value":75}`)}
	assert.Equal(t, "case 7 held $75.00", describeNotice(ev, "USD"))

	assert.Contains(t, renderNotice("error", "bad case"), "error: bad case")
	assert.Contains(t, renderNotice("case_opened", ""), "case opened")
}
