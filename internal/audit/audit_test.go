package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/alexbotov/dond/internal/database"
	"github.com/alexbotov/dond/internal/domain"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	gameID := uuid.New().String()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	event := NewEvent(EventOfferMade, domain.SeverityInfo, "Offer made",
		map[string]interface{}{"amount": 1250.5},
		WithGame(gameID), WithPlayer("Alice"), WithState(domain.PhaseOfferPhase, 2), WithTime(ts))

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventOfferMade, event.Type)
	assert.Equal(t, "game", event.Component)
	require.NotNil(t, event.GameID)
	assert.Equal(t, gameID, *event.GameID)
	require.NotNil(t, event.PlayerName)
	assert.Equal(t, "Alice", *event.PlayerName)
	assert.Equal(t, domain.PhaseOfferPhase, event.Phase)
	assert.Equal(t, 2, event.RoundNumber)
	assert.Equal(t, ts, event.Timestamp)
	assert.JSONEq(t, `{"amount":1250.5}`, string(event.Data))
}

func TestNewEventSkipsEmptyIdentifiers(t *testing.T) {
	event := NewEvent(EventGameReset, domain.SeverityInfo, "Game reset", nil,
		WithGame(""), WithPlayer(""), WithComponent("api"))

	assert.Nil(t, event.GameID)
	assert.Nil(t, event.PlayerName)
	assert.Nil(t, event.Data)
	assert.Equal(t, "api", event.Component)
}

func TestLogRecorder(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Formatter: log.JSONFormatter})
	rec := NewLogRecorder(logger)

	err := rec.Record(context.Background(), NewEvent(EventDealTaken, domain.SeverityInfo, "Deal taken",
		map[string]float64{"amount": 5000}, WithPlayer("Alice"), WithState(domain.PhaseDealTaken, 3)))
	require.NoError(t, err)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Deal taken", line["msg"])
	assert.Equal(t, EventDealTaken, line["type"])
	assert.Equal(t, "Alice", line["player"])
	assert.Equal(t, "info", line["level"])
}

func TestLogRecorderSeverity(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Formatter: log.JSONFormatter})
	rec := NewLogRecorder(logger)

	require.NoError(t, rec.Record(context.Background(),
		NewEvent(EventActionRejected, domain.SeverityWarning, "Action rejected", nil)))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
}

// TestServiceRoundTrip needs a PostgreSQL instance; set DOND_TEST_DSN to run it.
func TestServiceRoundTrip(t *testing.T) {
	dsn := os.Getenv("DOND_TEST_DSN")
	if dsn == "" {
		t.Skip("DOND_TEST_DSN not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, "postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.CleanData(ctx))
	defer db.CleanData(ctx)

	svc := New(db.DB)
	gameID := uuid.New().String()

	require.NoError(t, svc.Record(ctx, NewEvent(EventGameStarted, domain.SeverityInfo, "Game started", nil,
		WithGame(gameID), WithPlayer("Alice"), WithState(domain.PhaseCaseSelection, 1))))
	require.NoError(t, svc.Record(ctx, NewEvent(EventOfferMade, domain.SeverityInfo, "Offer made",
		map[string]float64{"amount": 42}, WithGame(gameID), WithState(domain.PhaseOfferPhase, 1))))

	events, err := svc.GetEvents(ctx, &EventFilter{GameID: gameID})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	offers, err := svc.GetEvents(ctx, &EventFilter{Type: EventOfferMade, Limit: 10})
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, domain.PhaseOfferPhase, offers[0].Phase)
	assert.JSONEq(t, `{"amount":42}`, string(offers[0].Data))
}
