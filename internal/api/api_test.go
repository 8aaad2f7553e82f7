package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexbotov/dond/internal/domain"
	"github.com/alexbotov/dond/internal/game"
	"github.com/alexbotov/dond/internal/rng"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type identityShuffler struct{}

func (identityShuffler) Shuffle(n int, swap func(i, j int)) error { return nil }

type brokenShuffler struct{}

func (brokenShuffler) Shuffle(n int, swap func(i, j int)) error { return errors.New("no entropy") }

// TestServer wraps the handler and an httptest server
type TestServer struct {
	Server  *httptest.Server
	Game    *game.Engine
	Handler *Handler
}

// slowRecorder stalls every audit write for up to 200µs
type slowRecorder struct{}

func (slowRecorder) Record(ctx context.Context, event *domain.AuditEvent) error {
	time.Sleep(time.Duration(rand.IntN(200)) * time.Microsecond)
	return nil
}

func newTestServer(t *testing.T, shuffler game.Shuffler, opts ...game.Option) *TestServer {
	t.Helper()

	engine := game.New(shuffler, opts...)
	handler := New(engine, rng.NewSeeded(42))
	server := httptest.NewServer(handler.SetupRouter())
	t.Cleanup(server.Close)

	return &TestServer{Server: server, Game: engine, Handler: handler}
}

type testResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
}

type actionResult struct {
	Event    string          `json:"event"`
	Snapshot domain.Snapshot `json:"snapshot"`
	Notices  []struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	} `json:"notices"`
}

func (ts *TestServer) do(t *testing.T, method, path string, body string) (int, *testResponse) {
	t.Helper()

	req, err := http.NewRequest(method, ts.Server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out testResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, &out
}

func (ts *TestServer) action(t *testing.T, action, body string) *actionResult {
	t.Helper()

	status, resp := ts.do(t, http.MethodPost, "/api/v1/game/actions/"+action, body)
	require.Equal(t, http.StatusOK, status, "action %s: %+v", action, resp.Error)
	require.True(t, resp.Success)

	var res actionResult
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	return &res
}

func TestServerInfo(t *testing.T) {
	ts := newTestServer(t, identityShuffler{})

	status, resp := ts.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	assert.Contains(t, string(resp.Data), `"name":"dond"`)
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, identityShuffler{})

	status, resp := ts.do(t, http.MethodGet, "/health", "")

	var data struct {
		Status    string `json:"status"`
		RNGStatus struct {
			Healthy bool `json:"healthy"`
			Seeded  bool `json:"seeded"`
		} `json:"rng_status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.True(t, data.RNGStatus.Seeded)

	// The chi-square check runs at 99% confidence, so status follows its verdict
	if data.RNGStatus.Healthy {
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "healthy", data.Status)
	} else {
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Equal(t, "degraded", data.Status)
	}
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t, identityShuffler{})

	status, resp := ts.do(t, http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestAuditRouteNeedsEventStore(t *testing.T) {
	ts := newTestServer(t, identityShuffler{})

	status, _ := ts.do(t, http.MethodGet, "/api/v1/audit/events", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGameStateRoutes(t *testing.T) {
	ts := newTestServer(t, identityShuffler{})

	resp, err := http.Get(ts.Server.URL + "/api/game-state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	for _, field := range []string{"cases", "selectedCase", "currentOffer", "gameStarted", "playerName",
		"offerHistory", "phase", "roundNumber", "casesToOpen", "casesRemaining", "suggestedOffer"} {
		assert.Contains(t, raw, field)
	}
	assert.Equal(t, `"not_started"`, string(raw["phase"]))
	assert.Equal(t, "null", string(raw["selectedCase"]))

	status, wrapped := ts.do(t, http.MethodGet, "/api/v1/game/state", "")
	assert.Equal(t, http.StatusOK, status)
	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(wrapped.Data, &snap))
	assert.Equal(t, domain.PhaseNotStarted, snap.Phase)
	assert.Equal(t, game.CaseCount, snap.CasesRemaining)
}

func TestPlayThroughREST(t *testing.T) {
	ts := newTestServer(t, identityShuffler{})

	res := ts.action(t, "start_game", `{"playerName":"Alice"}`)
	assert.Equal(t, game.EventGameStarted, res.Event)
	assert.Equal(t, domain.PhaseCaseSelection, res.Snapshot.Phase)

	res = ts.action(t, "select_case", `{"caseNumber":7}`)
	assert.Equal(t, game.EventCaseSelected, res.Event)
	require.NotNil(t, res.Snapshot.SelectedCase)
	assert.Equal(t, "7", *res.Snapshot.SelectedCase)

	for i := 1; i <= 6; i++ {
		res = ts.action(t, "open_case", `{"caseNumber":"`+strconv.Itoa(i)+`"}`)
		assert.Equal(t, game.EventCaseOpened, res.Event)
	}
	assert.Equal(t, domain.PhaseOfferPhase, res.Snapshot.Phase)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, game.EventSuggestOffer, res.Notices[0].Event)
	assert.JSONEq(t, `{"suggestedOffer":71963.16}`, string(res.Notices[0].Payload))

	res = ts.action(t, "make_offer", `{"useSuggested":true}`)
	assert.Equal(t, game.EventNewOffer, res.Event)
	assert.Equal(t, []domain.OfferEntry{{Amount: 71963.16, AutoGenerated: true}}, res.Snapshot.OfferHistory)

	res = ts.action(t, "accept_offer", "")
	assert.Equal(t, game.EventDealTaken, res.Event)
	assert.Equal(t, domain.PhaseDealTaken, res.Snapshot.Phase)

	res = ts.action(t, "reset_game", "")
	assert.Equal(t, game.EventGameReset, res.Event)
	assert.Equal(t, domain.PhaseNotStarted, ts.Game.Phase())
}

func TestActionErrors(t *testing.T) {
	tests := []struct {
		name     string
		shuffler game.Shuffler
		action   string
		body     string
		status   int
		code     string
	}{
		{"UnknownAction", identityShuffler{}, "dance", "", http.StatusBadRequest, CodeInvalidInput},
		{"MissingName", identityShuffler{}, "start_game", `{}`, http.StatusBadRequest, CodeInvalidInput},
		{"WrongPhase", identityShuffler{}, "open_case", `{"caseNumber":"3"}`, http.StatusConflict, CodeIllegalPhase},
		{"BadJSON", identityShuffler{}, "start_game", `{"playerName":`, http.StatusBadRequest, CodeInvalidRequest},
		{"FractionalCase", identityShuffler{}, "select_case", `{"caseNumber":2.5}`, http.StatusBadRequest, CodeInvalidRequest},
		{"ShuffleFailure", brokenShuffler{}, "start_game", `{"playerName":"Alice"}`, http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.shuffler)

			status, resp := ts.do(t, http.MethodPost, "/api/v1/game/actions/"+tt.action, tt.body)
			assert.Equal(t, tt.status, status)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
			assert.Equal(t, domain.PhaseNotStarted, ts.Game.Phase())
		})
	}
}

func TestRejectionMessage(t *testing.T) {
	ts := newTestServer(t, identityShuffler{})

	_, resp := ts.do(t, http.MethodPost, "/api/v1/game/actions/open_case", `{"caseNumber":"3"}`)
	assert.Equal(t, "cannot open case during not_started", resp.Error.Message)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, identityShuffler{})

	req, err := http.NewRequest(http.MethodOptions, ts.Server.URL+"/api/v1/game/actions/start_game", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

// WebSocket helpers

func dialWS(t *testing.T, ts *TestServer) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.Server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// The greeting arrives after registration, so broadcasts from here on are seen
	msg := readWS(t, conn)
	require.Equal(t, game.EventGameState, msg.Type)
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func sendWS(t *testing.T, conn *websocket.Conn, msgType, payload string) {
	t.Helper()

	frame := WSMessage{Type: msgType}
	if payload != "" {
		frame.Payload = json.RawMessage(payload)
	}
	require.NoError(t, conn.WriteJSON(frame))
}

func snapshotOf(t *testing.T, msg WSMessage) domain.Snapshot {
	t.Helper()

	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(msg.Payload, &snap))
	return snap
}

func TestWebSocketGreeting(t *testing.T) {
	ts := newTestServer(t, identityShuffler{})
	_, err := ts.Game.StartGame(t.Context(), "Alice")
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(ts.Server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := readWS(t, conn)
	assert.Equal(t, game.EventGameState, msg.Type)
	snap := snapshotOf(t, msg)
	assert.Equal(t, domain.PhaseCaseSelection, snap.Phase)
	assert.Equal(t, "Alice", *snap.PlayerName)
}

func TestWebSocketBroadcast(t *testing.T) {
	ts := newTestServer(t, identityShuffler{})
	alice := dialWS(t, ts)
	bob := dialWS(t, ts)
	assert.Equal(t, 2, ts.Handler.Hub().ClientCount())

	sendWS(t, alice, "start_game", `{"playerName":"Alice"}`)
	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := readWS(t, conn)
		assert.Equal(t, game.EventGameStarted, msg.Type)
		assert.Equal(t, domain.PhaseCaseSelection, snapshotOf(t, msg).Phase)
	}

	// Rejections reach the sender only
	sendWS(t, alice, "open_case", `{"caseNumber":"3"}`)
	msg := readWS(t, alice)
	require.Equal(t, game.EventError, msg.Type)
	assert.JSONEq(t, `{"code":"ILLEGAL_PHASE","message":"cannot open case during case_selection"}`, string(msg.Payload))

	sendWS(t, bob, "select_case", `{"caseNumber":7}`)
	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := readWS(t, conn)
		assert.Equal(t, game.EventCaseSelected, msg.Type, "bob must not see alice's error")
	}
}

func TestWebSocketSuggestOfferNotice(t *testing.T) {
	ts := newTestServer(t, identityShuffler{})
	conn := dialWS(t, ts)

	sendWS(t, conn, "start_game", `{"playerName":"Alice"}`)
	readWS(t, conn)
	sendWS(t, conn, "select_case", `{"caseNumber":"7"}`)
	readWS(t, conn)
	for i := 1; i <= 6; i++ {
		sendWS(t, conn, "open_case", `{"caseNumber":`+strconv.Itoa(i)+`}`)
		assert.Equal(t, game.EventCaseOpened, readWS(t, conn).Type)
	}

	msg := readWS(t, conn)
	assert.Equal(t, game.EventSuggestOffer, msg.Type)
	assert.JSONEq(t, `{"suggestedOffer":71963.16}`, string(msg.Payload))

	sendWS(t, conn, "admin_handle_offer", `{"accepted":false}`)
	msg = readWS(t, conn)
	assert.Equal(t, game.EventOfferRejected, msg.Type)
	assert.Equal(t, 2, snapshotOf(t, msg).RoundNumber)
}

func TestRESTActionsReachObservers(t *testing.T) {
	ts := newTestServer(t, identityShuffler{})
	conn := dialWS(t, ts)

	ts.action(t, "start_game", `{"playerName":"Carol"}`)

	msg := readWS(t, conn)
	assert.Equal(t, game.EventGameStarted, msg.Type)
	assert.Equal(t, "Carol", *snapshotOf(t, msg).PlayerName)
}

func TestWebSocketInvalidFrames(t *testing.T) {
	ts := newTestServer(t, identityShuffler{})
	conn := dialWS(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg := readWS(t, conn)
	assert.Equal(t, game.EventError, msg.Type)
	assert.Contains(t, string(msg.Payload), CodeInvalidRequest)

	sendWS(t, conn, "start_game", `"Alice"`)
	msg = readWS(t, conn)
	assert.Equal(t, game.EventError, msg.Type)
	assert.Contains(t, string(msg.Payload), CodeInvalidRequest)

	sendWS(t, conn, "ping", "")
	assert.Equal(t, "pong", readWS(t, conn).Type)

	sendWS(t, conn, game.EventGameState, "")
	assert.Equal(t, game.EventGameState, readWS(t, conn).Type)
}

func TestHubDropsClosedClients(t *testing.T) {
	ts := newTestServer(t, identityShuffler{})
	conn := dialWS(t, ts)
	require.Equal(t, 1, ts.Handler.Hub().ClientCount())

	conn.Close()
	assert.Eventually(t, func() bool {
		return ts.Handler.Hub().ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Accepted actions with no observers left go nowhere
	out, err := ts.Game.Execute(t.Context(), game.Command{Action: game.ActionStartGame, PlayerName: "Dan"})
	require.NoError(t, err)
	ts.Handler.Hub().Publish(out)
	assert.Zero(t, ts.Handler.Hub().ClientCount())
}

func TestObserversSeeMutationOrder(t *testing.T) {
	ts := newTestServer(t, identityShuffler{}, game.WithRecorder(slowRecorder{}))

	ts.action(t, "start_game", `{"playerName":"Erin"}`)
	ts.action(t, "select_case", `{"caseNumber":7}`)
	for i := 1; i <= 6; i++ {
		ts.action(t, "open_case", `{"caseNumber":"`+strconv.Itoa(i)+`"}`)
	}
	conn := dialWS(t, ts)

	const (
		workers = 16
		offers  = 10
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			amount := 1000.0
			for i := 0; i < offers; i++ {
				_, err := ts.Game.Execute(context.Background(), game.Command{Action: game.ActionMakeOffer, Offer: &amount})
				assert.NoError(t, err)
			}
		}()
	}

	for want := 1; want <= workers*offers; want++ {
		msg := readWS(t, conn)
		require.Equal(t, game.EventNewOffer, msg.Type)

		var snap domain.Snapshot
		require.NoError(t, json.Unmarshal(msg.Payload, &snap))
		require.Len(t, snap.OfferHistory, want, "snapshots arrived out of order")
	}
	wg.Wait()
}

func TestEncodeMessage(t *testing.T) {
	msg, err := encodeMessage("suggest_offer", map[string]float64{"suggestedOffer": 1.5})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(msg, []byte(`{"type":"suggest_offer"`)))
	assert.JSONEq(t, `{"type":"suggest_offer","payload":{"suggestedOffer":1.5}}`, string(msg))
}
