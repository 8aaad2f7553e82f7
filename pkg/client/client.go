package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ClientConfig configures a Client
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int // attempts for GET requests on transport errors
}

// Client talks to a game server over REST and WebSocket
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewClient creates a new game server client
func NewClient(config *ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return NewClientWithHTTPClient(config, &http.Client{
		Timeout: config.Timeout,
	})
}

// NewClientWithHTTPClient creates a new client with a custom HTTP client
func NewClientWithHTTPClient(config *ClientConfig, httpClient *http.Client) *Client {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Client{
		config:     config,
		httpClient: httpClient,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// doRequest performs an HTTP request and decodes the response envelope
func (c *Client) doRequest(ctx context.Context, method, endpoint string, reqBody interface{}, result interface{}) (int, error) {
	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	// Actions are not idempotent, so only reads are retried
	retryCount := c.config.RetryCount
	if retryCount == 0 || method != http.MethodGet {
		retryCount = 1
	}

	var resp *http.Response
	var lastErr error
	for i := 0; i < retryCount; i++ {
		req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, bytes.NewReader(bodyBytes))
		if err != nil {
			return 0, fmt.Errorf("failed to create request: %w", err)
		}
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err = c.httpClient.Do(req)
		if err == nil {
			break
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	if resp == nil {
		return 0, fmt.Errorf("request failed after %d attempts: %w", retryCount, lastErr)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}

	return resp.StatusCode, nil
}

func get[T any](ctx context.Context, c *Client, endpoint string) (*T, error) {
	var resp Response[T]
	status, err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		resp.Error.Status = status
		return nil, resp.Error
	}
	return resp.Data, nil
}

// Info retrieves the server name and version
func (c *Client) Info(ctx context.Context) (*ServerInfo, error) {
	return get[ServerInfo](ctx, c, "/")
}

// Health retrieves the server and RNG health
func (c *Client) Health(ctx context.Context) (*Health, error) {
	return get[Health](ctx, c, "/health")
}

// GetState retrieves the current game snapshot
func (c *Client) GetState(ctx context.Context) (*State, error) {
	return get[State](ctx, c, "/api/v1/game/state")
}

// Do performs an action. Rejections are returned as *APIError.
func (c *Client) Do(ctx context.Context, action string, payload *Payload) (*Result, error) {
	if payload == nil {
		payload = &Payload{}
	}

	var resp Response[Result]
	status, err := c.doRequest(ctx, http.MethodPost, "/api/v1/game/actions/"+action, payload, &resp)
	if err != nil {
		return nil, err
	}

	if resp.Error != nil {
		resp.Error.Status = status
		return nil, resp.Error
	}

	return resp.Data, nil
}

// StartGame deals a new game for playerName
func (c *Client) StartGame(ctx context.Context, playerName string) (*Result, error) {
	return c.Do(ctx, ActionStartGame, &Payload{PlayerName: playerName})
}

// SelectCase keeps caseNumber as the player's case
func (c *Client) SelectCase(ctx context.Context, caseNumber string) (*Result, error) {
	return c.Do(ctx, ActionSelectCase, &Payload{CaseNumber: caseNumber})
}

// OpenCase reveals caseNumber
func (c *Client) OpenCase(ctx context.Context, caseNumber string) (*Result, error) {
	return c.Do(ctx, ActionOpenCase, &Payload{CaseNumber: caseNumber})
}

// MakeOffer puts amount on the table, or the suggested offer when useSuggested is set
func (c *Client) MakeOffer(ctx context.Context, amount float64, useSuggested bool) (*Result, error) {
	p := &Payload{UseSuggested: useSuggested}
	if !useSuggested {
		p.Offer = &amount
	}
	return c.Do(ctx, ActionMakeOffer, p)
}

// AcceptOffer takes the deal
func (c *Client) AcceptOffer(ctx context.Context) (*Result, error) {
	return c.Do(ctx, ActionAcceptOffer, nil)
}

// RejectOffer declines the offer
func (c *Client) RejectOffer(ctx context.Context) (*Result, error) {
	return c.Do(ctx, ActionRejectOffer, nil)
}

// AdminForceOffer settles the offer on the player's behalf
func (c *Client) AdminForceOffer(ctx context.Context, accepted bool) (*Result, error) {
	return c.Do(ctx, ActionAdminForceOffer, &Payload{Accepted: accepted})
}

// ResetGame discards the current game
func (c *Client) ResetGame(ctx context.Context) (*Result, error) {
	return c.Do(ctx, ActionResetGame, nil)
}

func (c *Client) wsURL() string {
	u := c.config.BaseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// Watch subscribes to the observer channel and calls fn for every event,
// starting with the current game_state. It returns nil when ctx is
// cancelled and fn's error when fn fails.
func (c *Client) Watch(ctx context.Context, fn func(*Event) error) error {
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.wsURL(), err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(&ev); err != nil {
			if errors.Is(err, ErrStopWatching) {
				return nil
			}
			return err
		}
	}
}

// ErrStopWatching can be returned by a Watch callback to end the subscription cleanly
var ErrStopWatching = errors.New("stop watching")
