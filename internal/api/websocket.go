package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/alexbotov/dond/internal/game"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMessage is the frame used in both directions: an action name and its
// payload inbound, an event name and its payload outbound
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSClient is one connected observer
type WSClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// enqueue queues a frame without blocking. Slow clients lose frames.
func (c *WSClient) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub tracks connected observers and fans out state changes to them
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*WSClient
	pubMu   sync.Mutex
	logger  *log.Logger
}

func newHub(logger *log.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*WSClient),
		logger:  logger,
	}
}

func (h *Hub) register(c *WSClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Observer connected", "client", c.id, "clients", count)
}

func (h *Hub) unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		h.logger.Info("Observer disconnected", "client", c.id, "clients", count)
	}
}

// ClientCount returns the number of connected observers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish broadcasts an accepted action: the event with the full snapshot,
// followed by any notices it raised. The engine calls it under its lock, so
// it only enqueues.
func (h *Hub) Publish(out *game.Outcome) {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	h.broadcast(out.Event, out.Snapshot)
	for _, n := range out.Notices {
		h.broadcast(n.Event, n.Payload)
	}
}

func (h *Hub) broadcast(event string, payload interface{}) {
	msg, err := encodeMessage(event, payload)
	if err != nil {
		h.logger.Error("Failed to encode broadcast", "event", event, "err", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		if c.enqueue(msg) {
			delivered++
		}
	}
	h.logger.Debug("Broadcast", "event", event, "delivered", delivered, "clients", len(clients))
}

func encodeMessage(msgType string, payload interface{}) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{Type: msgType, Payload: payloadBytes})
}

// HandleWebSocket handles GET /ws
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	client := &WSClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.hub.register(client)
	h.sendMessage(client, game.EventGameState, h.game.Snapshot())

	go client.writePump()
	go h.readPump(client)
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads inbound actions until the connection drops
func (h *Handler) readPump(c *WSClient) {
	defer func() {
		h.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket read failed", "client", c.id, "err", err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.sendError(c, CodeInvalidRequest, "Invalid message format")
			continue
		}

		h.handleWSMessage(c, &msg)
	}
}

// handleWSMessage executes one inbound frame. Rejections go to the sender
// only; accepted actions reach every observer through the engine.
func (h *Handler) handleWSMessage(c *WSClient, msg *WSMessage) {
	switch msg.Type {
	case "ping":
		h.sendMessage(c, "pong", map[string]interface{}{"timestamp": time.Now().Unix()})
		return
	case game.EventGameState:
		h.sendMessage(c, game.EventGameState, h.game.Snapshot())
		return
	}

	var cmd game.Command
	if len(msg.Payload) > 0 && !bytes.Equal(msg.Payload, []byte("null")) {
		if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
			h.sendError(c, CodeInvalidRequest, "Invalid payload for "+msg.Type)
			return
		}
	}
	cmd.Action = game.Action(msg.Type)

	if _, err := h.game.Execute(context.Background(), cmd); err != nil {
		_, code := classify(err)
		if code == CodeInternal {
			h.logger.Error("Action failed", "action", cmd.Action, "client", c.id, "err", err)
		}
		h.sendError(c, code, errorMessage(err))
	}
}

// sendMessage sends a message to one client
func (h *Handler) sendMessage(c *WSClient, msgType string, payload interface{}) {
	msg, err := encodeMessage(msgType, payload)
	if err != nil {
		h.logger.Error("Failed to encode message", "type", msgType, "err", err)
		return
	}
	if !c.enqueue(msg) {
		h.logger.Debug("Dropped message", "type", msgType, "client", c.id)
	}
}

// sendError sends an error message to the client
func (h *Handler) sendError(c *WSClient, code, message string) {
	h.sendMessage(c, game.EventError, map[string]string{
		"code":    code,
		"message": message,
	})
}
