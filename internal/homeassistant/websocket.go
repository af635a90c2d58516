package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// reconnectDelay is how long the supervisor waits before redialing after
// a connection drop or authentication failure.
const reconnectDelay = 5 * time.Second

// Event represents a Home Assistant event received via WebSocket.
type Event struct {
	Type      string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Origin    string          `json:"origin"`
	TimeFired time.Time       `json:"time_fired"`
}

// StateChangedData represents the data payload for state_changed events.
type StateChangedData struct {
	EntityID string `json:"entity_id"`
	OldState *State `json:"old_state"`
	NewState *State `json:"new_state"`
}

// wsMessage is the generic WebSocket message format.
type wsMessage struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success bool            `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Event   *Event          `json:"event,omitempty"`
	Error   *wsError        `json:"error,omitempty"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSClient manages the WebSocket connection to Home Assistant's event
// endpoint. It is run by a supervisor goroutine (see [WSClient.Run])
// that owns the socket exclusively and reconnects with a fixed backoff.
type WSClient struct {
	baseURL string
	token   string
	msgID   atomic.Int64

	connected     atomic.Bool
	everConnected atomic.Bool

	// events carries state_changed events to the synchronizer. The
	// channel is buffered; if the consumer stalls, events are dropped
	// (the read path corrects via TTL expiry).
	events chan Event

	// reconnect is the supervisor's private signalling channel: a send
	// wakes Run between sessions so it redials without waiting out
	// reconnectDelay. Run receives on it; nothing in this package sends
	// on it, so Run waits the full delay after every session.
	reconnect chan struct{}

	closeOnce sync.Once
	logger    *slog.Logger
}

// NewWSClient creates a new WebSocket client for Home Assistant.
func NewWSClient(baseURL, token string, logger *slog.Logger) *WSClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSClient{
		baseURL:   baseURL,
		token:     token,
		events:    make(chan Event, 256),
		reconnect: make(chan struct{}, 1),
		logger:    logger,
	}
}

// Events returns the channel carrying subscribed events.
func (c *WSClient) Events() <-chan Event {
	return c.events
}

// Connected reports whether the client currently holds an authenticated
// connection.
func (c *WSClient) Connected() bool {
	return c.connected.Load()
}

// Run is the supervisor loop: dial, authenticate, subscribe to
// state_changed, then read until the connection drops, and repeat with
// a fixed backoff. It blocks until ctx is cancelled. The socket is
// owned exclusively by this goroutine.
func (c *WSClient) Run(ctx context.Context) {
	defer c.closeOnce.Do(func() { close(c.events) })

	for {
		if err := c.runOnce(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("home assistant websocket session ended", "error", err)
		}
		c.connected.Store(false)

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		case <-c.reconnect:
		}
	}
}

// runOnce performs a single connect/auth/subscribe/read cycle.
func (c *WSClient) runOnce(ctx context.Context) error {
	wsURL, err := c.websocketURL()
	if err != nil {
		return err
	}

	c.logger.Info("connecting to Home Assistant WebSocket", "url", wsURL)

	dialer := websocket.Dialer{
		ReadBufferSize:  1024 * 1024,
		WriteBufferSize: 64 * 1024,
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("dial websocket: %w", err)
	}
	defer conn.Close()

	// Large installs can push very large state payloads.
	conn.SetReadLimit(32 * 1024 * 1024)

	// Close the socket when ctx is cancelled so the blocking read below
	// unblocks promptly.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := c.authenticate(conn); err != nil {
		return err
	}

	if err := c.subscribe(conn, "state_changed"); err != nil {
		return fmt.Errorf("subscribe state_changed: %w", err)
	}

	c.connected.Store(true)
	c.everConnected.Store(true)
	c.logger.Info("home assistant websocket authenticated and subscribed")

	return c.readLoop(conn)
}

func (c *WSClient) websocketURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = "/api/websocket"
	return u.String(), nil
}

// authenticate performs the auth_required / auth / auth_ok handshake.
func (c *WSClient) authenticate(conn *websocket.Conn) error {
	var authReq wsMessage
	if err := conn.ReadJSON(&authReq); err != nil {
		return fmt.Errorf("read auth_required: %w", err)
	}
	if authReq.Type != "auth_required" {
		return fmt.Errorf("expected auth_required, got %s", authReq.Type)
	}

	authMsg := map[string]string{
		"type":         "auth",
		"access_token": c.token,
	}
	if err := conn.WriteJSON(authMsg); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	var authResp wsMessage
	if err := conn.ReadJSON(&authResp); err != nil {
		return fmt.Errorf("read auth response: %w", err)
	}
	switch authResp.Type {
	case "auth_ok":
		return nil
	case "auth_invalid":
		return fmt.Errorf("authentication failed")
	default:
		return fmt.Errorf("unexpected auth response: %s", authResp.Type)
	}
}

// subscribe sends a subscribe_events request and waits for its result.
// The subscription acknowledgment is always the next result message on
// a fresh connection, so a simple in-line wait suffices.
func (c *WSClient) subscribe(conn *websocket.Conn, eventType string) error {
	id := c.msgID.Add(1)
	msg := map[string]any{
		"id":         id,
		"type":       "subscribe_events",
		"event_type": eventType,
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	for {
		var resp wsMessage
		if err := conn.ReadJSON(&resp); err != nil {
			return fmt.Errorf("read subscribe result: %w", err)
		}
		if resp.Type != "result" || resp.ID != id {
			continue
		}
		if !resp.Success {
			if resp.Error != nil {
				return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
			}
			return fmt.Errorf("subscription rejected")
		}
		return nil
	}
}

// readLoop reads messages until the connection drops, forwarding events
// to the events channel.
func (c *WSClient) readLoop(conn *websocket.Conn) error {
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("home assistant websocket closed")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		switch msg.Type {
		case "event":
			if msg.Event == nil {
				continue
			}
			select {
			case c.events <- *msg.Event:
			default:
				c.logger.Warn("event channel full, dropping event", "type", msg.Event.Type)
			}

		case "pong":
			// keepalive, ignore

		default:
			c.logger.Debug("unhandled websocket message type", "type", msg.Type)
		}
	}
}
