package homeassistant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeWSHA upgrades one connection, performs the HA auth handshake,
// acknowledges the state_changed subscription, and emits one event.
// The returned drop func closes every upgraded connection from the
// server side; httptest's CloseClientConnections does not reach
// hijacked (upgraded) connections.
func fakeWSHA(t *testing.T, token string) (*httptest.Server, func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	var conns []*websocket.Conn

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		mu.Lock()
		conns = append(conns, conn)
		mu.Unlock()

		conn.WriteJSON(map[string]any{"type": "auth_required"})

		var auth map[string]string
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		if auth["access_token"] != token {
			conn.WriteJSON(map[string]any{"type": "auth_invalid"})
			return
		}
		conn.WriteJSON(map[string]any{"type": "auth_ok"})

		var sub map[string]any
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		if sub["type"] != "subscribe_events" || sub["event_type"] != "state_changed" {
			conn.WriteJSON(map[string]any{"id": sub["id"], "type": "result", "success": false})
			return
		}
		conn.WriteJSON(map[string]any{"id": sub["id"], "type": "result", "success": true})

		conn.WriteJSON(map[string]any{
			"type": "event",
			"event": map[string]any{
				"event_type": "state_changed",
				"time_fired": "2025-06-01T10:00:00Z",
				"data": map[string]any{
					"entity_id": "light.den",
					"new_state": map[string]any{"entity_id": "light.den", "state": "on"},
				},
			},
		})

		// Hold the connection open until the client goes away.
		conn.ReadMessage()
	}))
	drop := func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	}
	return srv, drop
}

func TestWSClientDeliversEvents(t *testing.T) {
	srv, _ := fakeWSHA(t, "tok")
	defer srv.Close()

	client := NewWSClient(srv.URL, "tok", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	select {
	case ev := <-client.Events():
		if ev.Type != "state_changed" {
			t.Errorf("event type = %s, want state_changed", ev.Type)
		}
		if !client.Connected() {
			t.Error("Connected() = false while delivering events")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}

func TestWSClientAuthFailure(t *testing.T) {
	srv, _ := fakeWSHA(t, "right-token")
	defer srv.Close()

	client := NewWSClient(srv.URL, "wrong-token", testLogger())

	err := client.runOnce(context.Background())
	if err == nil {
		t.Fatal("runOnce() = nil, want auth failure")
	}
	if client.Connected() {
		t.Error("Connected() = true after auth failure")
	}
}

func TestWSClientHealthTransitions(t *testing.T) {
	srv, drop := fakeWSHA(t, "tok")
	defer srv.Close()

	client := NewWSClient(srv.URL, "tok", testLogger())
	sync := NewSynchronizer(&Client{}, client, nil, 30*time.Second, testLogger())

	if got := sync.Health(); got != HealthConfigured {
		t.Errorf("Health() = %s before connect, want configured", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	// Wait for the session to establish.
	deadline := time.Now().Add(5 * time.Second)
	for !client.Connected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := sync.Health(); got != HealthConnected {
		t.Fatalf("Health() = %s, want connected", got)
	}

	// Sever the connection; the supervisor notices and health degrades.
	drop()
	deadline = time.Now().Add(5 * time.Second)
	for client.Connected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := sync.Health(); got != HealthDisconnected {
		t.Errorf("Health() = %s after drop, want disconnected", got)
	}
}
