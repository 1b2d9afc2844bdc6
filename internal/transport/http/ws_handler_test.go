package http

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"adaptive-testing-service/internal/app"
)

type rawOutbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readMessage(t *testing.T, conn *websocket.Conn) rawOutbound {
	t.Helper()
	var msg rawOutbound
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestWebsocketDelivery(t *testing.T) {
	server, engine := newTestServer(t)

	session, err := engine.Start(context.Background(), app.StartParams{PoolID: "pool-1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?sessionId=" + session.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"type": "next"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readMessage(t, conn)
	if msg.Type != "item" {
		t.Fatalf("expected item message, got %s", msg.Type)
	}
	var next nextResponse
	if err := json.Unmarshal(msg.Payload, &next); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if next.Item == nil {
		t.Fatalf("expected an item payload")
	}

	submit, _ := json.Marshal(submitRequest{ItemID: next.Item.ID, Correct: true})
	if err := conn.WriteJSON(map[string]any{"type": "submit", "payload": json.RawMessage(submit)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = readMessage(t, conn)
	if msg.Type != "item" {
		t.Fatalf("expected next item after submit, got %s", msg.Type)
	}

	if err := conn.WriteJSON(map[string]any{"type": "end"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = readMessage(t, conn)
	if msg.Type != "finished" {
		t.Fatalf("expected finished message, got %s", msg.Type)
	}

	// The session is terminal now; further requests surface errors.
	if err := conn.WriteJSON(map[string]any{"type": "next"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = readMessage(t, conn)
	if msg.Type != "error" {
		t.Fatalf("expected error on terminal session, got %s", msg.Type)
	}
}

func TestWebsocketRejectsUnknownMessage(t *testing.T) {
	server, engine := newTestServer(t)
	session, err := engine.Start(context.Background(), app.StartParams{PoolID: "pool-1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?sessionId=" + session.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"type": "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != "error" {
		t.Fatalf("expected error, got %s", msg.Type)
	}
}
