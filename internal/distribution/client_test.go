// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package distribution

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// setupWebSocketServer serves connections by registering each one as a
// hub client and starting its pumps.
func setupWebSocketServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade connection: %v", err)
			return
		}
		client := NewClient(hub, conn)
		hub.Register <- client
		client.Start()
	}))
}

func dialWebSocket(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	return conn
}

// wireMessage mirrors Message on the receiving side with a raw
// payload.
type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readWire(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func TestClientSubscribeRoundTrip(t *testing.T) {
	hub := startHub(t, 0)
	server := setupWebSocketServer(t, hub)
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	err := conn.WriteJSON(map[string]interface{}{
		"type": MessageTypeSubscribe,
		"data": Scope{Cases: []string{"case-7"}},
	})
	if err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	ack := readWire(t, conn)
	if ack.Type != MessageTypeSubscribed {
		t.Fatalf("expected subscribed ack, got %q", ack.Type)
	}
	var scope Scope
	if err := json.Unmarshal(ack.Data, &scope); err != nil {
		t.Fatalf("decode ack scope: %v", err)
	}
	if len(scope.Cases) != 1 || scope.Cases[0] != "case-7" {
		t.Errorf("ack scope = %+v, want case-7", scope)
	}

	// Scoped traffic for the subscribed case arrives; other cases do
	// not.
	hub.BroadcastOutcome(testOutcome("case-7", "fp-cccc3333"))

	msg := readWire(t, conn)
	if msg.Type != MessageTypeOutcome {
		t.Fatalf("expected outcome, got %q", msg.Type)
	}
}

func TestClientPingPong(t *testing.T) {
	hub := startHub(t, 0)
	server := setupWebSocketServer(t, hub)
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": MessageTypePing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	msg := readWire(t, conn)
	if msg.Type != MessageTypePong {
		t.Errorf("expected pong, got %q", msg.Type)
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub := startHub(t, 0)
	server := setupWebSocketServer(t, hub)
	defer server.Close()

	conn := dialWebSocket(t, server)
	time.Sleep(20 * time.Millisecond)
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}

	conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client not unregistered after close, count = %d", hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClientScopeManagement(t *testing.T) {
	client := createTestClient(NewHub(0), 1)

	client.Subscribe(Scope{Admin: true, Cases: []string{"case-1", "case-2"}})
	client.Subscribe(Scope{Fingerprints: []string{"fp-aaaa1111"}})

	if !client.wants(Message{caseID: "case-2"}) {
		t.Error("admin client should receive any scoped message")
	}

	client.Unsubscribe(Scope{Admin: true})
	if client.wants(Message{caseID: "case-9"}) {
		t.Error("non-admin client should not receive unrelated cases")
	}
	if !client.wants(Message{caseID: "case-1"}) {
		t.Error("case subscription should survive admin unsubscribe")
	}
	if !client.wants(Message{fingerprint: "fp-aaaa1111"}) {
		t.Error("fingerprint subscription should match")
	}

	client.Unsubscribe(Scope{Cases: []string{"case-1"}})
	if client.wants(Message{caseID: "case-1"}) {
		t.Error("unsubscribed case should no longer match")
	}

	// Unscoped messages always pass.
	if !client.wants(Message{Type: MessageTypeHeartbeat}) {
		t.Error("unscoped messages should reach every client")
	}
}

func TestClientHandleControlMalformed(t *testing.T) {
	client := createTestClient(NewHub(0), 4)

	client.handleControl(controlMessage{
		Type: MessageTypeSubscribe,
		Data: json.RawMessage(`{not json`),
	})

	select {
	case msg := <-client.send:
		t.Fatalf("expected no ack for malformed payload, got %q", msg.Type)
	default:
	}
	if client.wants(Message{caseID: "case-1"}) {
		t.Error("malformed subscribe must not change scope")
	}
}

func TestClientTimingConstants(t *testing.T) {
	if pingPeriod >= pongWait {
		t.Errorf("pingPeriod %v must be shorter than pongWait %v", pingPeriod, pongWait)
	}
	if writeWait != 10*time.Second {
		t.Errorf("writeWait = %v, want 10s", writeWait)
	}
}
