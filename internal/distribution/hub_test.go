// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package distribution

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/caseguard/caseguard/internal/alerting"
	"github.com/caseguard/caseguard/internal/detection"
	"github.com/caseguard/caseguard/internal/logging"
	"github.com/caseguard/caseguard/internal/models"
)

func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// startHub starts a hub under a cancelable context and registers
// cleanup.
func startHub(t *testing.T, heartbeat time.Duration) *Hub {
	t.Helper()
	hub := NewHub(heartbeat)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.RunWithContext(ctx) }()
	time.Sleep(10 * time.Millisecond)
	return hub
}

// createTestClient creates a client without a live connection.
func createTestClient(hub *Hub, sendBuffer int) *Client {
	return &Client{
		id:           clientIDCounter.Add(1),
		hub:          hub,
		conn:         nil,
		send:         make(chan Message, sendBuffer),
		cases:        make(map[string]struct{}),
		fingerprints: make(map[string]struct{}),
	}
}

func registerClient(hub *Hub, client *Client) {
	hub.Register <- client
	time.Sleep(20 * time.Millisecond)
}

// recv waits for one message on the client's send channel.
func recv(t *testing.T, client *Client) Message {
	t.Helper()
	select {
	case msg := <-client.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

// expectNothing asserts the client receives no message within a short
// window.
func expectNothing(t *testing.T, client *Client) {
	t.Helper()
	select {
	case msg := <-client.send:
		t.Fatalf("expected no message, got type %q", msg.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func testOutcome(caseID, fingerprint string) *detection.Outcome {
	return &detection.Outcome{
		EventID:     "evt-1",
		Fingerprint: fingerprint,
		CaseID:      caseID,
		Score:       9.0,
		ThreatLevel: models.ThreatCritical,
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(30 * time.Second)

	if hub.clients == nil {
		t.Error("clients map not initialized")
	}
	if hub.broadcast == nil {
		t.Error("broadcast channel not initialized")
	}
	if hub.Register == nil || hub.Unregister == nil {
		t.Error("lifecycle channels not initialized")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHubScopeFiltering(t *testing.T) {
	hub := startHub(t, 0)

	admin := createTestClient(hub, 256)
	admin.Subscribe(Scope{Admin: true})

	observer := createTestClient(hub, 256)
	observer.Subscribe(Scope{Cases: []string{"case-1"}})

	follower := createTestClient(hub, 256)
	follower.Subscribe(Scope{Fingerprints: []string{"fp-aaaa1111"}})

	idle := createTestClient(hub, 256)

	for _, c := range []*Client{admin, observer, follower, idle} {
		registerClient(hub, c)
	}

	hub.BroadcastOutcome(testOutcome("case-1", "fp-bbbb2222"))

	if msg := recv(t, admin); msg.Type != MessageTypeOutcome {
		t.Errorf("admin expected outcome, got %q", msg.Type)
	}
	if msg := recv(t, observer); msg.Type != MessageTypeOutcome {
		t.Errorf("observer expected outcome, got %q", msg.Type)
	}
	expectNothing(t, follower)
	expectNothing(t, idle)

	hub.BroadcastAlert(&alerting.Alert{
		ID:          "alr-1",
		CaseID:      "case-9",
		Fingerprint: "fp-aaaa1111",
	})

	if msg := recv(t, admin); msg.Type != MessageTypeAlert {
		t.Errorf("admin expected alert, got %q", msg.Type)
	}
	if msg := recv(t, follower); msg.Type != MessageTypeAlert {
		t.Errorf("follower expected alert, got %q", msg.Type)
	}
	expectNothing(t, observer)
	expectNothing(t, idle)
}

func TestHubUnscopedMessagesReachEveryone(t *testing.T) {
	hub := startHub(t, 0)

	subscribed := createTestClient(hub, 256)
	subscribed.Subscribe(Scope{Cases: []string{"case-1"}})
	idle := createTestClient(hub, 256)

	registerClient(hub, subscribed)
	registerClient(hub, idle)

	hub.BroadcastJSON(MessageTypeHeartbeat, HeartbeatData{Timestamp: "now", Clients: 2})

	for _, c := range []*Client{subscribed, idle} {
		if msg := recv(t, c); msg.Type != MessageTypeHeartbeat {
			t.Errorf("expected heartbeat, got %q", msg.Type)
		}
	}
}

func TestHubHeartbeatTicker(t *testing.T) {
	hub := startHub(t, 25*time.Millisecond)

	client := createTestClient(hub, 256)
	registerClient(hub, client)

	msg := recv(t, client)
	if msg.Type != MessageTypeHeartbeat {
		t.Fatalf("expected heartbeat, got %q", msg.Type)
	}
	data, ok := msg.Data.(HeartbeatData)
	if !ok {
		t.Fatalf("expected HeartbeatData, got %T", msg.Data)
	}
	if data.Clients != 1 {
		t.Errorf("expected 1 client in heartbeat, got %d", data.Clients)
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := startHub(t, 0)

	slow := createTestClient(hub, 1)
	slow.Subscribe(Scope{Admin: true})
	registerClient(hub, slow)

	// First message fills the buffer; second finds it full and drops
	// the client.
	hub.BroadcastOutcome(testOutcome("case-1", "fp-aaaa1111"))
	hub.BroadcastOutcome(testOutcome("case-1", "fp-aaaa1111"))
	time.Sleep(50 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("expected slow client to be dropped, count = %d", hub.ClientCount())
	}
}

func TestHubUnregister(t *testing.T) {
	hub := startHub(t, 0)

	client := createTestClient(hub, 256)
	registerClient(hub, client)
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}

	hub.Unregister <- client
	time.Sleep(20 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients after unregister, got %d", hub.ClientCount())
	}
	if _, open := <-client.send; open {
		t.Error("send channel should be closed after unregister")
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub(0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()
	time.Sleep(10 * time.Millisecond)

	client := createTestClient(hub, 256)
	registerClient(hub, client)

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not stop after cancel")
	}

	if hub.ClientCount() != 0 {
		t.Errorf("expected all clients closed, count = %d", hub.ClientCount())
	}
	if _, open := <-client.send; open {
		t.Error("send channel should be closed after shutdown")
	}
}

func TestHubBroadcastWithoutClients(t *testing.T) {
	hub := startHub(t, 0)
	hub.BroadcastOutcome(testOutcome("case-1", "fp-aaaa1111"))
	hub.BroadcastAlert(&alerting.Alert{ID: "alr-1"})
	time.Sleep(10 * time.Millisecond)
}
