// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/caseguard/caseguard/internal/detection"
	"github.com/caseguard/caseguard/internal/models"
)

func startHub(t *testing.T, env *testEnv) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = env.hub.RunWithContext(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func dialWS(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	if query != "" {
		url += "?" + query
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v (resp %+v)", err, resp)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, env *testEnv, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env.hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d", want)
}

func TestWebSocketReceivesOutcomes(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	startHub(t, env)

	server := httptest.NewServer(env.router)
	defer server.Close()

	conn := dialWS(t, server, "admin=true")
	waitForClients(t, env, 1)

	env.hub.BroadcastOutcome(&detection.Outcome{
		EventID:     "evt-ws-1",
		Fingerprint: "fp-aaaa1111",
		CaseID:      "case-1",
		Score:       9.0,
		ThreatLevel: models.ThreatCritical,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != "outcome" {
		t.Fatalf("frame type = %q, want outcome", frame.Type)
	}

	var outcome detection.Outcome
	if err := json.Unmarshal(frame.Data, &outcome); err != nil {
		t.Fatal(err)
	}
	if outcome.EventID != "evt-ws-1" {
		t.Errorf("event ID = %q, want evt-ws-1", outcome.EventID)
	}
}

func TestWebSocketScopeFromQuery(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	startHub(t, env)

	server := httptest.NewServer(env.router)
	defer server.Close()

	conn := dialWS(t, server, "case_id=case-7")
	waitForClients(t, env, 1)

	// Outcome for another case must not reach a case-7 observer.
	env.hub.BroadcastOutcome(&detection.Outcome{
		EventID: "evt-other",
		CaseID:  "case-1",
		Score:   9.0,
	})
	env.hub.BroadcastOutcome(&detection.Outcome{
		EventID: "evt-mine",
		CaseID:  "case-7",
		Score:   9.0,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	var outcome detection.Outcome
	if err := json.Unmarshal(frame.Data, &outcome); err != nil {
		t.Fatal(err)
	}
	if outcome.EventID != "evt-mine" {
		t.Errorf("received %q, want evt-mine", outcome.EventID)
	}
}

func TestWebSocketUnavailableWithoutHub(t *testing.T) {
	t.Parallel()

	router := NewRouter(NewHandler(HandlerDeps{}), nil).Setup()
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial should fail without a hub")
	}
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode != 503 {
			t.Errorf("status = %d, want 503", resp.StatusCode)
		}
	}
}
