// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package detection

import (
	"context"
	"testing"
	"time"

	"github.com/caseguard/caseguard/internal/models"
)

func TestSessionAddressChange(t *testing.T) {
	d := NewSessionDetector()
	event := testEvent(models.EventPageView, "/cases/1")
	event.SessionID = "sess-1"
	event.IPAddress = "198.51.100.7"

	history := historyOf("/cases/1")
	history[0].SessionID = "sess-1"
	history[0].IPAddress = "203.0.113.10"

	result, err := d.Check(context.Background(), &Input{Event: event, History: history})
	if err != nil {
		t.Fatal(err)
	}
	if !hasSignal(result, "session_address_change") {
		t.Fatalf("session_address_change missing from %v", result.Signals)
	}
	if result.Details["previous_ip"] != "203.0.113.10" {
		t.Fatalf("previous_ip = %v", result.Details["previous_ip"])
	}
}

func TestSessionSameAddressClean(t *testing.T) {
	d := NewSessionDetector()
	event := testEvent(models.EventPageView, "/cases/1")
	event.SessionID = "sess-1"

	history := historyOf("/cases/1")
	history[0].SessionID = "sess-1"
	history[0].IPAddress = event.IPAddress

	result, _ := d.Check(context.Background(), &Input{Event: event, History: history})
	if hasSignal(result, "session_address_change") {
		t.Fatal("stable session flagged as hijack")
	}
}

func TestSessionOutOfOrderNavigation(t *testing.T) {
	d := NewSessionDetector()
	event := testEvent(models.EventPageView, "/cases/1/evidence/42")
	event.SessionID = "sess-1"

	result, _ := d.Check(context.Background(), &Input{Event: event})
	if !hasSignal(result, "out_of_order_navigation") {
		t.Fatalf("out_of_order_navigation missing from %v", result.Signals)
	}
}

func TestSessionLinkedNavigationClean(t *testing.T) {
	d := NewSessionDetector()
	now := time.Now()

	event := testEvent(models.EventPageView, "/cases/1/evidence/42")
	event.SessionID = "sess-1"
	event.Timestamp = now
	event.Payload = map[string]any{"referrer": "/cases/1/evidence"}

	result, _ := d.Check(context.Background(), &Input{Event: event})
	if hasSignal(result, "out_of_order_navigation") {
		t.Fatal("referred navigation flagged as out of order")
	}

	// No referrer, but the session has prior activity.
	event.Payload = nil
	history := historyOf("/cases/1")
	history[0].SessionID = "sess-1"
	history[0].Timestamp = now.Add(-time.Minute)

	result, _ = d.Check(context.Background(), &Input{Event: event, History: history})
	if hasSignal(result, "out_of_order_navigation") {
		t.Fatal("established session flagged as out of order")
	}
}

func TestSessionScriptedTiming(t *testing.T) {
	d := NewSessionDetector()
	now := time.Now()

	event := testEvent(models.EventPageView, "/cases/1")
	event.SessionID = "sess-1"
	event.Timestamp = now
	event.Payload = map[string]any{"referrer": "/cases"}

	// Events exactly five seconds apart, newest first.
	history := make([]models.Event, 4)
	for i := range history {
		history[i] = models.Event{
			ID: "hist", Fingerprint: event.Fingerprint, CaseID: event.CaseID,
			IPAddress: event.IPAddress, Path: "/cases/1", Kind: models.EventPageView,
			SessionID: "sess-1",
			Timestamp: now.Add(-time.Duration(i+1) * 5 * time.Second),
		}
	}

	result, _ := d.Check(context.Background(), &Input{Event: event, History: history})
	if !hasSignal(result, "scripted_timing") {
		t.Fatalf("scripted_timing missing from %v", result.Signals)
	}
}

func TestSessionHumanTimingClean(t *testing.T) {
	d := NewSessionDetector()
	now := time.Now()

	event := testEvent(models.EventPageView, "/cases/1")
	event.SessionID = "sess-1"
	event.Timestamp = now
	event.Payload = map[string]any{"referrer": "/cases"}

	gaps := []time.Duration{3 * time.Second, 11 * time.Second, 19 * time.Second, 47 * time.Second}
	history := make([]models.Event, 4)
	offset := time.Duration(0)
	for i, gap := range gaps {
		offset += gap
		history[i] = models.Event{
			ID: "hist", Fingerprint: event.Fingerprint, CaseID: event.CaseID,
			IPAddress: event.IPAddress, Path: "/cases/1", Kind: models.EventPageView,
			SessionID: "sess-1",
			Timestamp: now.Add(-offset),
		}
	}

	result, _ := d.Check(context.Background(), &Input{Event: event, History: history})
	if hasSignal(result, "scripted_timing") {
		t.Fatal("irregular human timing flagged as scripted")
	}
}

func TestSessionParallelSessions(t *testing.T) {
	d := NewSessionDetector()
	now := time.Now()

	event := testEvent(models.EventPageView, "/cases/1")
	event.SessionID = "sess-1"
	event.IPAddress = "198.51.100.1"
	event.Timestamp = now

	history := historyOf("/cases/1")
	history[0].SessionID = "sess-2"
	history[0].IPAddress = "203.0.113.99"
	history[0].Timestamp = now.Add(-time.Minute)

	result, _ := d.Check(context.Background(), &Input{Event: event, History: history})
	if !hasSignal(result, "parallel_sessions") {
		t.Fatalf("parallel_sessions missing from %v", result.Signals)
	}
}

func TestSessionParallelOutsideWindowClean(t *testing.T) {
	d := NewSessionDetector()
	now := time.Now()

	event := testEvent(models.EventPageView, "/cases/1")
	event.SessionID = "sess-1"
	event.IPAddress = "198.51.100.1"
	event.Timestamp = now

	history := historyOf("/cases/1")
	history[0].SessionID = "sess-2"
	history[0].IPAddress = "203.0.113.99"
	history[0].Timestamp = now.Add(-time.Hour)

	result, _ := d.Check(context.Background(), &Input{Event: event, History: history})
	if hasSignal(result, "parallel_sessions") {
		t.Fatal("stale session counted as parallel")
	}
}
