// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package detection

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/caseguard/caseguard/internal/honeytrap"
	"github.com/caseguard/caseguard/internal/models"
)

func testEvent(kind models.EventKind, path string) *models.Event {
	return &models.Event{
		ID:          "evt-1",
		Fingerprint: "fp-aaaa1111",
		CaseID:      "case-1",
		IPAddress:   "203.0.113.10",
		Path:        path,
		Kind:        kind,
		Timestamp:   time.Now(),
	}
}

func historyOf(paths ...string) []models.Event {
	events := make([]models.Event, 0, len(paths))
	for i, path := range paths {
		events = append(events, models.Event{
			ID:          "hist-" + path,
			Fingerprint: "fp-aaaa1111",
			CaseID:      "case-1",
			IPAddress:   "203.0.113.10",
			Path:        path,
			Kind:        models.EventPageView,
			Timestamp:   time.Now().Add(-time.Duration(i+1) * time.Minute),
		})
	}
	return events
}

func TestCriminalAnonymizedAccess(t *testing.T) {
	d := NewCriminalDetector()
	event := testEvent(models.EventPageView, "/cases/1")
	event.Network.Tor = true

	result, err := d.Check(context.Background(), &Input{Event: event})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Triggered || result.Score != 10.0 || result.Severity != 5 {
		t.Fatalf("tor access: triggered=%v score=%v severity=%d", result.Triggered, result.Score, result.Severity)
	}
	if result.Signals[0] != "anonymized_network_access" {
		t.Fatalf("signal = %q", result.Signals[0])
	}
}

func TestDetectorSeveritiesWithinScale(t *testing.T) {
	detectors := []Detector{
		NewCriminalDetector(),
		NewBehavioralDetector(),
		NewContentDetector(),
		NewEnvironmentalDetector(),
		NewEvasionDetector(nil),
		NewHoneytrapDetector(&fakeTrapChecker{trap: &honeytrap.Trap{ID: "trap-1", Type: honeytrap.TrapCanaryToken}}),
		NewNetworkDetector(nil),
		NewPsychologicalDetector(),
		NewSessionDetector(),
		NewTemporalDetector(),
	}

	// An event hot enough to light every zero-tolerance signal.
	event := testEvent(models.EventFormSubmit, "/cases/1/evidence/edit")
	event.Network = models.NetworkFlags{Tor: true, VPN: true, OpenProxy: true, Hosting: true}
	event.Device.FreshProfile = true
	event.Device.VirtualMachine = true
	event.Device.PrivacyHardened = true
	input := &Input{Event: event, History: historyOf("/cases/1/victim", "/cases/1/victim", "/cases/1/witnesses")}

	for _, d := range detectors {
		result, err := d.Check(context.Background(), input)
		if err != nil {
			t.Fatalf("%s: %v", d.Type(), err)
		}
		if result.Severity < 0 || result.Severity > 5 {
			t.Errorf("%s: severity %d outside [0,5] (score %.1f)", d.Type(), result.Severity, result.Score)
		}
	}
}

func TestCriminalOpenProxy(t *testing.T) {
	d := NewCriminalDetector()
	event := testEvent(models.EventPageView, "/cases/1")
	event.Network.OpenProxy = true

	result, _ := d.Check(context.Background(), &Input{Event: event})
	if !result.Triggered || result.Score != 9.0 {
		t.Fatalf("proxy access: triggered=%v score=%v", result.Triggered, result.Score)
	}
}

func TestCriminalEvidenceInterference(t *testing.T) {
	tests := []struct {
		name   string
		kind   models.EventKind
		path   string
		tamper bool
	}{
		{"mutation marker on evidence path", models.EventClick, "/cases/1/evidence/3/delete", true},
		{"form submit on evidence path", models.EventFormSubmit, "/cases/1/evidence/3", true},
		{"plain view of evidence", models.EventPageView, "/cases/1/evidence/3", false},
		{"mutation off evidence surface", models.EventClick, "/cases/1/profile/edit", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewCriminalDetector()
			result, _ := d.Check(context.Background(), &Input{Event: testEvent(tt.kind, tt.path)})
			if result.TamperIndicator != tt.tamper {
				t.Fatalf("tamper = %v, want %v", result.TamperIndicator, tt.tamper)
			}
			if tt.tamper && result.Score != 9.5 {
				t.Fatalf("tamper score = %v, want 9.5", result.Score)
			}
		})
	}
}

func TestCriminalVictimObsession(t *testing.T) {
	d := NewCriminalDetector()
	event := testEvent(models.EventPageView, "/cases/1/victim")
	input := &Input{
		Event:   event,
		History: historyOf("/cases/1/victim", "/cases/1/victim", "/cases/1/victim", "/cases/1"),
	}

	result, _ := d.Check(context.Background(), input)
	if !result.Triggered {
		t.Fatal("expected victim obsession trigger")
	}
	// 4 victim visits * 0.4
	if result.Score != 1.6 {
		t.Fatalf("score = %v, want 1.6", result.Score)
	}
	if got := result.Details["victim_page_visits"]; got != 4 {
		t.Fatalf("visits = %v, want 4", got)
	}
}

func TestCriminalVictimObsessionSingleVisitClean(t *testing.T) {
	d := NewCriminalDetector()
	result, _ := d.Check(context.Background(), &Input{Event: testEvent(models.EventPageView, "/cases/1/victim")})
	if result.Triggered {
		t.Fatal("a single victim-page visit must not trigger")
	}
}

func TestCriminalWitnessTargeting(t *testing.T) {
	d := NewCriminalDetector()
	event := testEvent(models.EventPageView, "/cases/1/witness/2")
	input := &Input{
		Event:   event,
		History: historyOf("/cases/1/witness/2", "/cases/1/witness/2", "/cases/1/witness/2", "/cases/1/witness/2", "/cases/1/witness/2"),
	}

	result, _ := d.Check(context.Background(), input)
	found := false
	for _, s := range result.Signals {
		if s == "witness_targeting" {
			found = true
		}
	}
	if !found {
		t.Fatalf("witness_targeting missing from %v", result.Signals)
	}
	// 6 visits: 7.0 + 2*0.3
	if result.Score != 7.6 {
		t.Fatalf("score = %v, want 7.6", result.Score)
	}
}

func TestCriminalAccessProbing(t *testing.T) {
	d := NewCriminalDetector()
	event := testEvent(models.EventFormFail, "/cases/1/restricted")
	history := historyOf("/a", "/b")
	history[0].Kind = models.EventFormFail
	history[1].Kind = models.EventLoginAttempt

	result, _ := d.Check(context.Background(), &Input{Event: event, History: history})
	found := false
	for _, s := range result.Signals {
		if s == "restricted_access_probing" {
			found = true
		}
	}
	if !found {
		t.Fatalf("restricted_access_probing missing from %v", result.Signals)
	}
	if result.Score != 5.0 {
		t.Fatalf("score = %v, want 5.0", result.Score)
	}
}

func TestCriminalConfigure(t *testing.T) {
	d := NewCriminalDetector()
	if err := d.Configure(json.RawMessage(`{"tor_score": 8.0}`)); err != nil {
		t.Fatal(err)
	}
	event := testEvent(models.EventPageView, "/cases/1")
	event.Network.Tor = true
	result, _ := d.Check(context.Background(), &Input{Event: event})
	if result.Score != 8.0 {
		t.Fatalf("reconfigured score = %v, want 8.0", result.Score)
	}

	if err := d.Configure(json.RawMessage(`{broken`)); err == nil {
		t.Fatal("expected an error for malformed config")
	}
}

func TestCriminalDisabledFlag(t *testing.T) {
	d := NewCriminalDetector()
	d.SetEnabled(false)
	if d.Enabled() {
		t.Fatal("detector still enabled after SetEnabled(false)")
	}
}
