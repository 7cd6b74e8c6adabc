// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package honeytrap

import (
	"os"
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/caseguard/caseguard/internal/models"
)

// createTestBadgerDB opens a throwaway BadgerDB instance.
func createTestBadgerDB(t *testing.T) (*badger.DB, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "honeytrap-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		os.RemoveAll(dir)
		t.Fatalf("failed to open badger: %v", err)
	}
	return db, func() {
		db.Close()
		os.RemoveAll(dir)
	}
}

func setupRegistry(t *testing.T) (*Registry, func()) {
	t.Helper()
	db, cleanup := createTestBadgerDB(t)
	registry, err := NewRegistry(NewBadgerStore(db), RegistryConfig{})
	if err != nil {
		cleanup()
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return registry, cleanup
}

func trapEvent(path string, kind models.EventKind, payload map[string]any) *models.Event {
	return &models.Event{
		ID:          "evt-1",
		Fingerprint: "fp-aaaa1111",
		CaseID:      "case-7",
		IPAddress:   "203.0.113.10",
		Path:        path,
		Kind:        kind,
		Payload:     payload,
	}
}

func TestDeployHiddenRoute(t *testing.T) {
	registry, cleanup := setupRegistry(t)
	defer cleanup()

	trap, err := registry.Deploy(DeployRequest{CaseID: "case-7", Type: TrapHiddenRoute})
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if trap.Path == "" {
		t.Fatal("hidden route got no path")
	}
	if !strings.HasPrefix(trap.Path, "/cases/internal/case-7/") {
		t.Errorf("path = %q, want /cases/internal/case-7/ prefix", trap.Path)
	}
	if !trap.Active {
		t.Error("deployed trap should be active")
	}
}

func TestDeployRejectsUnknownType(t *testing.T) {
	registry, cleanup := setupRegistry(t)
	defer cleanup()

	if _, err := registry.Deploy(DeployRequest{CaseID: "case-7", Type: "tarpit"}); err == nil {
		t.Fatal("Deploy with unknown type should fail")
	}
	if _, err := registry.Deploy(DeployRequest{CaseID: "case-7", Type: TrapBehavioralTripwire}); err == nil {
		t.Fatal("tripwire without kind should fail")
	}
}

func TestCheckHiddenRouteHit(t *testing.T) {
	registry, cleanup := setupRegistry(t)
	defer cleanup()

	trap, _ := registry.Deploy(DeployRequest{CaseID: "case-7", Type: TrapHiddenRoute})

	hit, err := registry.Check(trapEvent(trap.Path, models.EventPageView, nil))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if hit == nil {
		t.Fatal("Check missed a deployed hidden route")
	}
	if hit.TriggerCount != 1 {
		t.Errorf("TriggerCount = %d, want 1", hit.TriggerCount)
	}
	if hit.LastTriggeredAt == nil {
		t.Error("LastTriggeredAt not set")
	}

	miss, err := registry.Check(trapEvent("/cases/case-7/status", models.EventPageView, nil))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if miss != nil {
		t.Error("Check matched an ordinary path")
	}
}

func TestCheckCanaryToken(t *testing.T) {
	registry, cleanup := setupRegistry(t)
	defer cleanup()

	trap, _ := registry.Deploy(DeployRequest{CaseID: "case-7", Type: TrapCanaryToken})

	hit, err := registry.Check(trapEvent("/search", models.EventSearch, map[string]any{
		"text": "looking for " + trap.Token + " in records",
	}))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if hit == nil || hit.ID != trap.ID {
		t.Fatal("canary token in search text not matched")
	}

	direct, err := registry.Check(trapEvent("/copy", models.EventCopy, map[string]any{
		"canary_token": trap.Token,
	}))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if direct == nil {
		t.Fatal("direct canary token payload not matched")
	}
}

func TestCheckTripwireKindGate(t *testing.T) {
	registry, cleanup := setupRegistry(t)
	defer cleanup()

	trap, _ := registry.Deploy(DeployRequest{
		CaseID: "case-7",
		Type:   TrapBehavioralTripwire,
		Kind:   models.EventCopy,
	})

	// A page view against the tripwire path does not arm it.
	if hit, _ := registry.Check(trapEvent(trap.Path, models.EventPageView, nil)); hit != nil {
		t.Error("tripwire fired on non-matching kind")
	}
	if hit, _ := registry.Check(trapEvent(trap.Path, models.EventCopy, nil)); hit == nil {
		t.Error("tripwire did not fire on matching kind")
	}
}

func TestDeactivatedTrapDoesNotFire(t *testing.T) {
	registry, cleanup := setupRegistry(t)
	defer cleanup()

	trap, _ := registry.Deploy(DeployRequest{CaseID: "case-7", Type: TrapHiddenRoute})
	if err := registry.Deactivate(trap.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if hit, _ := registry.Check(trapEvent(trap.Path, models.EventPageView, nil)); hit != nil {
		t.Error("deactivated trap fired")
	}
}

func TestRegistryReloadsFromStore(t *testing.T) {
	db, cleanup := createTestBadgerDB(t)
	defer cleanup()
	store := NewBadgerStore(db)

	registry, err := NewRegistry(store, RegistryConfig{})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	trap, _ := registry.Deploy(DeployRequest{CaseID: "case-7", Type: TrapHiddenRoute})

	reloaded, err := NewRegistry(store, RegistryConfig{})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if hit, _ := reloaded.Check(trapEvent(trap.Path, models.EventPageView, nil)); hit == nil {
		t.Error("trap lost across registry reload")
	}
}

func TestEffectivenessReport(t *testing.T) {
	registry, cleanup := setupRegistry(t)
	defer cleanup()

	route, _ := registry.Deploy(DeployRequest{CaseID: "case-7", Type: TrapHiddenRoute})
	registry.Deploy(DeployRequest{CaseID: "case-7", Type: TrapDecoyDocument})

	registry.Check(trapEvent(route.Path, models.EventPageView, nil))
	second := trapEvent(route.Path, models.EventPageView, nil)
	second.Fingerprint = "fp-bbbb2222"
	registry.Check(second)

	report, err := registry.Effectiveness("case-7")
	if err != nil {
		t.Fatalf("Effectiveness failed: %v", err)
	}
	if report.TrapCount != 2 {
		t.Errorf("TrapCount = %d, want 2", report.TrapCount)
	}
	if report.TriggerCount != 2 {
		t.Errorf("TriggerCount = %d, want 2", report.TriggerCount)
	}
	if report.UniqueActors != 2 {
		t.Errorf("UniqueActors = %d, want 2", report.UniqueActors)
	}
	if report.Score <= 0 {
		t.Errorf("Score = %f, want > 0", report.Score)
	}
	if report.RecentTriggers != 2 {
		t.Errorf("RecentTriggers = %d, want 2", report.RecentTriggers)
	}
	if report.RecentActors != 2 {
		t.Errorf("RecentActors = %d, want 2", report.RecentActors)
	}
	if len(report.Traps) != 2 {
		t.Fatalf("ranked %d traps, want 2", len(report.Traps))
	}
	if report.Traps[0].TrapID != route.ID {
		t.Errorf("best performer = %s, want the triggered route %s", report.Traps[0].TrapID, route.ID)
	}
	if report.Traps[0].RatePerHour <= report.Traps[1].RatePerHour {
		t.Errorf("ranking not descending: %f <= %f", report.Traps[0].RatePerHour, report.Traps[1].RatePerHour)
	}
	// No canary token deployed yet, so the report should say so.
	found := false
	for _, rec := range report.Recommendations {
		if strings.Contains(rec, "canary") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing canary recommendation, got %v", report.Recommendations)
	}
}
