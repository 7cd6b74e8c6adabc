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

	"github.com/caseguard/caseguard/internal/models"
)

func TestTemporalTimelineStudy(t *testing.T) {
	d := NewTemporalDetector()
	event := testEvent(models.EventPageView, "/cases/1/timeline")
	input := &Input{
		Event:   event,
		History: historyOf("/cases/1/timeline", "/cases/1/timeline", "/cases/1/timeline"),
	}

	result, err := d.Check(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if !hasSignal(result, "repeat_timeline_study") {
		t.Fatalf("repeat_timeline_study missing from %v", result.Signals)
	}
	// 4 visits at threshold 4: base 5.0.
	if result.Score != 5.0 {
		t.Fatalf("score = %v, want 5.0", result.Score)
	}
}

func TestTemporalNocturnalConcentration(t *testing.T) {
	d := NewTemporalDetector()
	night := time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC)

	event := testEvent(models.EventPageView, "/cases/1")
	event.Timestamp = night

	history := historyOf("/a", "/b", "/c", "/d")
	for i := range history {
		history[i].Timestamp = night.Add(-time.Duration(i+1) * 24 * time.Hour)
	}

	result, _ := d.Check(context.Background(), &Input{Event: event, History: history})
	if !hasSignal(result, "nocturnal_concentration") {
		t.Fatalf("nocturnal_concentration missing from %v", result.Signals)
	}
	// All five events at night: 4.0 + 3.0*1.0.
	if result.Score != 7.0 {
		t.Fatalf("score = %v, want 7.0", result.Score)
	}
}

func TestTemporalDaytimeClean(t *testing.T) {
	d := NewTemporalDetector()
	noon := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	event := testEvent(models.EventPageView, "/cases/1")
	event.Timestamp = noon
	history := historyOf("/a", "/b", "/c", "/d")
	for i := range history {
		history[i].Timestamp = noon.Add(-time.Duration(i+1) * 24 * time.Hour)
	}

	result, _ := d.Check(context.Background(), &Input{Event: event, History: history})
	if hasSignal(result, "nocturnal_concentration") {
		t.Fatal("daytime activity flagged as nocturnal")
	}
}

func TestTemporalAnniversaryVisit(t *testing.T) {
	d := NewTemporalDetector()
	if err := d.Configure(json.RawMessage(`{"anniversary_dates": ["03-10"], "timeline_repeat_threshold": 4, "night_ratio_threshold": 0.6, "night_min_events": 5, "ritual_min_visits": 3, "acceleration_factor": 3.0, "acceleration_min_events": 8}`)); err != nil {
		t.Fatal(err)
	}

	event := testEvent(models.EventPageView, "/cases/1")
	event.Timestamp = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	result, _ := d.Check(context.Background(), &Input{Event: event})
	if !hasSignal(result, "anniversary_visit") {
		t.Fatalf("anniversary_visit missing from %v", result.Signals)
	}
	if result.Details["anniversary"] != "03-10" {
		t.Fatalf("anniversary detail = %v", result.Details["anniversary"])
	}
}

func TestTemporalRitualTiming(t *testing.T) {
	d := NewTemporalDetector()
	base := time.Date(2026, 3, 10, 22, 15, 0, 0, time.UTC)

	event := testEvent(models.EventPageView, "/cases/1")
	event.Timestamp = base

	// Same hour on two prior days.
	history := historyOf("/a", "/b")
	history[0].Timestamp = base.Add(-24 * time.Hour)
	history[1].Timestamp = base.Add(-48 * time.Hour)

	result, _ := d.Check(context.Background(), &Input{Event: event, History: history})
	if !hasSignal(result, "ritual_timing") {
		t.Fatalf("ritual_timing missing from %v", result.Signals)
	}
	if result.Details["same_hour_days"] != 3 {
		t.Fatalf("same_hour_days = %v, want 3", result.Details["same_hour_days"])
	}
}

func TestTemporalEscalatingFrequency(t *testing.T) {
	d := NewTemporalDetector()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	event := testEvent(models.EventPageView, "/cases/1")
	event.Timestamp = now

	// Seven prior events over four days; six of them inside the most
	// recent quarter of the span.
	history := make([]models.Event, 7)
	for i := 0; i < 6; i++ {
		history[i] = models.Event{
			ID: "hist-recent", Fingerprint: event.Fingerprint, CaseID: event.CaseID,
			IPAddress: "203.0.113.10", Path: "/cases/1", Kind: models.EventPageView,
			Timestamp: now.Add(-time.Duration(i+1) * time.Hour),
		}
	}
	history[6] = models.Event{
		ID: "hist-old", Fingerprint: event.Fingerprint, CaseID: event.CaseID,
		IPAddress: "203.0.113.10", Path: "/cases/1", Kind: models.EventPageView,
		Timestamp: now.Add(-96 * time.Hour),
	}

	result, _ := d.Check(context.Background(), &Input{Event: event, History: history})
	if !hasSignal(result, "escalating_frequency") {
		t.Fatalf("escalating_frequency missing from %v", result.Signals)
	}
}
