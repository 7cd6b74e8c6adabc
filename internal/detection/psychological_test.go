// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package detection

import (
	"context"
	"testing"

	"github.com/caseguard/caseguard/internal/models"
)

func TestPsychologicalCompulsiveStatusChecking(t *testing.T) {
	d := NewPsychologicalDetector()
	event := testEvent(models.EventPageView, "/cases/1/status")
	input := &Input{
		Event: event,
		History: historyOf(
			"/cases/1/status", "/cases/1/status", "/cases/1/status",
			"/cases/1/status", "/cases/1/docket",
		),
	}

	result, err := d.Check(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if !hasSignal(result, "compulsive_status_checking") {
		t.Fatalf("compulsive_status_checking missing from %v", result.Signals)
	}
	// 6 checks at threshold 6: base 5.0.
	if result.Score != 5.0 {
		t.Fatalf("score = %v, want 5.0", result.Score)
	}
}

func TestPsychologicalStressedInputCadence(t *testing.T) {
	d := NewPsychologicalDetector()
	event := testEvent(models.EventFormSubmit, "/cases/1/contact")
	event.Payload = map[string]any{"typing_cadence_var": 0.85}

	result, _ := d.Check(context.Background(), &Input{Event: event})
	if !hasSignal(result, "stressed_input_cadence") {
		t.Fatalf("stressed_input_cadence missing from %v", result.Signals)
	}
}

func TestPsychologicalAbandonedConfessionDraft(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    bool
	}{
		{"long deleted draft", map[string]any{"draft_deleted": true, "draft_length": 450.0}, true},
		{"short deleted draft", map[string]any{"draft_deleted": true, "draft_length": 50.0}, false},
		{"long draft kept", map[string]any{"draft_length": 450.0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewPsychologicalDetector()
			event := testEvent(models.EventFormSubmit, "/cases/1/tips")
			event.Payload = tt.payload

			result, _ := d.Check(context.Background(), &Input{Event: event})
			if got := hasSignal(result, "abandoned_confession_draft"); got != tt.want {
				t.Fatalf("abandoned_confession_draft = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPsychologicalExclusiveCaseFixation(t *testing.T) {
	d := NewPsychologicalDetector()
	event := testEvent(models.EventPageView, "/cases/1")

	caseHistory := make([]models.Event, 19)
	paths := make([]string, 19)
	for i := range paths {
		paths[i] = "/cases/1"
	}
	copy(caseHistory, historyOf(paths...))

	// All activity lands on one case.
	input := &Input{Event: event, History: caseHistory, AllHistory: caseHistory}
	result, _ := d.Check(context.Background(), input)
	if !hasSignal(result, "exclusive_case_fixation") {
		t.Fatalf("exclusive_case_fixation missing from %v", result.Signals)
	}

	// The same volume spread across other cases is not fixation.
	broader := make([]models.Event, len(caseHistory)+10)
	copy(broader, caseHistory)
	input = &Input{Event: event, History: caseHistory, AllHistory: broader}
	result, _ = d.Check(context.Background(), input)
	if hasSignal(result, "exclusive_case_fixation") {
		t.Fatal("cross-case activity still flagged as fixation")
	}
}
