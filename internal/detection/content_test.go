// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package detection

import (
	"context"
	"testing"

	"github.com/goccy/go-json"

	"github.com/caseguard/caseguard/internal/models"
)

func TestContentLexiconScan(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		signal string
		score  float64
	}{
		{"disposal language", "how to destroy evidence quickly", "disposal_language", 8.0},
		{"counter forensics", "best anonymous browsing setup", "counter_forensics", 7.0},
		{"procedure probing", "statute of limitations for this", "procedure_probing", 6.0},
		{"guilty language", "do they know about the car", "guilty_language", 6.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewContentDetector()
			event := testEvent(models.EventSearch, "/search")
			event.Payload = map[string]any{"search_text": tt.text}

			result, err := d.Check(context.Background(), &Input{Event: event})
			if err != nil {
				t.Fatal(err)
			}
			if !hasSignal(result, tt.signal) {
				t.Fatalf("%s missing from %v", tt.signal, result.Signals)
			}
			if result.Score != tt.score {
				t.Fatalf("score = %v, want %v", result.Score, tt.score)
			}
		})
	}
}

func TestContentCopiedTextScanned(t *testing.T) {
	d := NewContentDetector()
	event := testEvent(models.EventCopy, "/cases/1/documents/3")
	event.Payload = map[string]any{"text": "notes on how to cover tracks afterwards"}

	result, _ := d.Check(context.Background(), &Input{Event: event})
	if !hasSignal(result, "counter_forensics") {
		t.Fatalf("counter_forensics missing from %v", result.Signals)
	}
}

func TestContentInnocuousTextClean(t *testing.T) {
	d := NewContentDetector()
	event := testEvent(models.EventSearch, "/search")
	event.Payload = map[string]any{"search_text": "hearing date for case 2026-cv-104"}

	result, _ := d.Check(context.Background(), &Input{Event: event})
	if result.Triggered {
		t.Fatalf("innocuous search triggered: %v", result.Signals)
	}
}

func TestContentBulkHarvesting(t *testing.T) {
	d := NewContentDetector()
	event := testEvent(models.EventDownload, "/cases/1/documents/9")

	history := historyOf("/d1", "/d2", "/d3", "/d4", "/d5", "/d6", "/d7", "/d8", "/d9")
	for i := range history {
		if i%2 == 0 {
			history[i].Kind = models.EventDownload
		} else {
			history[i].Kind = models.EventCopy
		}
	}

	result, _ := d.Check(context.Background(), &Input{Event: event, History: history})
	if !hasSignal(result, "bulk_content_harvesting") {
		t.Fatalf("bulk_content_harvesting missing from %v", result.Signals)
	}
	// 10 harvest events, threshold 8: 6.5 + 0.2*2.
	if result.Score != 6.9 {
		t.Fatalf("score = %v, want 6.9", result.Score)
	}
}

func TestContentMediaSignals(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		signal  string
	}{
		{"deep zoom", map[string]any{"zoom_level": 4.0}, "obsessive_media_inspection"},
		{"replays", map[string]any{"replay_count": 6.0}, "media_fixation"},
		{"face focus", map[string]any{"face_focus": true}, "person_focused_viewing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewContentDetector()
			event := testEvent(models.EventMediaView, "/cases/1/media/7")
			event.Payload = tt.payload

			result, _ := d.Check(context.Background(), &Input{Event: event})
			if !hasSignal(result, tt.signal) {
				t.Fatalf("%s missing from %v", tt.signal, result.Signals)
			}
		})
	}
}

func TestContentMediaSignalsRequireMediaView(t *testing.T) {
	d := NewContentDetector()
	event := testEvent(models.EventPageView, "/cases/1/media/7")
	event.Payload = map[string]any{"zoom_level": 4.0}

	result, _ := d.Check(context.Background(), &Input{Event: event})
	if hasSignal(result, "obsessive_media_inspection") {
		t.Fatal("zoom signal fired outside a media view")
	}
}

func TestContentConfigureRebuildsLexicons(t *testing.T) {
	d := NewContentDetector()
	cfg := ContentConfig{
		Lexicons:         map[string][]string{"disposal_language": {"vanish the files"}},
		HarvestThreshold: 8,
		ZoomThreshold:    3.0,
		ReplayThreshold:  5,
	}
	raw, _ := json.Marshal(cfg)
	if err := d.Configure(raw); err != nil {
		t.Fatal(err)
	}

	event := testEvent(models.EventSearch, "/search")
	event.Payload = map[string]any{"search_text": "how to vanish the files"}
	result, _ := d.Check(context.Background(), &Input{Event: event})
	if !hasSignal(result, "disposal_language") {
		t.Fatal("custom lexicon phrase not matched after reconfigure")
	}

	// The built-in phrase set is gone after replacement.
	event.Payload = map[string]any{"search_text": "destroy evidence"}
	result, _ = d.Check(context.Background(), &Input{Event: event})
	if hasSignal(result, "disposal_language") {
		t.Fatal("stale lexicon survived reconfigure")
	}
}
