// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package detection

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"github.com/caseguard/caseguard/internal/cache"
	"github.com/caseguard/caseguard/internal/models"
)

// Lexicon categories for the risk-language scan.
const (
	lexiconDisposal        = "disposal_language"
	lexiconCounterForensic = "counter_forensics"
	lexiconProcedure       = "procedure_probing"
	lexiconGuilt           = "guilty_language"
)

// ContentConfig configures the content interaction detector.
type ContentConfig struct {
	// Lexicons map category names to the phrases scanned for in search
	// and copied text.
	Lexicons map[string][]string `json:"lexicons"`

	// HarvestThreshold is the download + copy count that marks bulk
	// collection within the window.
	HarvestThreshold int `json:"harvest_threshold"`

	// ZoomThreshold marks obsessive media inspection. Producers report
	// zoom level as a multiple of the base size.
	ZoomThreshold float64 `json:"zoom_threshold"`

	// ReplayThreshold is the media replay count that marks fixation.
	ReplayThreshold int `json:"replay_threshold"`
}

// DefaultContentConfig returns production defaults, including the
// built-in risk lexicons.
func DefaultContentConfig() ContentConfig {
	return ContentConfig{
		Lexicons: map[string][]string{
			lexiconDisposal: {
				"destroy evidence", "get rid of", "dispose of", "burn the",
				"delete records", "wipe clean", "shred",
			},
			lexiconCounterForensic: {
				"untraceable", "hide my ip", "without being tracked", "vpn detection",
				"anonymous browsing", "cover tracks", "avoid detection",
			},
			lexiconProcedure: {
				"statute of limitations", "extradition", "warrant requirements",
				"evidence admissibility", "how long sentence", "plea deal",
			},
			lexiconGuilt: {
				"what did they find", "do they know", "am i mentioned",
				"was i seen", "any witnesses",
			},
		},
		HarvestThreshold: 8,
		ZoomThreshold:    3.0,
		ReplayThreshold:  5,
	}
}

// ContentDetector scores what the actor reads, searches, copies and
// views. The lexicon scan runs on an Aho-Corasick matcher so phrase list
// growth does not slow the hot path.
type ContentDetector struct {
	mu      sync.RWMutex
	config  ContentConfig
	matcher *cache.PatternMatcher
	enabled bool
}

// NewContentDetector creates the detector and builds the lexicon matcher.
func NewContentDetector() *ContentDetector {
	d := &ContentDetector{
		config:  DefaultContentConfig(),
		enabled: true,
	}
	d.matcher = buildLexiconMatcher(d.config.Lexicons)
	return d
}

func buildLexiconMatcher(lexicons map[string][]string) *cache.PatternMatcher {
	m := cache.NewPatternMatcher()
	for category, phrases := range lexicons {
		m.AddPatterns(phrases, category)
	}
	m.Build()
	return m
}

// Type returns the detector type.
func (d *ContentDetector) Type() DetectorType { return DetectorContent }

// Configure updates the configuration and rebuilds the lexicon matcher.
func (d *ContentDetector) Configure(config json.RawMessage) error {
	var cfg ContentConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("invalid content config: %w", err)
	}
	matcher := buildLexiconMatcher(cfg.Lexicons)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
	d.matcher = matcher
	return nil
}

// Enabled returns whether the detector is active.
func (d *ContentDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the detector.
func (d *ContentDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Check evaluates the content signals.
func (d *ContentDetector) Check(_ context.Context, input *Input) (*Result, error) {
	d.mu.RLock()
	cfg := d.config
	matcher := d.matcher
	d.mu.RUnlock()

	event := input.Event
	result := &Result{Detector: DetectorContent, Details: make(map[string]any)}
	addSignal := func(name string, score float64, severity int) {
		result.Signals = append(result.Signals, name)
		if score > result.Score {
			result.Score = score
		}
		if severity > result.Severity {
			result.Severity = severity
		}
	}

	if text := scanText(event); text != "" {
		categories := matcher.MatchCategories(text)
		for category, hits := range categories {
			switch category {
			case lexiconDisposal:
				addSignal(lexiconDisposal, 8.0, 9)
			case lexiconCounterForensic:
				addSignal(lexiconCounterForensic, 7.0, 7)
			case lexiconProcedure:
				addSignal(lexiconProcedure, 6.0, 6)
			case lexiconGuilt:
				addSignal(lexiconGuilt, 6.5, 7)
			}
			result.Details[fmt.Sprint(category)] = hits
		}
	}

	if count := d.harvestVolume(input); count >= cfg.HarvestThreshold {
		score := 6.5 + 0.2*float64(count-cfg.HarvestThreshold)
		if score > 8.5 {
			score = 8.5
		}
		addSignal("bulk_content_harvesting", score, 4)
		result.Details["harvest_count"] = count
	}

	if event.Kind == models.EventMediaView {
		if zoom := event.PayloadFloat("zoom_level"); zoom >= cfg.ZoomThreshold {
			addSignal("obsessive_media_inspection", 6.0, 3)
			result.Details["zoom_level"] = zoom
		}
		if replays := event.PayloadFloat("replay_count"); int(replays) >= cfg.ReplayThreshold {
			addSignal("media_fixation", 6.0, 3)
			result.Details["replay_count"] = int(replays)
		}
		if event.PayloadBool("face_focus") {
			addSignal("person_focused_viewing", 5.5, 3)
		}
	}

	result.Score = clampScore(result.Score)
	result.Triggered = result.Score > 0
	return result, nil
}

// scanText joins the scannable text fields of an event.
func scanText(event *models.Event) string {
	text := event.PayloadString("search_text")
	if copied := event.PayloadString("text"); copied != "" {
		if text != "" {
			text += " "
		}
		text += copied
	}
	return text
}

// harvestVolume counts download and copy interactions in the window.
func (d *ContentDetector) harvestVolume(input *Input) int {
	count := 0
	isHarvest := func(kind models.EventKind) bool {
		return kind == models.EventDownload || kind == models.EventCopy
	}
	if isHarvest(input.Event.Kind) {
		count++
	}
	for _, evt := range input.History {
		if isHarvest(evt.Kind) {
			count++
		}
	}
	return count
}
