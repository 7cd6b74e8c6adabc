// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package detection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/caseguard/caseguard/internal/models"
)

// BehavioralConfig configures the behavioral anomalies detector.
type BehavioralConfig struct {
	// JitterThreshold is the normalized mouse-jitter level above which
	// input reads as nervous. Producers report it in [0,1].
	JitterThreshold float64 `json:"jitter_threshold"`

	// CorrectionThreshold is the typing correction count per field that
	// reads as nervous.
	CorrectionThreshold int `json:"correction_threshold"`

	// PanicDwellMs is the page dwell below which an exit from a sensitive
	// page reads as a panic close.
	PanicDwellMs float64 `json:"panic_dwell_ms"`

	// RapidWindow and RapidVisitFloor/Ceil shape the rapid revisit score:
	// revisits inside the window score linearly between floor and ceil.
	RapidWindow     time.Duration `json:"rapid_window"`
	RapidVisitFloor int           `json:"rapid_visit_floor"`
	RapidVisitCeil  int           `json:"rapid_visit_ceil"`

	// CaptureKindsThreshold is the count of distinct capture interactions
	// (copy, screenshot, print, download) that marks methodical
	// collection.
	CaptureKindsThreshold int `json:"capture_kinds_threshold"`
}

// DefaultBehavioralConfig returns production defaults.
func DefaultBehavioralConfig() BehavioralConfig {
	return BehavioralConfig{
		JitterThreshold:       0.7,
		CorrectionThreshold:   8,
		PanicDwellMs:          2000,
		RapidWindow:           15 * time.Minute,
		RapidVisitFloor:       3,
		RapidVisitCeil:        8,
		CaptureKindsThreshold: 2,
	}
}

// BehavioralDetector scores how the actor interacts: nervous input
// telemetry, panic exits, compulsive revisits and methodical capture.
type BehavioralDetector struct {
	mu      sync.RWMutex
	config  BehavioralConfig
	enabled bool
}

// NewBehavioralDetector creates the detector with default configuration.
func NewBehavioralDetector() *BehavioralDetector {
	return &BehavioralDetector{
		config:  DefaultBehavioralConfig(),
		enabled: true,
	}
}

// Type returns the detector type.
func (d *BehavioralDetector) Type() DetectorType { return DetectorBehavioral }

// Configure updates the detector configuration.
func (d *BehavioralDetector) Configure(config json.RawMessage) error {
	var cfg BehavioralConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("invalid behavioral config: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
	return nil
}

// Enabled returns whether the detector is active.
func (d *BehavioralDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the detector.
func (d *BehavioralDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Check evaluates the interaction-telemetry signals.
func (d *BehavioralDetector) Check(_ context.Context, input *Input) (*Result, error) {
	d.mu.RLock()
	cfg := d.config
	d.mu.RUnlock()

	event := input.Event
	result := &Result{Detector: DetectorBehavioral, Details: make(map[string]any)}
	addSignal := func(name string, score float64, severity int) {
		result.Signals = append(result.Signals, name)
		if score > result.Score {
			result.Score = score
		}
		if severity > result.Severity {
			result.Severity = severity
		}
	}

	jitter := event.PayloadFloat("mouse_jitter")
	corrections := event.PayloadFloat("typing_corrections")
	if jitter >= cfg.JitterThreshold || int(corrections) >= cfg.CorrectionThreshold {
		score := 4.5
		if jitter >= cfg.JitterThreshold && int(corrections) >= cfg.CorrectionThreshold {
			score = 6.0
		}
		addSignal("nervous_input", score, 3)
		result.Details["mouse_jitter"] = jitter
		result.Details["typing_corrections"] = int(corrections)
	}

	if d.isPanicExit(event, cfg) {
		addSignal("panic_exit", 5.5, 3)
		result.Details["dwell_ms"] = event.PayloadFloat("dwell_ms")
	}

	if visits := d.rapidRevisits(input, cfg); visits >= cfg.RapidVisitFloor {
		// Linear ramp from 3.0 at the floor to 5.0 at the ceiling.
		span := float64(cfg.RapidVisitCeil - cfg.RapidVisitFloor)
		score := 3.0
		if span > 0 {
			score += 2.0 * float64(visits-cfg.RapidVisitFloor) / span
		}
		if score > 5.0 {
			score = 5.0
		}
		addSignal("compulsive_revisits", score, 3)
		result.Details["rapid_visits"] = visits
	}

	if kinds := d.captureKinds(input); len(kinds) >= cfg.CaptureKindsThreshold {
		addSignal("methodical_capture", 6.0, 3)
		result.Details["capture_kinds"] = kinds
	}

	result.Score = clampScore(result.Score)
	result.Triggered = result.Score > 0
	return result, nil
}

// isPanicExit reports a tab switch or session end after an abnormally
// short dwell, or an explicit panic-close flag from the telemetry.
func (d *BehavioralDetector) isPanicExit(event *models.Event, cfg BehavioralConfig) bool {
	if event.PayloadBool("panic_close") {
		return true
	}
	if event.Kind != models.EventTabSwitch && event.Kind != models.EventSessionEnd {
		return false
	}
	dwell := event.PayloadFloat("dwell_ms")
	return dwell > 0 && dwell < cfg.PanicDwellMs
}

// rapidRevisits counts visits to the current path within the rapid
// window, including the current event.
func (d *BehavioralDetector) rapidRevisits(input *Input, cfg BehavioralConfig) int {
	cutoff := input.Event.Timestamp.Add(-cfg.RapidWindow)
	visits := 1
	for _, evt := range input.History {
		if evt.Path == input.Event.Path && evt.Timestamp.After(cutoff) {
			visits++
		}
	}
	return visits
}

// captureKinds returns the distinct capture interaction kinds observed in
// the current session.
func (d *BehavioralDetector) captureKinds(input *Input) []string {
	capture := map[models.EventKind]bool{
		models.EventCopy:       true,
		models.EventScreenshot: true,
		models.EventPrint:      true,
		models.EventDownload:   true,
	}
	seen := make(map[models.EventKind]bool)
	consider := func(evt *models.Event) {
		if capture[evt.Kind] && (input.Event.SessionID == "" || evt.SessionID == input.Event.SessionID) {
			seen[evt.Kind] = true
		}
	}
	consider(input.Event)
	for i := range input.History {
		consider(&input.History[i])
	}
	kinds := make([]string, 0, len(seen))
	for k := range seen {
		kinds = append(kinds, string(k))
	}
	return kinds
}
