// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package detection

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// PsychologicalConfig configures the psychological profile detector.
type PsychologicalConfig struct {
	// StatusPaths mark case-status pages; compulsive checking of them is
	// the guilty-conscience signal.
	StatusPaths          []string `json:"status_paths"`
	StatusCheckThreshold int      `json:"status_check_threshold"`

	// CadenceVarThreshold is the normalized typing-cadence variance above
	// which input reads as stressed.
	CadenceVarThreshold float64 `json:"cadence_var_threshold"`

	// DraftLengthThreshold is the abandoned-draft length that marks a
	// confession impulse.
	DraftLengthThreshold int `json:"draft_length_threshold"`

	// FixationMinEvents is the single-case event count at which exclusive
	// attention becomes fixation.
	FixationMinEvents int `json:"fixation_min_events"`
}

// DefaultPsychologicalConfig returns production defaults.
func DefaultPsychologicalConfig() PsychologicalConfig {
	return PsychologicalConfig{
		StatusPaths:          []string{"/status", "/updates", "/docket"},
		StatusCheckThreshold: 6,
		CadenceVarThreshold:  0.75,
		DraftLengthThreshold: 200,
		FixationMinEvents:    20,
	}
}

// PsychologicalDetector scores stress and guilt markers: compulsive
// status checking, stressed input, abandoned confessions and exclusive
// case fixation.
type PsychologicalDetector struct {
	mu      sync.RWMutex
	config  PsychologicalConfig
	enabled bool
}

// NewPsychologicalDetector creates the detector with default
// configuration.
func NewPsychologicalDetector() *PsychologicalDetector {
	return &PsychologicalDetector{
		config:  DefaultPsychologicalConfig(),
		enabled: true,
	}
}

// Type returns the detector type.
func (d *PsychologicalDetector) Type() DetectorType { return DetectorPsychological }

// Configure updates the detector configuration.
func (d *PsychologicalDetector) Configure(config json.RawMessage) error {
	var cfg PsychologicalConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("invalid psychological config: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
	return nil
}

// Enabled returns whether the detector is active.
func (d *PsychologicalDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the detector.
func (d *PsychologicalDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Check evaluates the stress and guilt signals.
func (d *PsychologicalDetector) Check(_ context.Context, input *Input) (*Result, error) {
	d.mu.RLock()
	cfg := d.config
	d.mu.RUnlock()

	event := input.Event
	result := &Result{Detector: DetectorPsychological, Details: make(map[string]any)}
	addSignal := func(name string, score float64, severity int) {
		result.Signals = append(result.Signals, name)
		if score > result.Score {
			result.Score = score
		}
		if severity > result.Severity {
			result.Severity = severity
		}
	}

	if checks := d.statusChecks(input, cfg); checks >= cfg.StatusCheckThreshold {
		score := 5.0 + 0.2*float64(checks-cfg.StatusCheckThreshold)
		if score > 7.0 {
			score = 7.0
		}
		addSignal("compulsive_status_checking", score, 3)
		result.Details["status_checks"] = checks
	}

	if variance := event.PayloadFloat("typing_cadence_var"); variance >= cfg.CadenceVarThreshold {
		addSignal("stressed_input_cadence", 4.5, 2)
		result.Details["cadence_variance"] = variance
	}

	if event.PayloadBool("draft_deleted") {
		if length := event.PayloadFloat("draft_length"); int(length) >= cfg.DraftLengthThreshold {
			addSignal("abandoned_confession_draft", 6.5, 4)
			result.Details["draft_length"] = int(length)
		}
	}

	if d.exclusiveFixation(input, cfg) {
		addSignal("exclusive_case_fixation", 5.0, 3)
		result.Details["case_events"] = len(input.History) + 1
	}

	result.Score = clampScore(result.Score)
	result.Triggered = result.Score > 0
	return result, nil
}

func (d *PsychologicalDetector) statusChecks(input *Input, cfg PsychologicalConfig) int {
	checks := 0
	if containsAny(strings.ToLower(input.Event.Path), cfg.StatusPaths) {
		checks++
	}
	for _, evt := range input.History {
		if containsAny(strings.ToLower(evt.Path), cfg.StatusPaths) {
			checks++
		}
	}
	return checks
}

// exclusiveFixation reports heavy activity that all lands on one case:
// the cross-case window adds nothing beyond the case window.
func (d *PsychologicalDetector) exclusiveFixation(input *Input, cfg PsychologicalConfig) bool {
	caseEvents := len(input.History) + 1
	if caseEvents < cfg.FixationMinEvents {
		return false
	}
	return len(input.AllHistory) <= len(input.History)
}
