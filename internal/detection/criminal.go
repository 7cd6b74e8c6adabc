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

// CriminalConfig configures the criminal indicators detector.
type CriminalConfig struct {
	// TorScore is assessed on any anonymizing-network access. Zero
	// tolerance: the default short-circuits the composition.
	TorScore float64 `json:"tor_score"`

	// ProxyScore is assessed on open-proxy access.
	ProxyScore float64 `json:"proxy_score"`

	// TamperScore is assessed when a modification interaction hits an
	// evidence surface.
	TamperScore float64 `json:"tamper_score"`

	// EvidencePaths are the path fragments that count as evidence
	// surfaces.
	EvidencePaths []string `json:"evidence_paths"`

	// MutationMarkers are the path fragments that mark a modification
	// attempt.
	MutationMarkers []string `json:"mutation_markers"`

	// VictimPaths and WitnessPaths mark pages about protected persons.
	VictimPaths  []string `json:"victim_paths"`
	WitnessPaths []string `json:"witness_paths"`

	// ObsessionPerVisit and ObsessionCap shape the victim-focus score:
	// per-visit increment, capped.
	ObsessionPerVisit float64 `json:"obsession_per_visit"`
	ObsessionCap      float64 `json:"obsession_cap"`

	// WitnessRepeatThreshold is the repeat visit count at which witness
	// page interest becomes targeting.
	WitnessRepeatThreshold int `json:"witness_repeat_threshold"`

	// ProbeThreshold is the failed-form count that marks access probing.
	ProbeThreshold int `json:"probe_threshold"`
}

// DefaultCriminalConfig returns production defaults.
func DefaultCriminalConfig() CriminalConfig {
	return CriminalConfig{
		TorScore:               10.0,
		ProxyScore:             9.0,
		TamperScore:            9.5,
		EvidencePaths:          []string{"/evidence", "/exhibits", "/documents", "/filings"},
		MutationMarkers:        []string{"/edit", "/delete", "/modify", "/update", "/admin"},
		VictimPaths:            []string{"/victim", "/complainant"},
		WitnessPaths:           []string{"/witness", "/testimony"},
		ObsessionPerVisit:      0.4,
		ObsessionCap:           6.5,
		WitnessRepeatThreshold: 4,
		ProbeThreshold:         3,
	}
}

// CriminalDetector scores the zero-tolerance dimension: anonymized
// access, evidence interference, protected-person targeting and access
// probing.
type CriminalDetector struct {
	mu      sync.RWMutex
	config  CriminalConfig
	enabled bool
}

// NewCriminalDetector creates the detector with default configuration.
func NewCriminalDetector() *CriminalDetector {
	return &CriminalDetector{
		config:  DefaultCriminalConfig(),
		enabled: true,
	}
}

// Type returns the detector type.
func (d *CriminalDetector) Type() DetectorType { return DetectorCriminal }

// Configure updates the detector configuration.
func (d *CriminalDetector) Configure(config json.RawMessage) error {
	var cfg CriminalConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("invalid criminal indicators config: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
	return nil
}

// Enabled returns whether the detector is active.
func (d *CriminalDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the detector.
func (d *CriminalDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Check evaluates the zero-tolerance signals. The detector score is the
// worst signal observed; signals and measurements accumulate in the
// result for the evidence trail.
func (d *CriminalDetector) Check(_ context.Context, input *Input) (*Result, error) {
	d.mu.RLock()
	cfg := d.config
	d.mu.RUnlock()

	event := input.Event
	result := &Result{Detector: DetectorCriminal, Details: make(map[string]any)}

	addSignal := func(name string, score float64, severity int) {
		result.Signals = append(result.Signals, name)
		if score > result.Score {
			result.Score = score
		}
		if severity > result.Severity {
			result.Severity = severity
		}
	}

	if event.Network.Tor {
		addSignal("anonymized_network_access", cfg.TorScore, 5)
		result.Details["network"] = "tor_exit_node"
	} else if event.Network.OpenProxy {
		addSignal("open_proxy_access", cfg.ProxyScore, 5)
		result.Details["network"] = "open_proxy"
	}

	if d.isTamperAttempt(event.Path, string(event.Kind), cfg) {
		addSignal("evidence_interference", cfg.TamperScore, 5)
		result.TamperIndicator = true
		result.Details["tamper_path"] = event.Path
	}

	if score, visits := d.victimObsession(input, cfg); score > 0 {
		addSignal("victim_page_obsession", score, 4)
		result.Details["victim_page_visits"] = visits
	}

	if score, visits := d.witnessTargeting(input, cfg); score > 0 {
		addSignal("witness_targeting", score, 5)
		result.Details["witness_page_visits"] = visits
	}

	if score, fails := d.accessProbing(input, cfg); score > 0 {
		addSignal("restricted_access_probing", score, 4)
		result.Details["failed_attempts"] = fails
	}

	result.Score = clampScore(result.Score)
	result.Triggered = result.Score > 0
	return result, nil
}

// isTamperAttempt reports whether the event is a modification interaction
// against an evidence surface. Form submissions against evidence paths
// count even without a mutation marker in the URL.
func (d *CriminalDetector) isTamperAttempt(path, kind string, cfg CriminalConfig) bool {
	lower := strings.ToLower(path)
	onEvidence := containsAny(lower, cfg.EvidencePaths)
	if !onEvidence {
		return false
	}
	if containsAny(lower, cfg.MutationMarkers) {
		return true
	}
	return kind == "form_submit"
}

func (d *CriminalDetector) victimObsession(input *Input, cfg CriminalConfig) (float64, int) {
	visits := 0
	if containsAny(strings.ToLower(input.Event.Path), cfg.VictimPaths) {
		visits++
	}
	for _, evt := range input.History {
		if containsAny(strings.ToLower(evt.Path), cfg.VictimPaths) {
			visits++
		}
	}
	if visits < 2 {
		return 0, visits
	}
	score := float64(visits) * cfg.ObsessionPerVisit
	if score > cfg.ObsessionCap {
		score = cfg.ObsessionCap
	}
	return score, visits
}

func (d *CriminalDetector) witnessTargeting(input *Input, cfg CriminalConfig) (float64, int) {
	visits := 0
	if containsAny(strings.ToLower(input.Event.Path), cfg.WitnessPaths) {
		visits++
	}
	for _, evt := range input.History {
		if containsAny(strings.ToLower(evt.Path), cfg.WitnessPaths) {
			visits++
		}
	}
	if visits < cfg.WitnessRepeatThreshold {
		return 0, visits
	}
	score := 7.0 + float64(visits-cfg.WitnessRepeatThreshold)*0.3
	if score > 9.0 {
		score = 9.0
	}
	return score, visits
}

func (d *CriminalDetector) accessProbing(input *Input, cfg CriminalConfig) (float64, int) {
	fails := 0
	if input.Event.Kind == "form_fail" || input.Event.Kind == "login_attempt" {
		fails++
	}
	for _, evt := range input.History {
		if evt.Kind == "form_fail" || evt.Kind == "login_attempt" {
			fails++
		}
	}
	if fails < cfg.ProbeThreshold {
		return 0, fails
	}
	score := 5.0 + float64(fails-cfg.ProbeThreshold)
	if score > 8.0 {
		score = 8.0
	}
	return score, fails
}

// containsAny reports whether s contains any of the fragments.
func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if f != "" && strings.Contains(s, f) {
			return true
		}
	}
	return false
}
