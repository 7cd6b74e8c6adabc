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

// CaseActivity exposes the cross-actor view a single fingerprint's window
// cannot provide. Implemented by the history service.
type CaseActivity interface {
	ActiveFingerprints(ctx context.Context, caseID string) []string
}

// NetworkConfig configures the network analysis detector.
type NetworkConfig struct {
	// CoordinationThreshold is the distinct fingerprint count on one case
	// within the window that suggests coordinated interest.
	CoordinationThreshold int `json:"coordination_threshold"`

	// ContactPaths mark messaging surfaces; repeated failures against
	// them read as channel probing.
	ContactPaths         []string `json:"contact_paths"`
	ContactFailThreshold int      `json:"contact_fail_threshold"`

	// BotnetIPThreshold is the unique-IP count that, combined with
	// hosting-provider origin, marks distributed infrastructure.
	BotnetIPThreshold int `json:"botnet_ip_threshold"`
}

// DefaultNetworkConfig returns production defaults.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		CoordinationThreshold: 5,
		ContactPaths:          []string{"/contact", "/messages", "/tips"},
		ContactFailThreshold:  2,
		BotnetIPThreshold:     5,
	}
}

// NetworkDetector scores infrastructure anomalies and coordinated
// multi-actor access against one case.
type NetworkDetector struct {
	mu           sync.RWMutex
	config       NetworkConfig
	enabled      bool
	caseActivity CaseActivity
}

// NewNetworkDetector creates the detector. caseActivity may be nil; the
// coordination check is then skipped.
func NewNetworkDetector(caseActivity CaseActivity) *NetworkDetector {
	return &NetworkDetector{
		config:       DefaultNetworkConfig(),
		enabled:      true,
		caseActivity: caseActivity,
	}
}

// Type returns the detector type.
func (d *NetworkDetector) Type() DetectorType { return DetectorNetwork }

// Configure updates the detector configuration.
func (d *NetworkDetector) Configure(config json.RawMessage) error {
	var cfg NetworkConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("invalid network config: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
	return nil
}

// Enabled returns whether the detector is active.
func (d *NetworkDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the detector.
func (d *NetworkDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Check evaluates the infrastructure signals.
func (d *NetworkDetector) Check(ctx context.Context, input *Input) (*Result, error) {
	d.mu.RLock()
	cfg := d.config
	caseActivity := d.caseActivity
	d.mu.RUnlock()

	event := input.Event
	result := &Result{Detector: DetectorNetwork, Details: make(map[string]any)}
	addSignal := func(name string, score float64, severity int) {
		result.Signals = append(result.Signals, name)
		if score > result.Score {
			result.Score = score
		}
		if severity > result.Severity {
			result.Severity = severity
		}
	}

	if event.Network.Hosting {
		addSignal("datacenter_origin", 6.0, 3)
		result.Details["hosting_ip"] = event.IPAddress

		ips := map[string]bool{event.IPAddress: true}
		for _, evt := range input.History {
			if evt.Network.Hosting {
				ips[evt.IPAddress] = true
			}
		}
		if len(ips) >= cfg.BotnetIPThreshold {
			addSignal("distributed_infrastructure", 7.5, 4)
			result.Details["hosting_ips"] = len(ips)
		}
	}

	if caseActivity != nil {
		actors := caseActivity.ActiveFingerprints(ctx, event.CaseID)
		if len(actors) >= cfg.CoordinationThreshold {
			score := 5.5 + 0.3*float64(len(actors)-cfg.CoordinationThreshold)
			if score > 7.5 {
				score = 7.5
			}
			addSignal("coordinated_case_interest", score, 4)
			result.Details["active_fingerprints"] = len(actors)
		}
	}

	if fails := d.contactProbing(input, cfg); fails >= cfg.ContactFailThreshold {
		addSignal("contact_channel_probing", 6.5, 4)
		result.Details["contact_failures"] = fails
	}

	result.Score = clampScore(result.Score)
	result.Triggered = result.Score > 0
	return result, nil
}

// contactProbing counts failed submissions against messaging surfaces.
func (d *NetworkDetector) contactProbing(input *Input, cfg NetworkConfig) int {
	fails := 0
	count := func(path string, kind string) {
		if kind == "form_fail" && containsAny(strings.ToLower(path), cfg.ContactPaths) {
			fails++
		}
	}
	count(input.Event.Path, string(input.Event.Kind))
	for _, evt := range input.History {
		count(evt.Path, string(evt.Kind))
	}
	return fails
}
