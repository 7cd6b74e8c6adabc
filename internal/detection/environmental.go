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
)

// EnvironmentalConfig configures the environmental context detector.
type EnvironmentalConfig struct {
	// StackedFlagScore is assessed when StackedFlagCount or more
	// environment markers appear together. Individually weak markers in
	// combination describe a prepared machine.
	StackedFlagCount int     `json:"stacked_flag_count"`
	StackedFlagScore float64 `json:"stacked_flag_score"`
}

// DefaultEnvironmentalConfig returns production defaults.
func DefaultEnvironmentalConfig() EnvironmentalConfig {
	return EnvironmentalConfig{
		StackedFlagCount: 3,
		StackedFlagScore: 6.5,
	}
}

// EnvironmentalDetector scores the machine and network the actor brings:
// throwaway profiles, virtual machines, anti-fingerprinting setups and
// anonymous public networks.
type EnvironmentalDetector struct {
	mu      sync.RWMutex
	config  EnvironmentalConfig
	enabled bool
}

// NewEnvironmentalDetector creates the detector with default
// configuration.
func NewEnvironmentalDetector() *EnvironmentalDetector {
	return &EnvironmentalDetector{
		config:  DefaultEnvironmentalConfig(),
		enabled: true,
	}
}

// Type returns the detector type.
func (d *EnvironmentalDetector) Type() DetectorType { return DetectorEnvironmental }

// Configure updates the detector configuration.
func (d *EnvironmentalDetector) Configure(config json.RawMessage) error {
	var cfg EnvironmentalConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("invalid environmental config: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
	return nil
}

// Enabled returns whether the detector is active.
func (d *EnvironmentalDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the detector.
func (d *EnvironmentalDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Check evaluates the environment markers.
func (d *EnvironmentalDetector) Check(_ context.Context, input *Input) (*Result, error) {
	d.mu.RLock()
	cfg := d.config
	d.mu.RUnlock()

	event := input.Event
	result := &Result{Detector: DetectorEnvironmental, Details: make(map[string]any)}
	flags := 0
	addSignal := func(name string, score float64, severity int) {
		flags++
		result.Signals = append(result.Signals, name)
		if score > result.Score {
			result.Score = score
		}
		if severity > result.Severity {
			result.Severity = severity
		}
	}

	if event.Device.FreshProfile {
		score := 4.0
		if event.Network.VPN {
			// A brand-new profile arriving over a VPN is a deliberate
			// clean-slate setup, not a new visitor.
			score = 5.0
		}
		addSignal("fresh_browser_profile", score, 2)
	}
	if event.Device.VirtualMachine {
		addSignal("virtual_machine", 5.5, 3)
	}
	if event.Device.PrivacyHardened {
		addSignal("anti_fingerprinting", 4.5, 2)
	}
	if event.PayloadString("network_type") == "public_wifi" {
		addSignal("anonymous_public_network", 3.5, 2)
	}
	if event.Network.VPN {
		addSignal("vpn_egress", 3.0, 2)
	}

	if flags >= cfg.StackedFlagCount && cfg.StackedFlagScore > result.Score {
		result.Score = cfg.StackedFlagScore
		if result.Severity < 3 {
			result.Severity = 3
		}
		result.Details["stacked_flags"] = flags
	}

	result.Score = clampScore(result.Score)
	result.Triggered = result.Score > 0
	return result, nil
}
