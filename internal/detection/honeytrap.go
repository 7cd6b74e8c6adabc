// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package detection

import (
	"context"
	"sync"

	"github.com/goccy/go-json"

	"github.com/caseguard/caseguard/internal/honeytrap"
	"github.com/caseguard/caseguard/internal/models"
)

// TrapChecker matches events against deployed deception assets.
// Implemented by the honeytrap registry.
type TrapChecker interface {
	Check(event *models.Event) (*honeytrap.Trap, error)
}

// HoneytrapDetector bridges the deception subsystem into the detector
// set. No legitimate path reaches a trap, so a hit scores the maximum
// and carries maximal severity regardless of every other dimension.
type HoneytrapDetector struct {
	mu      sync.RWMutex
	enabled bool
	checker TrapChecker
}

// NewHoneytrapDetector creates the bridge over checker.
func NewHoneytrapDetector(checker TrapChecker) *HoneytrapDetector {
	return &HoneytrapDetector{checker: checker, enabled: true}
}

// Type returns the detector type.
func (d *HoneytrapDetector) Type() DetectorType { return DetectorHoneytrap }

// Configure is a no-op; trap behavior is managed through the registry.
func (d *HoneytrapDetector) Configure(json.RawMessage) error { return nil }

// Enabled returns whether the detector is active.
func (d *HoneytrapDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the detector.
func (d *HoneytrapDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Check tests the event against the deployed traps.
func (d *HoneytrapDetector) Check(_ context.Context, input *Input) (*Result, error) {
	trap, err := d.checker.Check(input.Event)
	if err != nil {
		return nil, err
	}
	if trap == nil {
		return &Result{Detector: DetectorHoneytrap}, nil
	}

	return &Result{
		Detector:  DetectorHoneytrap,
		Triggered: true,
		Score:     10.0,
		Severity:  5,
		Signals:   []string{"honeytrap_" + string(trap.Type)},
		Details: map[string]any{
			"trap_id":   trap.ID,
			"trap_type": string(trap.Type),
			"case_id":   trap.CaseID,
		},
	}, nil
}
