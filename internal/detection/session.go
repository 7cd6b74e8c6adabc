// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package detection

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/caseguard/caseguard/internal/models"
)

// SessionConfig configures the session integrity detector.
type SessionConfig struct {
	// DeepPathSegments is the path depth at which direct entry without a
	// referrer reads as out-of-order navigation.
	DeepPathSegments int `json:"deep_path_segments"`

	// AutomationMinIntervals is the consecutive interval count examined
	// for machine-regular timing; AutomationMaxJitterMs is the standard
	// deviation below which the timing reads as scripted.
	AutomationMinIntervals int     `json:"automation_min_intervals"`
	AutomationMaxJitterMs  float64 `json:"automation_max_jitter_ms"`
	AutomationMaxMeanMs    float64 `json:"automation_max_mean_ms"`

	// ParallelWindow is the span within which events from distinct
	// sessions on distinct addresses count as parallel operation.
	ParallelWindow time.Duration `json:"parallel_window"`
}

// DefaultSessionConfig returns production defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		DeepPathSegments:       3,
		AutomationMinIntervals: 4,
		AutomationMaxJitterMs:  250,
		AutomationMaxMeanMs:    10000,
		ParallelWindow:         5 * time.Minute,
	}
}

// SessionDetector scores session-level integrity: hijacked or replayed
// sessions, scripted timing, parallel operation and navigation that no
// page flow produces.
type SessionDetector struct {
	mu      sync.RWMutex
	config  SessionConfig
	enabled bool
}

// NewSessionDetector creates the detector with default configuration.
func NewSessionDetector() *SessionDetector {
	return &SessionDetector{
		config:  DefaultSessionConfig(),
		enabled: true,
	}
}

// Type returns the detector type.
func (d *SessionDetector) Type() DetectorType { return DetectorSession }

// Configure updates the detector configuration.
func (d *SessionDetector) Configure(config json.RawMessage) error {
	var cfg SessionConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
	return nil
}

// Enabled returns whether the detector is active.
func (d *SessionDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the detector.
func (d *SessionDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Check evaluates the session integrity signals.
func (d *SessionDetector) Check(_ context.Context, input *Input) (*Result, error) {
	d.mu.RLock()
	cfg := d.config
	d.mu.RUnlock()

	event := input.Event
	result := &Result{Detector: DetectorSession, Details: make(map[string]any)}
	addSignal := func(name string, score float64, severity int) {
		result.Signals = append(result.Signals, name)
		if score > result.Score {
			result.Score = score
		}
		if severity > result.Severity {
			result.Severity = severity
		}
	}

	if ip, ok := d.sessionFromMultipleIPs(input); ok {
		addSignal("session_address_change", 7.5, 4)
		result.Details["previous_ip"] = ip
	}

	if d.outOfOrderEntry(event, input, cfg) {
		addSignal("out_of_order_navigation", 5.0, 3)
		result.Details["deep_path"] = event.Path
	}

	if mean, jitter, ok := d.scriptedTiming(input, cfg); ok {
		addSignal("scripted_timing", 7.0, 4)
		result.Details["mean_interval_ms"] = mean
		result.Details["interval_jitter_ms"] = jitter
	}

	if sessions := d.parallelSessions(input, cfg); sessions >= 2 {
		addSignal("parallel_sessions", 6.5, 4)
		result.Details["concurrent_sessions"] = sessions
	}

	result.Score = clampScore(result.Score)
	result.Triggered = result.Score > 0
	return result, nil
}

// sessionFromMultipleIPs reports the same session token arriving from a
// different address, the hijack/replay signature.
func (d *SessionDetector) sessionFromMultipleIPs(input *Input) (string, bool) {
	if input.Event.SessionID == "" {
		return "", false
	}
	for _, evt := range input.History {
		if evt.SessionID == input.Event.SessionID && evt.IPAddress != input.Event.IPAddress {
			return evt.IPAddress, true
		}
	}
	return "", false
}

// outOfOrderEntry reports a deep page reached with no referrer and no
// prior event in the session, which linked navigation cannot produce.
func (d *SessionDetector) outOfOrderEntry(event *models.Event, input *Input, cfg SessionConfig) bool {
	if event.Kind != models.EventPageView || event.PayloadString("referrer") != "" {
		return false
	}
	segments := 0
	for _, part := range strings.Split(event.Path, "/") {
		if part != "" {
			segments++
		}
	}
	if segments < cfg.DeepPathSegments {
		return false
	}
	if event.SessionID == "" {
		return false
	}
	for _, evt := range input.History {
		if evt.SessionID == event.SessionID && evt.Timestamp.Before(event.Timestamp) {
			return false
		}
	}
	return true
}

// scriptedTiming examines the gaps between the session's recent events.
// Humans cannot produce near-constant intervals; scripts do.
func (d *SessionDetector) scriptedTiming(input *Input, cfg SessionConfig) (float64, float64, bool) {
	if input.Event.SessionID == "" {
		return 0, 0, false
	}
	times := []time.Time{input.Event.Timestamp}
	for _, evt := range input.History {
		if evt.SessionID == input.Event.SessionID {
			times = append(times, evt.Timestamp)
		}
	}
	if len(times) < cfg.AutomationMinIntervals+1 {
		return 0, 0, false
	}
	// History is newest first, so times already descend.
	intervals := make([]float64, 0, len(times)-1)
	for i := 0; i < len(times)-1 && len(intervals) < cfg.AutomationMinIntervals; i++ {
		gap := times[i].Sub(times[i+1])
		intervals = append(intervals, float64(gap.Milliseconds()))
	}

	var sum float64
	for _, iv := range intervals {
		sum += iv
	}
	mean := sum / float64(len(intervals))
	if mean <= 0 || mean > cfg.AutomationMaxMeanMs {
		return 0, 0, false
	}

	var variance float64
	for _, iv := range intervals {
		variance += (iv - mean) * (iv - mean)
	}
	stddev := math.Sqrt(variance / float64(len(intervals)))
	return mean, stddev, stddev < cfg.AutomationMaxJitterMs
}

// parallelSessions counts distinct sessions on distinct addresses active
// within the parallel window around the event.
func (d *SessionDetector) parallelSessions(input *Input, cfg SessionConfig) int {
	cutoff := input.Event.Timestamp.Add(-cfg.ParallelWindow)
	sessions := make(map[string]string) // session -> ip
	if input.Event.SessionID != "" {
		sessions[input.Event.SessionID] = input.Event.IPAddress
	}
	for _, evt := range input.History {
		if evt.SessionID == "" || !evt.Timestamp.After(cutoff) {
			continue
		}
		sessions[evt.SessionID] = evt.IPAddress
	}

	ips := make(map[string]bool)
	for _, ip := range sessions {
		ips[ip] = true
	}
	if len(ips) < 2 {
		return 1
	}
	return len(sessions)
}
