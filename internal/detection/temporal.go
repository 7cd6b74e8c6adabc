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
	"time"

	"github.com/goccy/go-json"
)

// TemporalConfig configures the temporal patterns detector.
type TemporalConfig struct {
	// TimelinePaths mark chronology pages whose repeat study signals
	// reconnaissance.
	TimelinePaths []string `json:"timeline_paths"`

	// TimelineRepeatThreshold is the visit count at which timeline study
	// becomes a signal.
	TimelineRepeatThreshold int `json:"timeline_repeat_threshold"`

	// NightRatioThreshold is the share of night-hour events that marks
	// nocturnal concentration. Requires NightMinEvents observations.
	NightRatioThreshold float64 `json:"night_ratio_threshold"`
	NightMinEvents      int     `json:"night_min_events"`

	// AnniversaryDates are MM-DD dates significant to monitored cases.
	// Visits on these dates score the anniversary signal.
	AnniversaryDates []string `json:"anniversary_dates,omitempty"`

	// RitualMinVisits is the count of distinct days visited at the same
	// hour that marks ritualized timing.
	RitualMinVisits int `json:"ritual_min_visits"`

	// AccelerationFactor is the recent-vs-baseline visit rate multiple
	// that marks an escalating pattern. Requires AccelerationMinEvents.
	AccelerationFactor    float64 `json:"acceleration_factor"`
	AccelerationMinEvents int     `json:"acceleration_min_events"`
}

// DefaultTemporalConfig returns production defaults.
func DefaultTemporalConfig() TemporalConfig {
	return TemporalConfig{
		TimelinePaths:           []string{"/timeline", "/chronology", "/schedule", "/hearings"},
		TimelineRepeatThreshold: 4,
		NightRatioThreshold:     0.6,
		NightMinEvents:          5,
		RitualMinVisits:         3,
		AccelerationFactor:      3.0,
		AccelerationMinEvents:   8,
	}
}

// TemporalDetector scores when the actor looks rather than what they
// look at: nocturnal concentration, ritual timing, anniversaries and
// accelerating visit frequency.
type TemporalDetector struct {
	mu      sync.RWMutex
	config  TemporalConfig
	enabled bool
}

// NewTemporalDetector creates the detector with default configuration.
func NewTemporalDetector() *TemporalDetector {
	return &TemporalDetector{
		config:  DefaultTemporalConfig(),
		enabled: true,
	}
}

// Type returns the detector type.
func (d *TemporalDetector) Type() DetectorType { return DetectorTemporal }

// Configure updates the detector configuration.
func (d *TemporalDetector) Configure(config json.RawMessage) error {
	var cfg TemporalConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("invalid temporal config: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
	return nil
}

// Enabled returns whether the detector is active.
func (d *TemporalDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the detector.
func (d *TemporalDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Check evaluates the timing signals.
func (d *TemporalDetector) Check(_ context.Context, input *Input) (*Result, error) {
	d.mu.RLock()
	cfg := d.config
	d.mu.RUnlock()

	result := &Result{Detector: DetectorTemporal, Details: make(map[string]any)}
	addSignal := func(name string, score float64, severity int) {
		result.Signals = append(result.Signals, name)
		if score > result.Score {
			result.Score = score
		}
		if severity > result.Severity {
			result.Severity = severity
		}
	}

	if visits := d.timelineVisits(input, cfg); visits >= cfg.TimelineRepeatThreshold {
		score := 5.0 + 0.4*float64(visits-cfg.TimelineRepeatThreshold)
		if score > 7.0 {
			score = 7.0
		}
		addSignal("repeat_timeline_study", score, 3)
		result.Details["timeline_visits"] = visits
	}

	if ratio, total := d.nightRatio(input); total >= cfg.NightMinEvents && ratio >= cfg.NightRatioThreshold {
		score := 4.0 + 3.0*ratio
		addSignal("nocturnal_concentration", score, 3)
		result.Details["night_ratio"] = ratio
		result.Details["events_observed"] = total
	}

	if date, ok := d.anniversaryMatch(input.Event.Timestamp, cfg); ok {
		addSignal("anniversary_visit", 6.0, 4)
		result.Details["anniversary"] = date
	}

	if days := d.ritualTiming(input, cfg); days >= cfg.RitualMinVisits {
		addSignal("ritual_timing", 5.0, 3)
		result.Details["same_hour_days"] = days
	}

	if factor, ok := d.acceleration(input, cfg); ok {
		addSignal("escalating_frequency", 6.0, 4)
		result.Details["acceleration_factor"] = factor
	}

	result.Score = clampScore(result.Score)
	result.Triggered = result.Score > 0
	return result, nil
}

func (d *TemporalDetector) timelineVisits(input *Input, cfg TemporalConfig) int {
	visits := 0
	if containsAny(strings.ToLower(input.Event.Path), cfg.TimelinePaths) {
		visits++
	}
	for _, evt := range input.History {
		if containsAny(strings.ToLower(evt.Path), cfg.TimelinePaths) {
			visits++
		}
	}
	return visits
}

func (d *TemporalDetector) nightRatio(input *Input) (float64, int) {
	total := 1 + len(input.History)
	night := 0
	if nightHour(input.Event.Timestamp) {
		night++
	}
	for _, evt := range input.History {
		if nightHour(evt.Timestamp) {
			night++
		}
	}
	return float64(night) / float64(total), total
}

func (d *TemporalDetector) anniversaryMatch(t time.Time, cfg TemporalConfig) (string, bool) {
	date := t.Format("01-02")
	for _, a := range cfg.AnniversaryDates {
		if a == date {
			return date, true
		}
	}
	return "", false
}

// ritualTiming counts distinct days on which the actor visited during the
// same hour of day as the current event.
func (d *TemporalDetector) ritualTiming(input *Input, cfg TemporalConfig) int {
	hour := input.Event.Timestamp.Hour()
	days := map[string]bool{input.Event.Timestamp.Format("2006-01-02"): true}
	for _, evt := range input.History {
		if evt.Timestamp.Hour() == hour {
			days[evt.Timestamp.Format("2006-01-02")] = true
		}
	}
	return len(days)
}

// acceleration compares the visit rate of the most recent quarter of the
// observed span against the rate before it.
func (d *TemporalDetector) acceleration(input *Input, cfg TemporalConfig) (float64, bool) {
	total := 1 + len(input.History)
	if total < cfg.AccelerationMinEvents {
		return 0, false
	}

	// History is newest first; the oldest event bounds the span.
	oldest := input.History[len(input.History)-1].Timestamp
	span := input.Event.Timestamp.Sub(oldest)
	if span <= 0 {
		return 0, false
	}
	cutoff := input.Event.Timestamp.Add(-span / 4)

	recent := 1 // the current event
	for _, evt := range input.History {
		if evt.Timestamp.After(cutoff) {
			recent++
		}
	}
	earlier := total - recent
	if earlier == 0 {
		return 0, false
	}

	// Rates per unit time: recent quarter vs the remaining three quarters.
	factor := (float64(recent) / 1.0) / (float64(earlier) / 3.0)
	return factor, factor >= cfg.AccelerationFactor
}
