// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package detection

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/caseguard/caseguard/internal/models"
)

// DetectorType identifies one analysis dimension.
type DetectorType string

const (
	// DetectorCriminal covers zero-tolerance signals: anonymized access,
	// tampering paths, victim and witness targeting.
	DetectorCriminal DetectorType = "criminal_indicators"

	// DetectorEvasion covers identity and location evasion: impossible
	// travel, fingerprint churn, proxy chains, spoofing.
	DetectorEvasion DetectorType = "evasion_techniques"

	// DetectorTemporal covers timing: repeat timeline access, night-hour
	// concentration, anniversary correlation, frequency trend.
	DetectorTemporal DetectorType = "temporal_patterns"

	// DetectorBehavioral covers interaction telemetry: nervous input,
	// panic exits, rapid revisits, planning behavior.
	DetectorBehavioral DetectorType = "behavioral_anomalies"

	// DetectorContent covers what was read, searched, copied and viewed.
	DetectorContent DetectorType = "content_interaction"

	// DetectorNetwork covers coordinated multi-actor access and
	// infrastructure anomalies.
	DetectorNetwork DetectorType = "network_analysis"

	// DetectorEnvironmental covers the device and network environment the
	// actor brings: fresh profiles, VMs, privacy hardening.
	DetectorEnvironmental DetectorType = "environmental_context"

	// DetectorPsychological covers stress and guilt markers in the
	// interaction stream.
	DetectorPsychological DetectorType = "psychological_profile"

	// DetectorSession covers session-level integrity: impossible
	// navigation, replay, automation, parallel sessions.
	DetectorSession DetectorType = "session_integrity"

	// DetectorHoneytrap reports deception-asset triggers.
	DetectorHoneytrap DetectorType = "honeytrap"
)

// Result is one detector's verdict on one event.
type Result struct {
	Detector  DetectorType `json:"detector"`
	Triggered bool         `json:"triggered"`

	// Score is the detector's risk assessment in [0,10].
	Score float64 `json:"score"`

	// Severity grades the worst signal behind the score on the 0-5
	// scale; 5 is maximal.
	Severity int `json:"severity"`

	// Signals names the individual checks that fired.
	Signals []string `json:"signals,omitempty"`

	// Details carries signal-specific measurements for the evidence trail.
	Details map[string]any `json:"details,omitempty"`

	// TamperIndicator marks signals that imply evidence interference
	// specifically, independent of the overall score.
	TamperIndicator bool `json:"tamper_indicator,omitempty"`

	// Failed marks a detector that errored or timed out. Failed results
	// never contribute to scoring but are counted in the outcome.
	Failed bool  `json:"failed,omitempty"`
	Err    error `json:"-"`
}

// Input is the material a detector analyzes: the event plus the actor's
// recent windows. History is newest first.
type Input struct {
	Event *models.Event

	// History is the fingerprint's events on the same case.
	History []models.Event

	// AllHistory is the fingerprint's events across every case. Detectors
	// that look for cross-case obsession use this.
	AllHistory []models.Event
}

// Detector is the interface every analysis dimension implements.
type Detector interface {
	// Type returns the dimension this detector covers.
	Type() DetectorType

	// Check analyzes one event. A no-trigger result means the dimension
	// saw nothing; errors mark the detector failed for this event without
	// aborting the others.
	Check(ctx context.Context, input *Input) (*Result, error)

	// Configure updates the detector configuration.
	Configure(config json.RawMessage) error

	// Enabled returns whether this detector currently runs.
	Enabled() bool

	// SetEnabled enables or disables the detector.
	SetEnabled(enabled bool)
}

// Outcome is the aggregate verdict for one event.
type Outcome struct {
	EventID     string `json:"event_id"`
	Fingerprint string `json:"fingerprint"`
	CaseID      string `json:"case_id"`

	// Score is the composed final score in [0,10].
	Score float64 `json:"score"`

	ThreatLevel models.ThreatLevel `json:"threat_level"`

	// ShortCircuited marks outcomes where a single detector dominated
	// and the escalation factor was not applied.
	ShortCircuited bool `json:"short_circuited,omitempty"`

	// EscalationFactor is the multi-signal multiplier that was applied.
	EscalationFactor float64 `json:"escalation_factor"`

	Classification models.ActivityClass `json:"classification"`

	// Results holds every detector's verdict, including failed ones.
	Results []*Result `json:"results"`

	// Triggered lists the detectors that fired, for quick display.
	Triggered []DetectorType `json:"triggered,omitempty"`

	// FailedDetectors lists detectors that errored or timed out.
	FailedDetectors []DetectorType `json:"failed_detectors,omitempty"`

	// HoneytrapHit is set when the event sprang a deception asset.
	HoneytrapHit bool `json:"honeytrap_hit,omitempty"`

	// ClassifierProbability and ClassifierLabel record the external
	// model's opinion when one was available.
	ClassifierProbability float64 `json:"classifier_probability,omitempty"`
	ClassifierLabel       string  `json:"classifier_label,omitempty"`

	// ActivityRecordID is set when the outcome crossed the persistence
	// threshold.
	ActivityRecordID string `json:"activity_record_id,omitempty"`

	ProcessedAt time.Time     `json:"processed_at"`
	Duration    time.Duration `json:"duration"`
}

// TriggeredResults filters the outcome to detectors that fired.
func (o *Outcome) TriggeredResults() []*Result {
	var out []*Result
	for _, r := range o.Results {
		if r.Triggered && !r.Failed {
			out = append(out, r)
		}
	}
	return out
}

// nightHour reports whether t falls in the 23:00-05:00 band that normal
// case-tracking traffic rarely occupies.
func nightHour(t time.Time) bool {
	h := t.Hour()
	return h >= 23 || h < 5
}

// clampScore bounds a score to [0,10].
func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}
