// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

// Package alerting turns high-risk detection outcomes into operator
// alerts: deduplication, correlation, a bounded priority queue and
// delivery to notification channels.
package alerting

import (
	"time"

	"github.com/caseguard/caseguard/internal/models"
)

// AlertType is the alert taxonomy.
type AlertType string

const (
	// AlertHoneytrap fires on any deception-asset hit.
	AlertHoneytrap AlertType = "honeytrap_triggered"

	// AlertTampering fires on evidence interference indicators.
	AlertTampering AlertType = "evidence_tampering"

	// AlertWitnessTargeting fires when the witness-targeting signal is
	// among the triggered set.
	AlertWitnessTargeting AlertType = "witness_targeting"

	// AlertCriticalThreat fires when the final score crosses the
	// law-enforcement threshold.
	AlertCriticalThreat AlertType = "critical_threat"

	// AlertCoordinated fires on multi-actor or distributed-infrastructure
	// interest in one case.
	AlertCoordinated AlertType = "coordinated_activity"

	// AlertEscalation warns that an actor's visit frequency is trending
	// up before the score itself turns critical.
	AlertEscalation AlertType = "escalation_warning"

	// AlertHighThreat fires for high but sub-critical outcomes.
	AlertHighThreat AlertType = "high_threat"
)

// Priority orders alerts in the queue; higher drains first. Info alerts
// reach the passive dashboard surface only.
type Priority int

const (
	PriorityInfo Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the canonical priority name.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "info"
	}
}

// ParsePriority maps a config string to a priority; unknown values fall
// back to critical so a typo never widens a channel.
func ParsePriority(s string) Priority {
	switch s {
	case "info":
		return PriorityInfo
	case "low":
		return PriorityLow
	case "medium":
		return PriorityMedium
	case "high":
		return PriorityHigh
	default:
		return PriorityCritical
	}
}

// Status is the alert lifecycle state.
type Status string

const (
	StatusOpen         Status = "open"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Alert is one operator-facing alert. Persisted on creation and updated
// through the lifecycle endpoints.
type Alert struct {
	ID          string    `json:"id"`
	Type        AlertType `json:"type"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
	Fingerprint string    `json:"fingerprint"`
	CaseID      string    `json:"case_id"`
	EventID     string    `json:"event_id"`

	Score          float64              `json:"score"`
	ThreatLevel    models.ThreatLevel   `json:"threat_level"`
	Classification models.ActivityClass `json:"classification,omitempty"`

	Title   string `json:"title"`
	Message string `json:"message"`

	// TriggeredBy lists the detector dimensions behind the alert.
	TriggeredBy []string `json:"triggered_by,omitempty"`

	// RecommendedActions guide the operator response for the alert type.
	RecommendedActions []string `json:"recommended_actions,omitempty"`

	// CorrelatedAlertIDs links recent alerts from the same fingerprint.
	CorrelatedAlertIDs []string `json:"correlated_alert_ids,omitempty"`

	// AutoEscalate marks alerts that go to the case supervisor if they
	// sit unacknowledged past the review window.
	AutoEscalate bool `json:"auto_escalate,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`

	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// recommendedActions is the per-type operator playbook.
var recommendedActions = map[AlertType][]string{
	AlertHoneytrap: {
		"Preserve the full event trail for this fingerprint",
		"Review which trap was hit and what it protects",
		"Consider notifying the investigating officer",
	},
	AlertTampering: {
		"Verify the integrity of the targeted evidence records",
		"Snapshot current access logs before they age out",
		"Escalate to the case supervisor immediately",
	},
	AlertCriticalThreat: {
		"Review the complete activity history for this fingerprint",
		"Cross-reference the fingerprint against other monitored cases",
		"Prepare an evidence package for law enforcement referral",
	},
	AlertWitnessTargeting: {
		"Notify the case supervisor before the next hearing date",
		"Review which witness pages were accessed and when",
		"Preserve the full event trail for this fingerprint",
	},
	AlertCoordinated: {
		"Compare the active fingerprints on this case for shared infrastructure",
		"Check whether the case was recently publicized",
		"Consider fingerprint-scoped monitoring for each actor",
	},
	AlertEscalation: {
		"Review the visit-frequency trend for this fingerprint",
		"Lower the alert threshold for this case if the trend holds",
	},
	AlertHighThreat: {
		"Review the triggering signals and recent activity",
		"Watch for escalation from this fingerprint",
	},
}

// RecommendedActionsFor returns the playbook for an alert type.
func RecommendedActionsFor(t AlertType) []string {
	actions := recommendedActions[t]
	out := make([]string, len(actions))
	copy(out, actions)
	return out
}

// PriorityForLevel maps a threat level to a queue priority.
func PriorityForLevel(level models.ThreatLevel) Priority {
	switch level {
	case models.ThreatCritical:
		return PriorityCritical
	case models.ThreatHigh:
		return PriorityHigh
	case models.ThreatMedium:
		return PriorityMedium
	case models.ThreatLow:
		return PriorityLow
	default:
		return PriorityInfo
	}
}

// ListFilter narrows alert listings.
type ListFilter struct {
	Status      Status
	Type        AlertType
	Fingerprint string
	CaseID      string
	Since       time.Time
	Limit       int
}
