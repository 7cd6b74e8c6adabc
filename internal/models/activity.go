// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package models

import (
	"time"
)

// ActivityClass is the closed taxonomy for durable activity records.
type ActivityClass string

const (
	ActivityEvidenceTampering  ActivityClass = "evidence_tampering"
	ActivityAnonymizedAccess   ActivityClass = "anonymized_access"
	ActivityVictimStalking     ActivityClass = "victim_stalking"
	ActivityWitnessTargeting   ActivityClass = "witness_intimidation"
	ActivityCyberstalking      ActivityClass = "cyberstalking"
	ActivitySystemInfiltration ActivityClass = "system_infiltration"
	ActivityLocationEvasion    ActivityClass = "location_evasion"
	ActivityIdentityFraud      ActivityClass = "identity_fraud"
	ActivityCaseMonitoring     ActivityClass = "case_monitoring"
	ActivityTechnicalEvasion   ActivityClass = "technical_evasion"
	ActivityHoneytrapTriggered ActivityClass = "honeytrap_triggered"
	ActivitySuspicious         ActivityClass = "suspicious"
)

// Evidence is the network/device/behavioral snapshot persisted with an
// activity record for later audit.
type Evidence struct {
	IPAddress   string             `json:"ip_address"`
	Path        string             `json:"path"`
	EventKind   EventKind          `json:"event_kind"`
	Network     NetworkFlags       `json:"network"`
	Device      DeviceInfo         `json:"device"`
	TriggeredBy []string           `json:"triggered_by"`
	Scores      map[string]float64 `json:"scores,omitempty"`
}

// ActivityRecord is a durable, audit-grade record of a suspicious outcome
// above the persistence threshold. Created by the detection engine; never
// mutated afterwards except by an external review workflow.
type ActivityRecord struct {
	ID             string        `json:"id"`
	EventID        string        `json:"event_id"`
	Fingerprint    string        `json:"fingerprint"`
	CaseID         string        `json:"case_id"`
	Classification ActivityClass `json:"classification"`

	// Severity is the worst signal grade behind the record, 0-5.
	Severity int `json:"severity"`

	// Confidence is the final score normalized to [0,1].
	Confidence float64 `json:"confidence"`

	Evidence  Evidence  `json:"evidence"`
	CreatedAt time.Time `json:"created_at"`
}

// SuspicionScore is the accumulated per-fingerprint suspicion ledger entry.
// It rises with high-risk outcomes and decays daily, mirroring how operator
// attention should fade for fingerprints that go quiet.
type SuspicionScore struct {
	Fingerprint     string     `json:"fingerprint"`
	Score           int        `json:"score"` // 0-100
	ViolationsCount int        `json:"violations_count"`
	LastViolationAt *time.Time `json:"last_violation_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
