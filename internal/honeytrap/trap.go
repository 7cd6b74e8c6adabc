// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

// Package honeytrap manages deception assets: hidden routes, canary
// tokens, decoy documents and behavioral tripwires planted on case pages.
// No legitimate navigation path reaches a trap, so any trigger is a
// high-confidence signal regardless of what the detectors score.
package honeytrap

import (
	"time"

	"github.com/caseguard/caseguard/internal/models"
)

// TrapType enumerates the deployable deception asset kinds.
type TrapType string

const (
	// TrapHiddenRoute is an unlinked URL invisible to normal navigation.
	TrapHiddenRoute TrapType = "hidden_route"

	// TrapCanaryToken is a unique token embedded in page markup that only
	// scraping or copying surfaces.
	TrapCanaryToken TrapType = "canary_token"

	// TrapDecoyDocument is a fake downloadable evidence file.
	TrapDecoyDocument TrapType = "decoy_document"

	// TrapBehavioralTripwire fires on a specific interaction kind against
	// a planted element, e.g. copying from a decoy field.
	TrapBehavioralTripwire TrapType = "behavioral_tripwire"
)

// ValidTrapTypes is the closed set accepted at deployment.
var ValidTrapTypes = map[TrapType]bool{
	TrapHiddenRoute:        true,
	TrapCanaryToken:        true,
	TrapDecoyDocument:      true,
	TrapBehavioralTripwire: true,
}

// typeWeights rank trap kinds by how deliberate an actor must be to
// trigger them. Used in effectiveness scoring.
var typeWeights = map[TrapType]float64{
	TrapHiddenRoute:        1.0,
	TrapCanaryToken:        1.5,
	TrapDecoyDocument:      2.0,
	TrapBehavioralTripwire: 2.5,
}

// Trap is one deployed deception asset.
type Trap struct {
	ID     string   `json:"id"`
	CaseID string   `json:"case_id"`
	Type   TrapType `json:"type"`

	// Path is the planted URL for hidden routes, decoy documents and
	// tripwires. Empty for pure canary tokens.
	Path string `json:"path,omitempty"`

	// Token is the embedded canary value. Empty for path-based traps.
	Token string `json:"token,omitempty"`

	// Kind restricts behavioral tripwires to one interaction type.
	Kind models.EventKind `json:"kind,omitempty"`

	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`

	TriggerCount    int        `json:"trigger_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
}

// Trigger is one recorded trap activation.
type Trigger struct {
	ID          string    `json:"id"`
	TrapID      string    `json:"trap_id"`
	CaseID      string    `json:"case_id"`
	EventID     string    `json:"event_id"`
	Fingerprint string    `json:"fingerprint"`
	IPAddress   string    `json:"ip_address"`
	Path        string    `json:"path"`
	At          time.Time `json:"at"`
}

// EffectivenessReport summarises how a case's traps are performing.
type EffectivenessReport struct {
	CaseID        string  `json:"case_id"`
	TrapCount     int     `json:"trap_count"`
	ActiveTraps   int     `json:"active_traps"`
	TriggerCount  int     `json:"trigger_count"`
	UniqueActors  int     `json:"unique_actors"`
	TriggersPerHr float64 `json:"triggers_per_hour"`

	// RecentTriggers counts trigger events in the last hour, and
	// RecentActors the distinct fingerprints behind them.
	RecentTriggers int64 `json:"recent_triggers"`
	RecentActors   int   `json:"recent_actors"`

	// Traps ranks the case's traps by trigger rate relative to their
	// deployment age, best performer first.
	Traps []TrapPerformance `json:"traps,omitempty"`

	// Score weights triggers by trap type and normalizes by exposure
	// time, in [0,100].
	Score float64 `json:"score"`

	ByType          map[TrapType]int `json:"by_type"`
	Recommendations []string         `json:"recommendations,omitempty"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// TrapPerformance is one trap's row in the effectiveness ranking.
type TrapPerformance struct {
	TrapID       string   `json:"trap_id"`
	Type         TrapType `json:"type"`
	Path         string   `json:"path,omitempty"`
	Active       bool     `json:"active"`
	TriggerCount int      `json:"trigger_count"`
	AgeHours     float64  `json:"age_hours"`

	// RatePerHour is triggers divided by deployment age, floored at one
	// hour so brand-new traps do not dominate the ranking.
	RatePerHour float64 `json:"rate_per_hour"`
}
