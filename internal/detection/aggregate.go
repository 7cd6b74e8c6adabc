// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package detection

import (
	"github.com/caseguard/caseguard/internal/models"
)

// ScoringConfig holds the composition constants.
type ScoringConfig struct {
	// ShortCircuitScore: a single detector at or above this collapses the
	// final score to that detector's score, with no escalation.
	ShortCircuitScore float64

	// EscalationGeneric and EscalationCriminal are the per-extra-signal
	// increments of the escalation factor. The criminal increment applies
	// whenever the criminal indicators dimension is among the triggers.
	EscalationGeneric  float64
	EscalationCriminal float64
}

// DefaultScoringConfig returns the production composition constants.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		ShortCircuitScore:  9.0,
		EscalationGeneric:  0.10,
		EscalationCriminal: 0.15,
	}
}

// Compose folds the detector results into the final score.
//
// One detector at or above the short-circuit bound dominates outright:
// corroboration cannot make a confirmed signal stronger, and averaging
// must not dilute it. Otherwise the triggered scores are averaged over
// every detector that ran (not just those that fired) and multiplied by
// the escalation factor, which grows with each corroborating dimension.
// Failed detectors shrink neither the numerator nor the denominator.
func Compose(results []*Result, cfg ScoringConfig) (score, factor float64, shortCircuited bool) {
	known := 0
	var sum, maxScore float64
	triggered := 0
	criminalTriggered := false

	for _, r := range results {
		if r.Failed {
			continue
		}
		known++
		if !r.Triggered {
			continue
		}
		triggered++
		sum += r.Score
		if r.Score > maxScore {
			maxScore = r.Score
		}
		if r.Detector == DetectorCriminal {
			criminalTriggered = true
		}
	}

	if known == 0 || triggered == 0 {
		return 0, 1, false
	}

	if maxScore >= cfg.ShortCircuitScore {
		return clampScore(maxScore), 1, true
	}

	increment := cfg.EscalationGeneric
	if criminalTriggered {
		increment = cfg.EscalationCriminal
	}
	factor = 1 + increment*float64(triggered-1)
	score = clampScore(sum / float64(known) * factor)
	return score, factor, false
}

// classPriority orders the activity taxonomy from most to least specific.
// Honeytrap hits are handled before this table applies.
var classPriority = []models.ActivityClass{
	models.ActivityEvidenceTampering,
	models.ActivityAnonymizedAccess,
	models.ActivityVictimStalking,
	models.ActivityWitnessTargeting,
	models.ActivityCyberstalking,
	models.ActivitySystemInfiltration,
	models.ActivityLocationEvasion,
	models.ActivityIdentityFraud,
	models.ActivityCaseMonitoring,
	models.ActivityTechnicalEvasion,
	models.ActivitySuspicious,
}

// signalClasses maps individual detector signals to taxonomy candidates.
var signalClasses = map[string]models.ActivityClass{
	"evidence_interference":      models.ActivityEvidenceTampering,
	"anonymized_network_access":  models.ActivityAnonymizedAccess,
	"open_proxy_access":          models.ActivityAnonymizedAccess,
	"victim_page_obsession":      models.ActivityVictimStalking,
	"person_focused_viewing":     models.ActivityVictimStalking,
	"witness_targeting":          models.ActivityWitnessTargeting,
	"compulsive_revisits":        models.ActivityCyberstalking,
	"compulsive_status_checking": models.ActivityCyberstalking,
	"exclusive_case_fixation":    models.ActivityCyberstalking,
	"media_fixation":             models.ActivityCyberstalking,
	"obsessive_media_inspection": models.ActivityCyberstalking,
	"restricted_access_probing":  models.ActivitySystemInfiltration,
	"distributed_infrastructure": models.ActivitySystemInfiltration,
	"contact_channel_probing":    models.ActivitySystemInfiltration,
	"coordinated_case_interest":  models.ActivitySystemInfiltration,
	"impossible_travel":          models.ActivityLocationEvasion,
	"ip_rotation":                models.ActivityLocationEvasion,
	"vpn_relay_hopping":          models.ActivityLocationEvasion,
	"device_identity_churn":      models.ActivityIdentityFraud,
	"environment_spoofing":       models.ActivityIdentityFraud,
	"session_address_change":     models.ActivityIdentityFraud,
	"repeat_timeline_study":      models.ActivityCaseMonitoring,
	"nocturnal_concentration":    models.ActivityCaseMonitoring,
	"anniversary_visit":          models.ActivityCaseMonitoring,
	"ritual_timing":              models.ActivityCaseMonitoring,
	"escalating_frequency":       models.ActivityCaseMonitoring,
	"scripted_timing":            models.ActivityTechnicalEvasion,
	"parallel_sessions":          models.ActivityTechnicalEvasion,
	"anti_fingerprinting":        models.ActivityTechnicalEvasion,
	"fresh_browser_profile":      models.ActivityTechnicalEvasion,
	"virtual_machine":            models.ActivityTechnicalEvasion,
	"counter_forensics":          models.ActivityTechnicalEvasion,
	"disposal_language":          models.ActivityEvidenceTampering,
}

// Classify maps the triggered results onto the activity taxonomy. A
// honeytrap hit overrides everything; otherwise candidates collected from
// the fired signals resolve by specificity, tamper indicators first.
func Classify(results []*Result, honeytrapHit bool) models.ActivityClass {
	if honeytrapHit {
		return models.ActivityHoneytrapTriggered
	}

	candidates := make(map[models.ActivityClass]bool)
	anyTriggered := false
	for _, r := range results {
		if r.Failed || !r.Triggered {
			continue
		}
		anyTriggered = true
		if r.TamperIndicator {
			candidates[models.ActivityEvidenceTampering] = true
		}
		for _, signal := range r.Signals {
			if class, ok := signalClasses[signal]; ok {
				candidates[class] = true
			}
		}
	}
	if !anyTriggered {
		return ""
	}

	for _, class := range classPriority {
		if candidates[class] {
			return class
		}
	}
	return models.ActivitySuspicious
}
