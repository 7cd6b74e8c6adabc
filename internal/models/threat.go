// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package models

// ThreatLevel is the ordinal classification derived from a final score.
type ThreatLevel int

const (
	ThreatMinimal ThreatLevel = iota
	ThreatLow
	ThreatMedium
	ThreatHigh
	ThreatCritical
)

// Fixed score thresholds for threat levels.
const (
	thresholdCritical = 9.0
	thresholdHigh     = 7.0
	thresholdMedium   = 5.0
	thresholdLow      = 3.0
)

// ThreatLevelForScore maps a final score in [0,10] to its threat level.
func ThreatLevelForScore(score float64) ThreatLevel {
	switch {
	case score >= thresholdCritical:
		return ThreatCritical
	case score >= thresholdHigh:
		return ThreatHigh
	case score >= thresholdMedium:
		return ThreatMedium
	case score >= thresholdLow:
		return ThreatLow
	default:
		return ThreatMinimal
	}
}

// String returns the canonical name of the threat level.
func (l ThreatLevel) String() string {
	switch l {
	case ThreatCritical:
		return "CRITICAL"
	case ThreatHigh:
		return "HIGH"
	case ThreatMedium:
		return "MEDIUM"
	case ThreatLow:
		return "LOW"
	default:
		return "MINIMAL"
	}
}

// MarshalJSON encodes the threat level as its string name.
func (l ThreatLevel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// UnmarshalJSON decodes a threat level from its string name.
func (l *ThreatLevel) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"CRITICAL"`:
		*l = ThreatCritical
	case `"HIGH"`:
		*l = ThreatHigh
	case `"MEDIUM"`:
		*l = ThreatMedium
	case `"LOW"`:
		*l = ThreatLow
	default:
		*l = ThreatMinimal
	}
	return nil
}
