// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

// Package classifier integrates an optional external risk model. The
// engine records the model's opinion on every outcome but only lets it
// raise the final score when its confidence clears a floor.
package classifier

import (
	"context"

	"github.com/caseguard/caseguard/internal/models"
)

// Opinion is a risk assessment from an external model.
type Opinion struct {
	// Probability is the modeled chance the actor is a threat, in [0,1].
	Probability float64 `json:"probability"`

	// Label is the model's dominant class, e.g. "stalking" or "benign".
	Label string `json:"label"`

	// ModelVersion identifies the serving model for audit trails.
	ModelVersion string `json:"model_version"`
}

// RiskClassifier scores an event with its recent history. Implementations
// must honor ctx cancellation; a returned error means no opinion is
// available and rule scoring stands alone.
type RiskClassifier interface {
	Score(ctx context.Context, event *models.Event, history []models.Event) (Opinion, error)
}

// Noop always reports a zero opinion. Used when no classifier is
// configured so callers never nil-check.
type Noop struct{}

// Score returns an empty opinion.
func (Noop) Score(_ context.Context, _ *models.Event, _ []models.Event) (Opinion, error) {
	return Opinion{Label: "unscored"}, nil
}

// Static returns a fixed opinion. Test helper.
type Static struct {
	Opinion Opinion
	Err     error
}

// Score returns the configured opinion and error.
func (s Static) Score(_ context.Context, _ *models.Event, _ []models.Event) (Opinion, error) {
	return s.Opinion, s.Err
}
