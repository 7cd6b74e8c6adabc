// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package history

import (
	"context"
	"time"

	"github.com/caseguard/caseguard/internal/logging"
)

// DecayLoop periodically erodes the suspicion ledger so a fingerprint
// that stops misbehaving eventually drops back to zero. Scores only
// fall here; violations raise them through the scoring pipeline.
type DecayLoop struct {
	store    Store
	points   int
	interval time.Duration
}

// NewDecayLoop creates the loop. Zero values fall back to 1 point per
// 24 hours.
func NewDecayLoop(store Store, points int, interval time.Duration) *DecayLoop {
	if points <= 0 {
		points = 1
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &DecayLoop{store: store, points: points, interval: interval}
}

// Run applies decay on each tick until the context is canceled.
func (l *DecayLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			affected, err := l.store.DecaySuspicion(ctx, l.points)
			if err != nil {
				logging.Error().Err(err).Msg("Suspicion decay failed")
				continue
			}
			logging.Info().
				Int64("fingerprints", affected).
				Int("points", l.points).
				Msg("Suspicion scores decayed")
		}
	}
}
