// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package history

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewDecayLoopDefaults(t *testing.T) {
	t.Parallel()

	loop := NewDecayLoop(nil, 0, 0)
	if loop.points != 1 {
		t.Errorf("points = %d, want 1", loop.points)
	}
	if loop.interval != 24*time.Hour {
		t.Errorf("interval = %v, want 24h", loop.interval)
	}
}

func TestDecayLoopErodesScores(t *testing.T) {
	t.Parallel()

	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := store.RecordViolation(ctx, "fp-aaaa1111", 5); err != nil {
		t.Fatal(err)
	}

	loop := NewDecayLoop(store, 2, 20*time.Millisecond)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- loop.Run(runCtx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		score, err := store.GetSuspicion(ctx, "fp-aaaa1111")
		if err != nil {
			t.Fatal(err)
		}
		if score != nil && score.Score < 5 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}

	score, err := store.GetSuspicion(ctx, "fp-aaaa1111")
	if err != nil {
		t.Fatal(err)
	}
	if score == nil || score.Score >= 5 {
		t.Errorf("score = %+v, want decayed below 5", score)
	}
}
