// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// blockingService runs until canceled and records that it started.
type blockingService struct {
	started chan struct{}
}

func (s *blockingService) Serve(ctx context.Context) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *blockingService) String() string { return "blocking-service" }

func TestNewTreeDefaults(t *testing.T) {
	t.Parallel()

	tree := NewTree(discardLogger(), TreeConfig{})
	if tree.config.FailureThreshold != 5.0 {
		t.Errorf("FailureThreshold = %v, want 5.0", tree.config.FailureThreshold)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", tree.config.ShutdownTimeout)
	}
}

func TestTreeRunsServices(t *testing.T) {
	t.Parallel()

	tree := NewTree(discardLogger(), DefaultTreeConfig())

	pipeline := &blockingService{started: make(chan struct{}, 1)}
	delivery := &blockingService{started: make(chan struct{}, 1)}
	api := &blockingService{started: make(chan struct{}, 1)}

	tree.AddPipelineService(pipeline)
	tree.AddDeliveryService(delivery)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for name, ch := range map[string]chan struct{}{
		"pipeline": pipeline.started,
		"delivery": delivery.started,
		"api":      api.started,
	} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s service never started", name)
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("tree returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree never stopped")
	}
}

func TestTreeRemove(t *testing.T) {
	t.Parallel()

	tree := NewTree(discardLogger(), DefaultTreeConfig())
	svc := &blockingService{started: make(chan struct{}, 1)}
	token := tree.AddPipelineService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	select {
	case <-svc.started:
	case <-time.After(2 * time.Second):
		t.Fatal("service never started")
	}

	if err := tree.RemovePipelineService(token); err != nil {
		t.Fatalf("RemovePipelineService: %v", err)
	}

	cancel()
	for range errCh {
	}
}
