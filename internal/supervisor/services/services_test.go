// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package services

import (
	"context"
	"errors"
	"testing"

	"github.com/thejerf/suture/v4"
)

// namedService is the shape suture supervises plus the name used in
// its logs.
type namedService interface {
	suture.Service
	String() string
}

type fakeRunner struct {
	calls int
	err   error
}

func (f *fakeRunner) Run(_ context.Context) error {
	f.calls++
	return f.err
}

type fakeHub struct {
	calls int
}

func (f *fakeHub) RunWithContext(_ context.Context) error {
	f.calls++
	return nil
}

func TestHubServiceDelegates(t *testing.T) {
	t.Parallel()

	hub := &fakeHub{}
	svc := NewHubService(hub)

	if err := svc.Serve(context.Background()); err != nil {
		t.Fatal(err)
	}
	if hub.calls != 1 {
		t.Errorf("calls = %d, want 1", hub.calls)
	}
	if svc.String() != "websocket-hub" {
		t.Errorf("name = %q", svc.String())
	}
}

func TestRunnerServicesDelegate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		wrap     func(Runner) namedService
		wantName string
	}{
		{"bridge", func(r Runner) namedService { return NewBridgeService(r) }, "outcome-bridge"},
		{"consumer", func(r Runner) namedService { return NewConsumerService(r) }, "event-consumer"},
		{"alerts", func(r Runner) namedService { return NewAlertDeliveryService(r) }, "alert-delivery"},
		{"http", func(r Runner) namedService { return NewHTTPServerService(r) }, "http-server"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: errors.New("run failed")}
			svc := tt.wrap(runner)

			if err := svc.Serve(context.Background()); !errors.Is(err, runner.err) {
				t.Errorf("err = %v, want %v", err, runner.err)
			}
			if runner.calls != 1 {
				t.Errorf("calls = %d, want 1", runner.calls)
			}
			if svc.String() != tt.wantName {
				t.Errorf("name = %q, want %q", svc.String(), tt.wantName)
			}
		})
	}
}
