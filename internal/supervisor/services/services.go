// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package services

import (
	"context"
)

// ContextHub matches *distribution.Hub's RunWithContext method.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// Runner matches components with a context-aware run loop: the bridge,
// the bus consumer, the alert manager and the HTTP server.
type Runner interface {
	Run(ctx context.Context) error
}

// HubService supervises the websocket hub.
type HubService struct {
	hub ContextHub
}

// NewHubService wraps a hub.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String identifies the service in supervisor logs.
func (s *HubService) String() string { return "websocket-hub" }

// runnerService delegates Serve to a Runner under a fixed name.
type runnerService struct {
	name   string
	runner Runner
}

func (s *runnerService) Serve(ctx context.Context) error {
	return s.runner.Run(ctx)
}

func (s *runnerService) String() string { return s.name }

// BridgeService supervises the bus-to-hub bridge.
type BridgeService struct{ runnerService }

// NewBridgeService wraps a bridge.
func NewBridgeService(bridge Runner) *BridgeService {
	return &BridgeService{runnerService{name: "outcome-bridge", runner: bridge}}
}

// ConsumerService supervises the event bus consumer.
type ConsumerService struct{ runnerService }

// NewConsumerService wraps a consumer.
func NewConsumerService(consumer Runner) *ConsumerService {
	return &ConsumerService{runnerService{name: "event-consumer", runner: consumer}}
}

// AlertDeliveryService supervises the alert manager's delivery loop.
type AlertDeliveryService struct{ runnerService }

// NewAlertDeliveryService wraps an alert manager.
func NewAlertDeliveryService(manager Runner) *AlertDeliveryService {
	return &AlertDeliveryService{runnerService{name: "alert-delivery", runner: manager}}
}

// SuspicionDecayService supervises the periodic suspicion decay loop.
type SuspicionDecayService struct{ runnerService }

// NewSuspicionDecayService wraps a decay loop.
func NewSuspicionDecayService(loop Runner) *SuspicionDecayService {
	return &SuspicionDecayService{runnerService{name: "suspicion-decay", runner: loop}}
}

// HTTPServerService supervises the HTTP server. The server's Run
// already handles graceful shutdown on context cancellation.
type HTTPServerService struct{ runnerService }

// NewHTTPServerService wraps an HTTP server.
func NewHTTPServerService(server Runner) *HTTPServerService {
	return &HTTPServerService{runnerService{name: "http-server", runner: server}}
}
