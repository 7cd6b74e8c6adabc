// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

// Package api provides the operator HTTP surface using the Chi router.
//
// Route groups:
//
//   - /api/v1/events      event intake and batch replay
//   - /api/v1/alerts      alert listing and lifecycle transitions
//   - /api/v1/honeytraps  trap deployment and effectiveness reports
//   - /api/v1/engine      engine status and runtime detector control
//   - /api/v1/activity    persisted activity records and suspicion ledger
//   - /api/v1/health      liveness and readiness probes
//   - /ws                 websocket subscription endpoint
//   - /metrics            Prometheus exposition
//
// All responses share one envelope (Response) with a status, a data
// payload, metadata carrying timing information, and a structured error
// when the status is "error". Event intake is asynchronous: a valid
// event is accepted onto the bus and the outcome is delivered over the
// websocket surface; replay is synchronous and returns its outcomes.
package api
