// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

// Package supervisor builds the suture supervision tree for the
// CaseGuard server.
//
// The tree has three layers under one root:
//
//   - pipeline: the bus consumer and alert delivery loop. A crash here
//     restarts event scoring without touching connected subscribers.
//   - delivery: the websocket hub and the bus-to-hub bridge.
//   - api: the HTTP server.
//
// Layers isolate failures: a panicking detector restarts the pipeline
// layer while the API keeps answering reads. Supervisor events are
// logged through sutureslog, bridged to zerolog by internal/logging.
package supervisor
