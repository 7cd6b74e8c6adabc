// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

/*
Package distribution fans detection outcomes, alerts, and liveness
heartbeats out to real-time subscribers.

It has two halves:

  - An in-process message bus (Watermill gochannel) that decouples the
    detection pipeline from delivery. The engine and the alert manager
    publish to the bus; they never see a websocket.
  - A hub-and-spoke websocket layer (gorilla/websocket) that delivers
    bus traffic to connected clients.

Subscription scopes:

Clients subscribe to one or more scopes and only receive traffic that
matches. An admin scope receives everything; a case scope receives
outcomes and alerts for that case; a fingerprint scope follows a single
visitor across cases. Heartbeats go to every connected client.

	{"type": "subscribe", "data": {"cases": ["case-4411"]}}
	{"type": "subscribe", "data": {"admin": true}}
	{"type": "unsubscribe", "data": {"cases": ["case-4411"]}}

Each client runs two goroutines, a readPump handling control messages
and a writePump draining the send channel, in the usual gorilla
hub-client arrangement. Slow clients whose send buffer fills are
dropped rather than allowed to stall the hub.

The Hub's RunWithContext and the Bridge's Run are designed for suture
supervision: both return the context error on cancellation so the
supervisor can distinguish graceful shutdown from failure.
*/
package distribution
