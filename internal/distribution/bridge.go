// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package distribution

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/caseguard/caseguard/internal/alerting"
	"github.com/caseguard/caseguard/internal/detection"
	"github.com/caseguard/caseguard/internal/logging"
)

// Bridge forwards outcome and alert traffic from the bus to the
// websocket hub. It is the only component that knows about both.
type Bridge struct {
	bus *Bus
	hub *Hub
}

// NewBridge creates a bridge between the bus and the hub.
func NewBridge(bus *Bus, hub *Hub) *Bridge {
	return &Bridge{bus: bus, hub: hub}
}

// Run consumes the outcomes and alerts topics until the context is
// canceled. Designed for suture supervision: returns ctx.Err() on
// cancellation.
func (b *Bridge) Run(ctx context.Context) error {
	outcomes, err := b.bus.Subscribe(ctx, TopicOutcomes)
	if err != nil {
		return fmt.Errorf("subscribe outcomes: %w", err)
	}
	alerts, err := b.bus.Subscribe(ctx, TopicAlerts)
	if err != nil {
		return fmt.Errorf("subscribe alerts: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-outcomes:
			if !ok {
				return ctx.Err()
			}
			b.forwardOutcome(msg)

		case msg, ok := <-alerts:
			if !ok {
				return ctx.Err()
			}
			b.forwardAlert(msg)
		}
	}
}

// forwardOutcome decodes and delivers one outcome message. Undecodable
// messages are acked and dropped; redelivery cannot fix them.
func (b *Bridge) forwardOutcome(msg *message.Message) {
	defer msg.Ack()

	var outcome detection.Outcome
	if err := json.Unmarshal(msg.Payload, &outcome); err != nil {
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping undecodable outcome message")
		return
	}
	b.hub.BroadcastOutcome(&outcome)
}

func (b *Bridge) forwardAlert(msg *message.Message) {
	defer msg.Ack()

	var alert alerting.Alert
	if err := json.Unmarshal(msg.Payload, &alert); err != nil {
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping undecodable alert message")
		return
	}
	b.hub.BroadcastAlert(&alert)
}
