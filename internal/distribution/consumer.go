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

	"github.com/caseguard/caseguard/internal/detection"
	"github.com/caseguard/caseguard/internal/logging"
	"github.com/caseguard/caseguard/internal/models"
)

// EventProcessor is the slice of the detection engine the consumer
// needs.
type EventProcessor interface {
	Process(ctx context.Context, event *models.Event) (*detection.Outcome, error)
}

// Consumer drains the intake topic and feeds each event through the
// detection pipeline. Processing errors are logged and the message
// acked anyway; the pipeline degrades toward "no signal" rather than
// redelivering, since replaying an event that already failed validation
// or storage cannot improve the result.
type Consumer struct {
	bus       *Bus
	processor EventProcessor
}

// NewConsumer creates an intake consumer.
func NewConsumer(bus *Bus, processor EventProcessor) *Consumer {
	return &Consumer{bus: bus, processor: processor}
}

// Run consumes the events topic until the context is canceled.
// Designed for suture supervision: returns ctx.Err() on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	events, err := c.bus.Subscribe(ctx, TopicEvents)
	if err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-events:
			if !ok {
				return ctx.Err()
			}
			c.consume(ctx, msg)
		}
	}
}

func (c *Consumer) consume(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var event models.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping undecodable event message")
		return
	}

	// The engine broadcasts the outcome itself; the consumer only needs
	// to know whether processing failed.
	if _, err := c.processor.Process(ctx, &event); err != nil {
		logging.Warn().Err(err).Str("event_id", event.ID).Msg("event processing failed")
	}
}
