// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package distribution

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caseguard/caseguard/internal/alerting"
	"github.com/caseguard/caseguard/internal/detection"
	"github.com/caseguard/caseguard/internal/logging"
	"github.com/caseguard/caseguard/internal/models"
)

// Bus topics. Events flow in from the boundary layer; outcomes and
// alerts flow out of the pipeline toward subscribers.
const (
	TopicEvents   = "caseguard.events"
	TopicOutcomes = "caseguard.outcomes"
	TopicAlerts   = "caseguard.alerts"
)

// Message metadata keys.
const (
	metadataCaseID      = "case_id"
	metadataFingerprint = "fingerprint"
)

// Bus is the in-process message bus connecting intake, the detection
// pipeline, and real-time delivery. It satisfies the engine's outcome
// broadcaster and the alert manager's broadcaster, so neither ever
// touches a websocket directly.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// NewBus creates the bus. Buffered output channels keep publishers from
// blocking on slow consumers.
func NewBus() *Bus {
	logger := newWatermillLogger(logging.Logger())
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, logger),
		logger: logger,
	}
}

// Close shuts the bus down, closing all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// PublishEvent puts a validated event on the intake topic.
func (b *Bus) PublishEvent(event *models.Event) error {
	return b.publishJSON(TopicEvents, event, event.CaseID, event.Fingerprint)
}

// PublishOutcome puts a detection outcome on the outcomes topic.
func (b *Bus) PublishOutcome(outcome *detection.Outcome) error {
	return b.publishJSON(TopicOutcomes, outcome, outcome.CaseID, outcome.Fingerprint)
}

// PublishAlert puts an alert on the alerts topic.
func (b *Bus) PublishAlert(alert *alerting.Alert) error {
	return b.publishJSON(TopicAlerts, alert, alert.CaseID, alert.Fingerprint)
}

// BroadcastOutcome implements the engine's outcome broadcaster. Publish
// failures are logged, never surfaced; delivery is best-effort.
func (b *Bus) BroadcastOutcome(outcome *detection.Outcome) {
	if err := b.PublishOutcome(outcome); err != nil {
		logging.Warn().Err(err).Str("event_id", outcome.EventID).Msg("failed to publish outcome")
	}
}

// BroadcastAlert implements the alert manager's broadcaster.
func (b *Bus) BroadcastAlert(alert *alerting.Alert) {
	if err := b.PublishAlert(alert); err != nil {
		logging.Warn().Err(err).Str("alert_id", alert.ID).Msg("failed to publish alert")
	}
}

// Subscribe returns a channel of messages for the given topic. The
// channel closes when the context is canceled or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

func (b *Bus) publishJSON(topic string, payload interface{}, caseID, fingerprint string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}

	msg := message.NewMessage(uuid.New().String(), data)
	if caseID != "" {
		msg.Metadata.Set(metadataCaseID, caseID)
	}
	if fingerprint != "" {
		msg.Metadata.Set(metadataFingerprint, fingerprint)
	}

	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// watermillLogger adapts zerolog to watermill's LoggerAdapter so bus
// internals log through the same sink as everything else.
type watermillLogger struct {
	logger zerolog.Logger
}

func newWatermillLogger(logger zerolog.Logger) watermill.LoggerAdapter {
	return &watermillLogger{logger: logger}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(l.logger.Error().Err(err), fields).Msg(msg)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.event(l.logger.Info(), fields).Msg(msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(l.logger.Debug(), fields).Msg(msg)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(l.logger.Trace(), fields).Msg(msg)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	logger := l.logger
	for k, v := range fields {
		logger = logger.With().Interface(k, v).Logger()
	}
	return &watermillLogger{logger: logger}
}

func (l *watermillLogger) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}
