// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package distribution

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/caseguard/caseguard/internal/detection"
	"github.com/caseguard/caseguard/internal/models"
)

func setupBus(t *testing.T) *Bus {
	t.Helper()
	bus := NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func testEvent(id string) *models.Event {
	return &models.Event{
		ID:          id,
		Fingerprint: "fp-aaaa1111",
		CaseID:      "case-1",
		IPAddress:   "203.0.113.10",
		Path:        "/cases/case-1",
		Kind:        models.EventPageView,
		Timestamp:   time.Now().UTC(),
	}
}

func TestBusPublishSetsMetadata(t *testing.T) {
	bus := setupBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := bus.Subscribe(ctx, TopicOutcomes)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.PublishOutcome(testOutcome("case-1", "fp-aaaa1111")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-messages:
		if got := msg.Metadata.Get(metadataCaseID); got != "case-1" {
			t.Errorf("case_id metadata = %q, want case-1", got)
		}
		if got := msg.Metadata.Get(metadataFingerprint); got != "fp-aaaa1111" {
			t.Errorf("fingerprint metadata = %q, want fp-aaaa1111", got)
		}
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outcome message")
	}
}

func TestBridgeForwardsToHub(t *testing.T) {
	bus := setupBus(t)
	hub := startHub(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := NewBridge(bus, hub)
	go func() { _ = bridge.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	admin := createTestClient(hub, 256)
	admin.Subscribe(Scope{Admin: true})
	registerClient(hub, admin)

	bus.BroadcastOutcome(testOutcome("case-1", "fp-aaaa1111"))

	msg := recv(t, admin)
	if msg.Type != MessageTypeOutcome {
		t.Fatalf("expected outcome, got %q", msg.Type)
	}
	outcome, ok := msg.Data.(*detection.Outcome)
	if !ok {
		t.Fatalf("expected *detection.Outcome, got %T", msg.Data)
	}
	if outcome.CaseID != "case-1" || outcome.Score != 9.0 {
		t.Errorf("forwarded outcome = %+v", outcome)
	}
}

func TestBridgeRoutingSurvivesBadMessage(t *testing.T) {
	bus := setupBus(t)
	hub := startHub(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := NewBridge(bus, hub)
	go func() { _ = bridge.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	admin := createTestClient(hub, 256)
	admin.Subscribe(Scope{Admin: true})
	registerClient(hub, admin)

	// Garbage payload is dropped; the next valid message still flows.
	if err := bus.pubsub.Publish(TopicOutcomes, message.NewMessage("bad", []byte("{nope"))); err != nil {
		t.Fatalf("publish garbage: %v", err)
	}
	bus.BroadcastOutcome(testOutcome("case-2", "fp-bbbb2222"))

	msg := recv(t, admin)
	if msg.Type != MessageTypeOutcome {
		t.Fatalf("expected outcome, got %q", msg.Type)
	}
	if msg.Data.(*detection.Outcome).CaseID != "case-2" {
		t.Errorf("expected the valid outcome to arrive, got %+v", msg.Data)
	}
}

// recordingProcessor captures processed events.
type recordingProcessor struct {
	mu     sync.Mutex
	events []*models.Event
	err    error
}

func (p *recordingProcessor) Process(ctx context.Context, event *models.Event) (*detection.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return &detection.Outcome{EventID: event.ID}, p.err
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestConsumerFeedsProcessor(t *testing.T) {
	bus := setupBus(t)
	proc := &recordingProcessor{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := NewConsumer(bus, proc)
	go func() { _ = consumer.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	if err := bus.PublishEvent(testEvent("evt-1")); err != nil {
		t.Fatalf("publish event: %v", err)
	}
	if err := bus.PublishEvent(testEvent("evt-2")); err != nil {
		t.Fatalf("publish event: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for proc.count() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("processor saw %d events, want 2", proc.count())
		}
		time.Sleep(10 * time.Millisecond)
	}

	proc.mu.Lock()
	defer proc.mu.Unlock()
	if proc.events[0].ID != "evt-1" || proc.events[1].ID != "evt-2" {
		t.Errorf("events delivered out of order: %s, %s", proc.events[0].ID, proc.events[1].ID)
	}
}

func TestConsumerSkipsUndecodableEvents(t *testing.T) {
	bus := setupBus(t)
	proc := &recordingProcessor{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := NewConsumer(bus, proc)
	go func() { _ = consumer.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	if err := bus.pubsub.Publish(TopicEvents, message.NewMessage("bad", []byte("not json"))); err != nil {
		t.Fatalf("publish garbage: %v", err)
	}
	if err := bus.PublishEvent(testEvent("evt-3")); err != nil {
		t.Fatalf("publish event: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for proc.count() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("processor saw %d events, want 1", proc.count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatermillLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	adapter := newWatermillLogger(zerolog.New(&buf))

	scoped := adapter.With(watermill.LogFields{"topic": TopicEvents})
	scoped.Info("subscriber started", watermill.LogFields{"consumer": "intake"})

	out := buf.String()
	for _, want := range []string{"subscriber started", TopicEvents, "intake"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}
