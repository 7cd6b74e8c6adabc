// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package alerting

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/caseguard/caseguard/internal/cache"
	"github.com/caseguard/caseguard/internal/detection"
	"github.com/caseguard/caseguard/internal/logging"
	"github.com/caseguard/caseguard/internal/metrics"
	"github.com/caseguard/caseguard/internal/models"
)

// Broadcaster fans new alerts out to real-time subscribers.
type Broadcaster interface {
	BroadcastAlert(alert *Alert)
}

// ManagerConfig configures the alert manager.
type ManagerConfig struct {
	// QueueSize bounds the delivery queue. At capacity the lowest
	// priority alert is dropped to admit a higher one.
	QueueSize int

	// DedupeWindow suppresses repeat alerts of the same type for the
	// same fingerprint and case.
	DedupeWindow time.Duration

	// CorrelationWindow is the lookback for linking a new alert with
	// recent ones from the same fingerprint.
	CorrelationWindow time.Duration

	// NotifyRatePerMinute throttles deliveries across all channels.
	NotifyRatePerMinute int
}

// DefaultManagerConfig returns production defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		QueueSize:           10000,
		DedupeWindow:        15 * time.Minute,
		CorrelationWindow:   30 * time.Minute,
		NotifyRatePerMinute: 60,
	}
}

// Manager owns the alert lifecycle: creation from outcomes, dedupe,
// correlation, queued delivery and operator acknowledgement.
type Manager struct {
	config      ManagerConfig
	store       *BadgerStore
	queue       *cache.PriorityQueue[*Alert]
	dedupe      *cache.LRUCache[time.Time]
	limiter     *rate.Limiter
	broadcaster Broadcaster

	mu        sync.RWMutex
	notifiers []Notifier

	wake chan struct{}
}

// NewManager creates the manager. broadcaster may be nil.
func NewManager(store *BadgerStore, broadcaster Broadcaster, cfg ManagerConfig) *Manager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.DedupeWindow <= 0 {
		cfg.DedupeWindow = 15 * time.Minute
	}
	if cfg.NotifyRatePerMinute <= 0 {
		cfg.NotifyRatePerMinute = 60
	}
	return &Manager{
		config:      cfg,
		store:       store,
		queue:       cache.NewPriorityQueue[*Alert](cfg.QueueSize),
		dedupe:      cache.NewLRUCache[time.Time](cfg.QueueSize, cfg.DedupeWindow),
		limiter:     rate.NewLimiter(rate.Limit(float64(cfg.NotifyRatePerMinute)/60), cfg.NotifyRatePerMinute),
		broadcaster: broadcaster,
		wake:        make(chan struct{}, 1),
	}
}

// AddNotifier registers a delivery channel.
func (m *Manager) AddNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// Raise converts a detection outcome into an alert. Duplicate outcomes
// within the dedupe window are suppressed.
func (m *Manager) Raise(ctx context.Context, outcome *detection.Outcome, event *models.Event) {
	alertType := typeForOutcome(outcome)
	dedupeKey := string(alertType) + "|" + outcome.Fingerprint + "|" + outcome.CaseID

	if _, seen := m.dedupe.Get(dedupeKey); seen {
		metrics.AlertsDeduplicated.Inc()
		logging.Debug().
			Str("type", string(alertType)).
			Str("fingerprint", outcome.Fingerprint).
			Msg("Alert suppressed by dedupe window")
		return
	}
	m.dedupe.Add(dedupeKey, time.Now())

	alert := m.buildAlert(alertType, outcome, event)
	m.correlate(alert)

	if err := m.store.Save(alert); err != nil {
		logging.Error().Err(err).Str("alert_id", alert.ID).Msg("Failed to persist alert")
	}

	if dropped, ok := m.queue.Push(alert.ID, alert, int(alert.Priority)); ok {
		logging.Warn().Str("alert_id", dropped.ID).Msg("Alert dropped from full queue")
	}
	metrics.AlertsRaised.WithLabelValues(string(alertType), alert.Priority.String()).Inc()
	metrics.AlertQueueDepth.Set(float64(m.queue.Len()))

	if m.broadcaster != nil {
		m.broadcaster.BroadcastAlert(alert)
	}

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// buildAlert assembles the alert record for an outcome.
func (m *Manager) buildAlert(alertType AlertType, outcome *detection.Outcome, event *models.Event) *Alert {
	triggered := make([]string, 0, len(outcome.Triggered))
	for _, t := range outcome.Triggered {
		triggered = append(triggered, string(t))
	}

	return &Alert{
		ID:             uuid.NewString(),
		Type:           alertType,
		Priority:       PriorityForLevel(outcome.ThreatLevel),
		Status:         StatusOpen,
		Fingerprint:    outcome.Fingerprint,
		CaseID:         outcome.CaseID,
		EventID:        outcome.EventID,
		Score:          outcome.Score,
		ThreatLevel:    outcome.ThreatLevel,
		Classification: outcome.Classification,
		Title:          titleFor(alertType, outcome),
		Message:        messageFor(alertType, outcome, event),
		TriggeredBy:    triggered,

		AutoEscalate:       autoEscalates(alertType, outcome.ThreatLevel),
		RecommendedActions: RecommendedActionsFor(alertType),
		Metadata: map[string]any{
			"ip_address":       event.IPAddress,
			"path":             event.Path,
			"event_kind":       string(event.Kind),
			"short_circuited":  outcome.ShortCircuited,
			"escalation":       outcome.EscalationFactor,
			"activity_record":  outcome.ActivityRecordID,
			"classifier_label": outcome.ClassifierLabel,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// correlate links the alert with recent alerts from the same fingerprint.
func (m *Manager) correlate(alert *Alert) {
	if m.config.CorrelationWindow <= 0 {
		return
	}
	recent, err := m.store.List(ListFilter{
		Fingerprint: alert.Fingerprint,
		Since:       time.Now().Add(-m.config.CorrelationWindow),
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Alert correlation lookup failed")
		return
	}
	for _, prev := range recent {
		if prev.ID != alert.ID {
			alert.CorrelatedAlertIDs = append(alert.CorrelatedAlertIDs, prev.ID)
		}
	}
}

// Run drains the delivery queue until ctx is cancelled. Intended to run
// under the supervision tree.
func (m *Manager) Run(ctx context.Context) error {
	logging.Info().Msg("Alert delivery worker started")
	for {
		alert, ok := m.queue.Pop()
		if !ok {
			select {
			case <-m.wake:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		metrics.AlertQueueDepth.Set(float64(m.queue.Len()))

		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
		m.deliver(ctx, alert)
	}
}

// deliver sends one alert to every enabled channel whose priority floor
// admits it. Alerts below every floor stay on the dashboard broadcast.
func (m *Manager) deliver(ctx context.Context, alert *Alert) {
	m.mu.RLock()
	notifiers := make([]Notifier, len(m.notifiers))
	copy(notifiers, m.notifiers)
	m.mu.RUnlock()

	for _, n := range notifiers {
		if !n.Enabled() || alert.Priority < n.MinPriority() {
			continue
		}
		if err := n.Send(ctx, alert); err != nil {
			metrics.NotificationsSent.WithLabelValues(n.Name(), "error").Inc()
			logging.Warn().Err(err).
				Str("channel", n.Name()).
				Str("alert_id", alert.ID).
				Msg("Alert delivery failed")
			continue
		}
		metrics.NotificationsSent.WithLabelValues(n.Name(), "ok").Inc()
	}
}

// Get returns one alert.
func (m *Manager) Get(id string) (*Alert, error) {
	return m.store.Get(id)
}

// List returns alerts matching the filter, newest first.
func (m *Manager) List(filter ListFilter) ([]Alert, error) {
	return m.store.List(filter)
}

// Acknowledge marks an open alert as acknowledged.
func (m *Manager) Acknowledge(id, by string) (*Alert, error) {
	alert, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if alert.Status == StatusResolved {
		return nil, fmt.Errorf("alert %s is already resolved", id)
	}
	now := time.Now().UTC()
	alert.Status = StatusAcknowledged
	alert.AcknowledgedBy = by
	alert.AcknowledgedAt = &now
	if err := m.store.Save(alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// Resolve closes an alert.
func (m *Manager) Resolve(id, by string) (*Alert, error) {
	alert, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	alert.Status = StatusResolved
	alert.ResolvedBy = by
	alert.ResolvedAt = &now
	if err := m.store.Save(alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// QueueDepth reports pending deliveries.
func (m *Manager) QueueDepth() int {
	return m.queue.Len()
}

// typeForOutcome picks the most specific alert type for an outcome.
func typeForOutcome(outcome *detection.Outcome) AlertType {
	if outcome.HoneytrapHit {
		return AlertHoneytrap
	}
	for _, r := range outcome.TriggeredResults() {
		if r.TamperIndicator {
			return AlertTampering
		}
	}
	if outcomeHasSignal(outcome, "witness_targeting") {
		return AlertWitnessTargeting
	}
	if outcome.ThreatLevel == models.ThreatCritical {
		return AlertCriticalThreat
	}
	if outcomeHasSignal(outcome, "coordinated_case_interest") ||
		outcomeHasSignal(outcome, "distributed_infrastructure") {
		return AlertCoordinated
	}
	if outcomeHasSignal(outcome, "escalating_frequency") {
		return AlertEscalation
	}
	return AlertHighThreat
}

// outcomeHasSignal reports whether any triggered result carries the signal.
func outcomeHasSignal(outcome *detection.Outcome, signal string) bool {
	for _, r := range outcome.TriggeredResults() {
		for _, s := range r.Signals {
			if s == signal {
				return true
			}
		}
	}
	return false
}

// autoEscalates reports whether the alert bypasses the normal review
// queue when left unacknowledged. Critical outcomes and the criminal-
// specific types always escalate.
func autoEscalates(alertType AlertType, level models.ThreatLevel) bool {
	switch alertType {
	case AlertHoneytrap, AlertTampering, AlertWitnessTargeting:
		return true
	}
	return level == models.ThreatCritical
}

func titleFor(alertType AlertType, outcome *detection.Outcome) string {
	switch alertType {
	case AlertHoneytrap:
		return "Deception asset triggered on case " + outcome.CaseID
	case AlertTampering:
		return "Evidence interference attempt on case " + outcome.CaseID
	case AlertWitnessTargeting:
		return "Witness-page targeting on case " + outcome.CaseID
	case AlertCriticalThreat:
		return "Critical threat activity on case " + outcome.CaseID
	case AlertCoordinated:
		return "Coordinated interest in case " + outcome.CaseID
	case AlertEscalation:
		return "Escalating visit pattern on case " + outcome.CaseID
	default:
		return "High-risk activity on case " + outcome.CaseID
	}
}

func messageFor(alertType AlertType, outcome *detection.Outcome, event *models.Event) string {
	dims := make([]string, 0, len(outcome.Triggered))
	for _, t := range outcome.Triggered {
		dims = append(dims, string(t))
	}
	return fmt.Sprintf("Fingerprint %s scored %.1f (%s) on %s. Triggered dimensions: %s.",
		outcome.Fingerprint, outcome.Score, outcome.ThreatLevel, event.Path,
		strings.Join(dims, ", "))
}
