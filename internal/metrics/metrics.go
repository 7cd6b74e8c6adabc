// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

// Package metrics exposes the Prometheus instrumentation for the
// detection pipeline, alerting and real-time distribution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseguard_events_processed_total",
			Help: "Total events run through the detection pipeline",
		},
		[]string{"kind"},
	)

	EventProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "caseguard_event_processing_seconds",
			Help:    "End-to-end pipeline duration per event",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutcomeScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "caseguard_outcome_score",
			Help:    "Distribution of final composed scores",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)

	ThreatLevels = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseguard_threat_levels_total",
			Help: "Outcomes by threat level",
		},
		[]string{"level"},
	)

	// Detector metrics
	DetectorChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseguard_detector_checks_total",
			Help: "Detector executions by result",
		},
		[]string{"detector", "result"}, // triggered, clean, failed, timeout
	)

	DetectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "caseguard_detector_duration_seconds",
			Help:    "Per-detector analysis duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"detector"},
	)

	// Storage metrics
	ActivityRecordsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseguard_activity_records_total",
			Help: "Durable activity records by classification",
		},
		[]string{"classification"},
	)

	HistoryCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "caseguard_history_cache_hits_total",
			Help: "History window cache hits",
		},
	)

	HistoryCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "caseguard_history_cache_misses_total",
			Help: "History window cache misses",
		},
	)

	// Honeytrap metrics
	HoneytrapTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseguard_honeytrap_triggers_total",
			Help: "Deception asset triggers by trap type",
		},
		[]string{"trap_type"},
	)

	HoneytrapsDeployed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "caseguard_honeytraps_deployed",
			Help: "Currently deployed deception assets",
		},
	)

	// Alerting metrics
	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseguard_alerts_raised_total",
			Help: "Alerts raised by type and priority",
		},
		[]string{"type", "priority"},
	)

	AlertsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "caseguard_alerts_deduplicated_total",
			Help: "Alerts suppressed by the dedupe window",
		},
	)

	AlertQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "caseguard_alert_queue_depth",
			Help: "Alerts waiting in the processing queue",
		},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseguard_notifications_sent_total",
			Help: "Notification deliveries by channel and status",
		},
		[]string{"channel", "status"},
	)

	// Distribution metrics
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "caseguard_websocket_clients",
			Help: "Connected real-time subscribers",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseguard_websocket_messages_total",
			Help: "Messages fanned out to subscribers by topic",
		},
		[]string{"topic"},
	)

	// Classifier metrics
	ClassifierCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseguard_classifier_calls_total",
			Help: "External classifier calls by status",
		},
		[]string{"status"}, // ok, error, rejected
	)
)
