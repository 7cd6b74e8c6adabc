// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

// Package config defines the CaseGuard configuration surface and loads it
// with koanf in three layers: struct defaults, optional YAML file, then
// CASEGUARD_-prefixed environment variables (highest priority).
package config

import (
	"fmt"
	"time"
)

// Config is the full application configuration.
type Config struct {
	Logging      LoggingConfig      `koanf:"logging"`
	Engine       EngineConfig       `koanf:"engine"`
	History      HistoryConfig      `koanf:"history"`
	Storage      StorageConfig      `koanf:"storage"`
	Alerting     AlertingConfig     `koanf:"alerting"`
	Honeytrap    HoneytrapConfig    `koanf:"honeytrap"`
	Distribution DistributionConfig `koanf:"distribution"`
	Classifier   ClassifierConfig   `koanf:"classifier"`
	Geo          GeoConfig          `koanf:"geo"`
	API          APIConfig          `koanf:"api"`
}

// LoggingConfig controls the global zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace..panic
	Format string `koanf:"format"` // json, console
	Caller bool   `koanf:"caller"`
}

// EngineConfig controls the orchestration facade.
type EngineConfig struct {
	// PoolWidth is the bounded worker pool shared across detectors.
	PoolWidth int `koanf:"pool_width"`

	// DetectorTimeout is the per-detector analysis deadline. A timed-out
	// detector yields a fallback result and never aborts its siblings.
	DetectorTimeout time.Duration `koanf:"detector_timeout"`

	// Comprehensive runs every registered detector unconditionally instead
	// of selecting by event kind and flags. Used for investigation replay.
	Comprehensive bool `koanf:"comprehensive"`

	// EscalationGeneric and EscalationCriminal are the per-extra-signal
	// escalation increments for the generic and criminal composition rules.
	EscalationGeneric  float64 `koanf:"escalation_generic"`
	EscalationCriminal float64 `koanf:"escalation_criminal"`

	// ShortCircuitScore is the single-detector score at which the final
	// score collapses to that detector's score.
	ShortCircuitScore float64 `koanf:"short_circuit_score"`

	// ActivityThreshold is the final score at which a durable activity
	// record is persisted.
	ActivityThreshold float64 `koanf:"activity_threshold"`

	// AlertThreshold is the final score at which a law-enforcement-priority
	// alert is raised.
	AlertThreshold float64 `koanf:"alert_threshold"`

	// CriticalSignalScore marks individual detector scores that count as
	// independently critical signals.
	CriticalSignalScore float64 `koanf:"critical_signal_score"`

	// ReplayConcurrency bounds concurrent per-event pipelines during
	// batch replay.
	ReplayConcurrency int `koanf:"replay_concurrency"`
}

// HistoryConfig controls the history service.
type HistoryConfig struct {
	// WindowHours is the default lookback for criminal-case analysis.
	WindowHours int `koanf:"window_hours"`

	// MaxEvents caps the events returned per window.
	MaxEvents int `koanf:"max_events"`

	// CacheTTL is the window cache lifetime; kept well below the window
	// itself so bursts of detector calls share one fill.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// CacheSize is the maximum cached windows.
	CacheSize int `koanf:"cache_size"`

	// DecayPoints and DecayInterval drive the periodic suspicion decay:
	// every interval, each non-zero ledger entry loses this many points.
	DecayPoints   int           `koanf:"decay_points"`
	DecayInterval time.Duration `koanf:"decay_interval"`
}

// StorageConfig locates the embedded stores.
type StorageConfig struct {
	// DuckDBPath is the analytical event store. ":memory:" for tests.
	DuckDBPath string `koanf:"duckdb_path"`

	// BadgerDir holds alert and honeytrap state. Empty means in-memory.
	BadgerDir string `koanf:"badger_dir"`
}

// AlertingConfig controls the alert manager.
type AlertingConfig struct {
	// QueueSize bounds the processing queue; lowest-priority alerts are
	// dropped first at capacity.
	QueueSize int `koanf:"queue_size"`

	// DedupeWindow suppresses repeat alerts of the same type for the same
	// fingerprint and case.
	DedupeWindow time.Duration `koanf:"dedupe_window"`

	// CorrelationWindow is the lookback for correlating new alerts with
	// recent ones from the same fingerprint.
	CorrelationWindow time.Duration `koanf:"correlation_window"`

	// NotifyRatePerMinute throttles deliveries per channel.
	NotifyRatePerMinute int `koanf:"notify_rate_per_minute"`

	Webhook WebhookConfig `koanf:"webhook"`
}

// WebhookConfig configures the webhook notification channel.
type WebhookConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`

	// MinPriority is the channel floor: info, low, medium, high or
	// critical. Alerts below it go to the dashboard surface only.
	MinPriority string `koanf:"min_priority"`
}

// HoneytrapConfig controls the deception subsystem.
type HoneytrapConfig struct {
	// RouteBase is the path prefix hidden routes are minted under.
	RouteBase string `koanf:"route_base"`

	// MinTrapsPerCase drives coverage recommendations in effectiveness
	// reports.
	MinTrapsPerCase int `koanf:"min_traps_per_case"`
}

// DistributionConfig controls the real-time fan-out surface.
type DistributionConfig struct {
	// HeartbeatInterval is the liveness heartbeat period for subscribers.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
}

// ClassifierConfig configures the optional external risk classifier.
type ClassifierConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`

	// MinConfidence is the probability below which the opinion is recorded
	// but never raises the final score.
	MinConfidence float64 `koanf:"min_confidence"`
}

// GeoConfig configures the optional MaxMind database for travel checks.
type GeoConfig struct {
	MMDBPath string `koanf:"mmdb_path"`
}

// APIConfig controls the operator HTTP surface.
type APIConfig struct {
	Addr            string        `koanf:"addr"`
	RequestsPerMin  int           `koanf:"requests_per_min"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// defaultConfig returns the defaults applied before file and env layers.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			PoolWidth:           10,
			DetectorTimeout:     10 * time.Second,
			Comprehensive:       false,
			EscalationGeneric:   0.10,
			EscalationCriminal:  0.15,
			ShortCircuitScore:   9.0,
			ActivityThreshold:   6.0,
			AlertThreshold:      8.0,
			CriticalSignalScore: 8.0,
			ReplayConcurrency:   4,
		},
		History: HistoryConfig{
			WindowHours:   48,
			MaxEvents:     200,
			CacheTTL:      10 * time.Minute,
			CacheSize:     10000,
			DecayPoints:   1,
			DecayInterval: 24 * time.Hour,
		},
		Storage: StorageConfig{
			DuckDBPath: "/data/caseguard/events.db",
			BadgerDir:  "/data/caseguard/state",
		},
		Alerting: AlertingConfig{
			QueueSize:           10000,
			DedupeWindow:        15 * time.Minute,
			CorrelationWindow:   30 * time.Minute,
			NotifyRatePerMinute: 60,
			Webhook: WebhookConfig{
				Enabled:     false,
				Timeout:     10 * time.Second,
				MinPriority: "critical",
			},
		},
		Honeytrap: HoneytrapConfig{
			RouteBase:       "/cases/internal",
			MinTrapsPerCase: 2,
		},
		Distribution: DistributionConfig{
			HeartbeatInterval: 30 * time.Second,
		},
		Classifier: ClassifierConfig{
			Enabled:       false,
			Timeout:       5 * time.Second,
			MinConfidence: 0.8,
		},
		API: APIConfig{
			Addr:            ":8484",
			RequestsPerMin:  600,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Validate checks cross-field constraints after loading.
func (c *Config) Validate() error {
	if c.Engine.PoolWidth <= 0 {
		return fmt.Errorf("engine.pool_width must be positive, got %d", c.Engine.PoolWidth)
	}
	if c.Engine.DetectorTimeout <= 0 {
		return fmt.Errorf("engine.detector_timeout must be positive")
	}
	if c.Engine.EscalationGeneric < 0 || c.Engine.EscalationCriminal < 0 {
		return fmt.Errorf("escalation factors cannot be negative")
	}
	if c.Engine.ShortCircuitScore <= 0 || c.Engine.ShortCircuitScore > 10 {
		return fmt.Errorf("engine.short_circuit_score must be in (0,10], got %f", c.Engine.ShortCircuitScore)
	}
	if c.Engine.ActivityThreshold > c.Engine.AlertThreshold {
		return fmt.Errorf("engine.activity_threshold %f exceeds alert_threshold %f",
			c.Engine.ActivityThreshold, c.Engine.AlertThreshold)
	}
	if c.History.WindowHours <= 0 {
		return fmt.Errorf("history.window_hours must be positive, got %d", c.History.WindowHours)
	}
	if c.History.CacheTTL >= time.Duration(c.History.WindowHours)*time.Hour {
		return fmt.Errorf("history.cache_ttl must be shorter than the window itself")
	}
	if c.Alerting.Webhook.Enabled && c.Alerting.Webhook.URL == "" {
		return fmt.Errorf("alerting.webhook.url required when webhook channel is enabled")
	}
	if c.Classifier.Enabled && c.Classifier.URL == "" {
		return fmt.Errorf("classifier.url required when classifier is enabled")
	}
	return nil
}
