// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

// Package main is the entry point for the CaseGuard server.
//
// CaseGuard watches case-tracking web traffic for the behavioral
// signatures of perpetrators monitoring their own investigations. Every
// observed interaction flows through a multi-detector scoring pipeline;
// outcomes above threshold become durable activity records, operator
// alerts and real-time websocket pushes.
//
// Components start in this order:
//
//  1. Configuration (koanf: defaults, YAML file, CASEGUARD_ env vars)
//  2. Logging (zerolog)
//  3. DuckDB event history and suspicion ledger
//  4. BadgerDB alert and honeytrap state
//  5. Detection engine with all detectors registered
//  6. Watermill event bus, websocket hub and bridge
//  7. HTTP API
//
// Long-running components run under a suture supervision tree and shut
// down gracefully on SIGINT and SIGTERM.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/caseguard/caseguard/internal/alerting"
	"github.com/caseguard/caseguard/internal/api"
	"github.com/caseguard/caseguard/internal/classifier"
	"github.com/caseguard/caseguard/internal/config"
	"github.com/caseguard/caseguard/internal/detection"
	"github.com/caseguard/caseguard/internal/distribution"
	"github.com/caseguard/caseguard/internal/geo"
	"github.com/caseguard/caseguard/internal/history"
	"github.com/caseguard/caseguard/internal/honeytrap"
	"github.com/caseguard/caseguard/internal/logging"
	"github.com/caseguard/caseguard/internal/supervisor"
	"github.com/caseguard/caseguard/internal/supervisor/services"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (overrides CASEGUARD_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("duckdb_path", cfg.Storage.DuckDBPath).
		Str("addr", cfg.API.Addr).
		Msg("Starting CaseGuard")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event history and suspicion ledger on embedded DuckDB.
	db, err := sql.Open("duckdb", cfg.Storage.DuckDBPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open DuckDB")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing DuckDB")
		}
	}()

	store := history.NewDuckDBStore(db)
	if err := store.InitSchema(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize history schema")
	}
	logging.Info().Msg("History store initialized")

	windows := history.NewService(store, history.ServiceConfig{
		WindowHours: cfg.History.WindowHours,
		MaxEvents:   cfg.History.MaxEvents,
		CacheTTL:    cfg.History.CacheTTL,
		CacheSize:   cfg.History.CacheSize,
	})

	// Alert and honeytrap state share one BadgerDB under distinct key
	// prefixes.
	badgerOpts := badger.DefaultOptions(cfg.Storage.BadgerDir).WithLogger(nil)
	if cfg.Storage.BadgerDir == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	kv, err := badger.Open(badgerOpts)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open BadgerDB")
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing BadgerDB")
		}
	}()

	traps, err := honeytrap.NewRegistry(honeytrap.NewBadgerStore(kv), honeytrap.RegistryConfig{
		RouteBase:       cfg.Honeytrap.RouteBase,
		MinTrapsPerCase: cfg.Honeytrap.MinTrapsPerCase,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load honeytrap registry")
	}
	logging.Info().Int("traps", len(traps.List(""))).Msg("Honeytrap registry loaded")

	// Real-time surfaces. The bus carries intake events and outcomes;
	// the bridge forwards outcomes and alerts to websocket subscribers.
	bus := distribution.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()
	hub := distribution.NewHub(cfg.Distribution.HeartbeatInterval)
	bridge := distribution.NewBridge(bus, hub)

	alerts := alerting.NewManager(alerting.NewBadgerStore(kv), bus, alerting.ManagerConfig{
		QueueSize:           cfg.Alerting.QueueSize,
		DedupeWindow:        cfg.Alerting.DedupeWindow,
		CorrelationWindow:   cfg.Alerting.CorrelationWindow,
		NotifyRatePerMinute: cfg.Alerting.NotifyRatePerMinute,
	})
	alerts.AddNotifier(alerting.LogNotifier{})
	if cfg.Alerting.Webhook.Enabled && cfg.Alerting.Webhook.URL != "" {
		alerts.AddNotifier(alerting.NewWebhookNotifier(alerting.WebhookOptions{
			URL:         cfg.Alerting.Webhook.URL,
			Enabled:     true,
			Timeout:     cfg.Alerting.Webhook.Timeout,
			MinPriority: alerting.ParsePriority(cfg.Alerting.Webhook.MinPriority),
		}))
		logging.Info().Str("url", cfg.Alerting.Webhook.URL).Msg("Webhook notifier registered")
	}

	engine := buildEngine(cfg, windows, store, traps, alerts, bus)

	consumer := distribution.NewConsumer(bus, engine)

	handler := api.NewHandler(api.HandlerDeps{
		Engine:  engine,
		Alerts:  alerts,
		Traps:   traps,
		Store:   store,
		Windows: windows,
		Bus:     bus,
		Hub:     hub,
	})

	middlewareCfg := api.DefaultMiddlewareConfig()
	middlewareCfg.RateLimitRequests = cfg.API.RequestsPerMin
	router := api.NewRouter(handler, api.NewMiddleware(middlewareCfg))
	server := api.NewServer(cfg.API.Addr, router.Setup(), cfg.API.ShutdownTimeout)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.API.ShutdownTimeout,
	})
	tree.AddDeliveryService(services.NewHubService(hub))
	tree.AddDeliveryService(services.NewBridgeService(bridge))
	tree.AddPipelineService(services.NewConsumerService(consumer))
	tree.AddPipelineService(services.NewAlertDeliveryService(alerts))
	tree.AddPipelineService(services.NewSuspicionDecayService(
		history.NewDecayLoop(store, cfg.History.DecayPoints, cfg.History.DecayInterval)))
	tree.AddAPIService(services.NewHTTPServerService(server))
	logging.Info().Str("addr", cfg.API.Addr).Msg("Supervision tree assembled")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutting down, waiting for supervised services")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervision tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("CaseGuard stopped")
}

// buildEngine assembles the detection engine with every detector
// registered. The geo resolver and external classifier are optional;
// their detectors and scoring steps degrade to "no signal" without
// them.
func buildEngine(
	cfg *config.Config,
	windows *history.Service,
	store *history.DuckDBStore,
	traps *honeytrap.Registry,
	alerts *alerting.Manager,
	bus *distribution.Bus,
) *detection.Engine {
	var resolver geo.Resolver
	if cfg.Geo.MMDBPath != "" {
		mmdb, err := geo.NewMaxMindResolver(cfg.Geo.MMDBPath)
		if err != nil {
			logging.Warn().Err(err).Str("path", cfg.Geo.MMDBPath).
				Msg("Failed to open MaxMind database, travel checks disabled")
		} else {
			resolver = mmdb
			logging.Info().Str("path", cfg.Geo.MMDBPath).Msg("Geo resolver loaded")
		}
	}

	var riskClassifier classifier.RiskClassifier
	if cfg.Classifier.Enabled && cfg.Classifier.URL != "" {
		riskClassifier = classifier.NewHTTPClassifier(cfg.Classifier.URL, cfg.Classifier.Timeout)
		logging.Info().Str("url", cfg.Classifier.URL).Msg("External risk classifier enabled")
	}

	engine := detection.NewEngine(windows, store, riskClassifier, alerts, bus, detection.EngineConfig{
		PoolWidth:       cfg.Engine.PoolWidth,
		DetectorTimeout: cfg.Engine.DetectorTimeout,
		Comprehensive:   cfg.Engine.Comprehensive,
		Scoring: detection.ScoringConfig{
			ShortCircuitScore:  cfg.Engine.ShortCircuitScore,
			EscalationGeneric:  cfg.Engine.EscalationGeneric,
			EscalationCriminal: cfg.Engine.EscalationCriminal,
		},
		ActivityThreshold:       cfg.Engine.ActivityThreshold,
		AlertThreshold:          cfg.Engine.AlertThreshold,
		CriticalSignalScore:     cfg.Engine.CriticalSignalScore,
		ClassifierMinConfidence: cfg.Classifier.MinConfidence,
		ReplayConcurrency:       cfg.Engine.ReplayConcurrency,
	})

	engine.RegisterDetector(detection.NewCriminalDetector())
	engine.RegisterDetector(detection.NewEvasionDetector(resolver))
	engine.RegisterDetector(detection.NewTemporalDetector())
	engine.RegisterDetector(detection.NewBehavioralDetector())
	engine.RegisterDetector(detection.NewContentDetector())
	engine.RegisterDetector(detection.NewNetworkDetector(windows))
	engine.RegisterDetector(detection.NewSessionDetector())
	engine.RegisterDetector(detection.NewPsychologicalDetector())
	engine.RegisterDetector(detection.NewEnvironmentalDetector())
	engine.RegisterDetector(detection.NewHoneytrapDetector(traps))
	logging.Info().Int("detectors", len(engine.ListDetectors())).Msg("Detection engine ready")

	return engine
}
