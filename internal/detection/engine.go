// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package detection

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/caseguard/caseguard/internal/cache"
	"github.com/caseguard/caseguard/internal/classifier"
	"github.com/caseguard/caseguard/internal/logging"
	"github.com/caseguard/caseguard/internal/metrics"
	"github.com/caseguard/caseguard/internal/models"
)

// HistoryProvider serves the lookback windows detectors analyze against
// and records incoming events. Implemented by the history service.
type HistoryProvider interface {
	Record(ctx context.Context, event *models.Event) error
	Window(ctx context.Context, fingerprint, caseID string) []models.Event
	FingerprintWindow(ctx context.Context, fingerprint string) []models.Event
}

// ActivityStore persists durable records and the suspicion ledger.
type ActivityStore interface {
	SaveActivityRecord(ctx context.Context, record *models.ActivityRecord) error
	RecordViolation(ctx context.Context, fingerprint string, points int) (*models.SuspicionScore, error)
}

// AlertRaiser turns high-score outcomes into operator alerts.
// Implemented by the alerting manager.
type AlertRaiser interface {
	Raise(ctx context.Context, outcome *Outcome, event *models.Event)
}

// OutcomeBroadcaster fans outcomes out to real-time subscribers.
type OutcomeBroadcaster interface {
	BroadcastOutcome(outcome *Outcome)
}

// EngineConfig configures the orchestration facade.
type EngineConfig struct {
	PoolWidth       int
	DetectorTimeout time.Duration
	Comprehensive   bool

	Scoring ScoringConfig

	// ActivityThreshold is the score at which an activity record is
	// persisted; AlertThreshold the score at which an alert is raised.
	ActivityThreshold float64
	AlertThreshold    float64

	// CriticalSignalScore marks individual detector results that warrant
	// a tampering alert when they carry tamper details.
	CriticalSignalScore float64

	// ClassifierMinConfidence gates when the external model's probability
	// may raise the final score.
	ClassifierMinConfidence float64

	// ReplayConcurrency bounds concurrent pipelines during batch replay.
	ReplayConcurrency int

	// SuspicionPoints is added to the actor's ledger per activity record.
	SuspicionPoints int
}

// DefaultEngineConfig returns production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PoolWidth:               10,
		DetectorTimeout:         10 * time.Second,
		Scoring:                 DefaultScoringConfig(),
		ActivityThreshold:       6.0,
		AlertThreshold:          8.0,
		CriticalSignalScore:     8.0,
		ClassifierMinConfidence: 0.8,
		ReplayConcurrency:       4,
		SuspicionPoints:         15,
	}
}

// Engine is the orchestration facade: it selects detectors per event,
// dispatches them on the shared pool, composes the final score and acts
// on the outcome.
type Engine struct {
	mu        sync.RWMutex
	detectors map[DetectorType]Detector
	enabled   bool
	config    EngineConfig

	pool        *Pool
	history     HistoryProvider
	activities  ActivityStore
	classifier  classifier.RiskClassifier
	alerts      AlertRaiser
	broadcaster OutcomeBroadcaster

	statsMu sync.Mutex
	stats   EngineStats
	// seen estimates distinct fingerprints for the status endpoint.
	seen *cache.BloomFilter
	// throughput counts processed events over the last five minutes.
	throughput *cache.SlidingWindowCounter
}

// EngineStats is the snapshot served by the status endpoint.
type EngineStats struct {
	EventsProcessed int64              `json:"events_processed"`
	Outcomes        map[string]int64   `json:"outcomes_by_level"`
	DetectorErrors  int64              `json:"detector_errors"`
	LastProcessedAt time.Time          `json:"last_processed_at"`
	AvgDurationMs   float64            `json:"avg_duration_ms"`

	// UniqueFingerprints is a bloom-filter estimate of distinct actors
	// seen since startup.
	UniqueFingerprints int64 `json:"unique_fingerprints"`

	// EventsLastWindow counts events processed in the last five minutes.
	EventsLastWindow int64 `json:"events_last_window"`
}

// NewEngine creates the engine. classifier, alerts and broadcaster may be
// nil; the corresponding steps are skipped.
func NewEngine(
	history HistoryProvider,
	activities ActivityStore,
	riskClassifier classifier.RiskClassifier,
	alerts AlertRaiser,
	broadcaster OutcomeBroadcaster,
	cfg EngineConfig,
) *Engine {
	if cfg.PoolWidth <= 0 {
		cfg.PoolWidth = 10
	}
	if cfg.DetectorTimeout <= 0 {
		cfg.DetectorTimeout = 10 * time.Second
	}
	if cfg.ReplayConcurrency <= 0 {
		cfg.ReplayConcurrency = 4
	}
	if cfg.Scoring.ShortCircuitScore == 0 {
		cfg.Scoring = DefaultScoringConfig()
	}
	if riskClassifier == nil {
		riskClassifier = classifier.Noop{}
	}

	return &Engine{
		detectors:   make(map[DetectorType]Detector),
		enabled:     true,
		config:      cfg,
		pool:        NewPool(cfg.PoolWidth),
		history:     history,
		activities:  activities,
		classifier:  riskClassifier,
		alerts:      alerts,
		broadcaster: broadcaster,
		stats:       EngineStats{Outcomes: make(map[string]int64)},
		seen:        cache.NewBloomFilter(100000, 0.01),
		throughput:  cache.NewSlidingWindowCounter(5*time.Minute, 10),
	}
}

// RegisterDetector adds a detector to the engine.
func (e *Engine) RegisterDetector(detector Detector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detectors[detector.Type()] = detector
	logging.Info().Str("detector", string(detector.Type())).Msg("Registered detector")
}

// GetDetector returns a registered detector.
func (e *Engine) GetDetector(t DetectorType) (Detector, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.detectors[t]
	return d, ok
}

// ListDetectors returns the registered detectors in stable order.
func (e *Engine) ListDetectors() []Detector {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Detector, 0, len(e.detectors))
	for _, d := range e.detectors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type() < out[j].Type() })
	return out
}

// ConfigureDetector applies a new configuration to one detector.
func (e *Engine) ConfigureDetector(t DetectorType, config json.RawMessage) error {
	detector, ok := e.GetDetector(t)
	if !ok {
		return fmt.Errorf("unknown detector %q", t)
	}
	if err := detector.Configure(config); err != nil {
		return err
	}
	logging.Info().Str("detector", string(t)).Msg("Detector reconfigured")
	return nil
}

// SetDetectorEnabled flips one detector on or off.
func (e *Engine) SetDetectorEnabled(t DetectorType, enabled bool) error {
	detector, ok := e.GetDetector(t)
	if !ok {
		return fmt.Errorf("unknown detector %q", t)
	}
	detector.SetEnabled(enabled)
	logging.Info().Str("detector", string(t)).Bool("enabled", enabled).Msg("Detector toggled")
	return nil
}

// SetEnabled pauses or resumes the whole engine.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

// Enabled reports whether the engine processes events.
func (e *Engine) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// Process runs one event through the full pipeline: persist, window,
// select, dispatch, compose, classify, act. Identical events produce
// identical scores; the suspicion ledger and alert dedupe are the only
// stateful follow-ups.
func (e *Engine) Process(ctx context.Context, event *models.Event) (*Outcome, error) {
	return e.process(ctx, event, false)
}

// process is the shared pipeline body. forceComprehensive overrides the
// configured selection mode; the replay path always runs every dimension.
func (e *Engine) process(ctx context.Context, event *models.Event, forceComprehensive bool) (*Outcome, error) {
	if !e.Enabled() {
		return nil, fmt.Errorf("detection engine is paused")
	}
	start := time.Now()

	if err := e.history.Record(ctx, event); err != nil {
		// Persistence trouble must not blind the detectors; the window
		// just won't contain this event.
		logging.Warn().Err(err).Str("event_id", event.ID).Msg("Failed to persist event")
	}

	input := &Input{
		Event:      event,
		History:    e.history.Window(ctx, event.Fingerprint, event.CaseID),
		AllHistory: e.history.FingerprintWindow(ctx, event.Fingerprint),
	}

	e.mu.RLock()
	cfg := e.config
	comprehensive := cfg.Comprehensive || forceComprehensive
	e.mu.RUnlock()

	selected := Select(event, comprehensive)
	results := e.dispatch(ctx, selected, input, cfg.DetectorTimeout)

	outcome := e.compose(event, results, cfg)

	opinion, err := e.classifier.Score(ctx, event, input.History)
	if err != nil {
		metrics.ClassifierCalls.WithLabelValues("error").Inc()
		logging.Debug().Err(err).Str("event_id", event.ID).Msg("Classifier unavailable")
	} else {
		metrics.ClassifierCalls.WithLabelValues("ok").Inc()
		outcome.ClassifierProbability = opinion.Probability
		outcome.ClassifierLabel = opinion.Label
		if opinion.Probability >= cfg.ClassifierMinConfidence {
			if blended := opinion.Probability * 10; blended > outcome.Score {
				outcome.Score = clampScore(blended)
				outcome.ThreatLevel = models.ThreatLevelForScore(outcome.Score)
			}
		}
	}

	e.act(ctx, outcome, event, cfg)

	outcome.ProcessedAt = time.Now().UTC()
	outcome.Duration = time.Since(start)
	e.recordStats(outcome)

	metrics.EventsProcessed.WithLabelValues(string(event.Kind)).Inc()
	metrics.EventProcessingDuration.Observe(outcome.Duration.Seconds())
	metrics.OutcomeScores.Observe(outcome.Score)
	metrics.ThreatLevels.WithLabelValues(outcome.ThreatLevel.String()).Inc()

	if e.broadcaster != nil {
		e.broadcaster.BroadcastOutcome(outcome)
	}
	return outcome, nil
}

// dispatch runs the selected detectors on the shared pool, each under its
// own timeout. A timed-out or failing detector yields a failed result and
// never aborts its siblings.
func (e *Engine) dispatch(ctx context.Context, selected map[DetectorType]bool, input *Input, timeout time.Duration) []*Result {
	e.mu.RLock()
	var detectors []Detector
	for t, d := range e.detectors {
		if selected[t] && d.Enabled() {
			detectors = append(detectors, d)
		}
	}
	e.mu.RUnlock()
	sort.Slice(detectors, func(i, j int) bool { return detectors[i].Type() < detectors[j].Type() })

	results := make([]*Result, len(detectors))
	var wg sync.WaitGroup
	for i, detector := range detectors {
		i, detector := i, detector
		err := e.pool.Go(ctx, &wg, func() {
			results[i] = e.runDetector(ctx, detector, input, timeout)
		})
		if err != nil {
			results[i] = &Result{
				Detector: detector.Type(),
				Failed:   true,
				Err:      err,
			}
		}
	}
	wg.Wait()
	return results
}

// runDetector executes one detector under its timeout. The check keeps
// running after a timeout, but its result is discarded.
func (e *Engine) runDetector(ctx context.Context, detector Detector, input *Input, timeout time.Duration) *Result {
	t := detector.Type()
	start := time.Now()

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type checked struct {
		result *Result
		err    error
	}
	done := make(chan checked, 1)
	go func() {
		result, err := detector.Check(dctx, input)
		done <- checked{result, err}
	}()

	select {
	case c := <-done:
		metrics.DetectorDuration.WithLabelValues(string(t)).Observe(time.Since(start).Seconds())
		if c.err != nil {
			metrics.DetectorChecks.WithLabelValues(string(t), "failed").Inc()
			logging.Warn().Err(c.err).Str("detector", string(t)).Msg("Detector failed")
			return &Result{Detector: t, Failed: true, Err: c.err}
		}
		result := c.result
		if result == nil {
			result = &Result{Detector: t}
		}
		if result.Triggered {
			metrics.DetectorChecks.WithLabelValues(string(t), "triggered").Inc()
		} else {
			metrics.DetectorChecks.WithLabelValues(string(t), "clean").Inc()
		}
		return result

	case <-dctx.Done():
		metrics.DetectorChecks.WithLabelValues(string(t), "timeout").Inc()
		logging.Warn().
			Str("detector", string(t)).
			Dur("timeout", timeout).
			Msg("Detector timed out, result discarded")
		return &Result{Detector: t, Failed: true, Err: dctx.Err()}
	}
}

// compose folds results into an outcome.
func (e *Engine) compose(event *models.Event, results []*Result, cfg EngineConfig) *Outcome {
	score, factor, shortCircuited := Compose(results, cfg.Scoring)

	outcome := &Outcome{
		EventID:          event.ID,
		Fingerprint:      event.Fingerprint,
		CaseID:           event.CaseID,
		Score:            score,
		ThreatLevel:      models.ThreatLevelForScore(score),
		ShortCircuited:   shortCircuited,
		EscalationFactor: factor,
		Results:          results,
	}

	for _, r := range results {
		if r.Failed {
			outcome.FailedDetectors = append(outcome.FailedDetectors, r.Detector)
			continue
		}
		if r.Triggered {
			outcome.Triggered = append(outcome.Triggered, r.Detector)
			if r.Detector == DetectorHoneytrap {
				outcome.HoneytrapHit = true
			}
		}
	}

	outcome.Classification = Classify(results, outcome.HoneytrapHit)
	return outcome
}

// act persists activity records, updates the suspicion ledger and raises
// alerts according to the outcome.
func (e *Engine) act(ctx context.Context, outcome *Outcome, event *models.Event, cfg EngineConfig) {
	persist := outcome.Score >= cfg.ActivityThreshold || outcome.HoneytrapHit
	if persist && e.activities != nil {
		record := buildActivityRecord(outcome, event)
		if err := e.activities.SaveActivityRecord(ctx, record); err != nil {
			logging.Error().Err(err).Str("event_id", event.ID).Msg("Failed to persist activity record")
		} else {
			outcome.ActivityRecordID = record.ID
			metrics.ActivityRecordsPersisted.WithLabelValues(string(record.Classification)).Inc()
		}

		if _, err := e.activities.RecordViolation(ctx, event.Fingerprint, cfg.SuspicionPoints); err != nil {
			logging.Warn().Err(err).Str("fingerprint", event.Fingerprint).Msg("Failed to update suspicion ledger")
		}
	}

	if e.alerts != nil {
		raise := outcome.Score >= cfg.AlertThreshold || outcome.HoneytrapHit
		if !raise {
			// Tamper details on an independently critical signal raise a
			// tampering alert even when composition stayed below the bar.
			for _, r := range outcome.TriggeredResults() {
				if r.TamperIndicator && r.Score >= cfg.CriticalSignalScore {
					raise = true
					break
				}
			}
		}
		if raise {
			e.alerts.Raise(ctx, outcome, event)
		}
	}
}

// buildActivityRecord snapshots the outcome into a durable record.
func buildActivityRecord(outcome *Outcome, event *models.Event) *models.ActivityRecord {
	severity := 0
	triggeredBy := make([]string, 0, len(outcome.Triggered))
	scores := make(map[string]float64, len(outcome.Triggered))
	for _, r := range outcome.TriggeredResults() {
		triggeredBy = append(triggeredBy, string(r.Detector))
		scores[string(r.Detector)] = r.Score
		if r.Severity > severity {
			severity = r.Severity
		}
	}

	classification := outcome.Classification
	if classification == "" {
		classification = models.ActivitySuspicious
	}

	return &models.ActivityRecord{
		ID:             uuid.NewString(),
		EventID:        event.ID,
		Fingerprint:    event.Fingerprint,
		CaseID:         event.CaseID,
		Classification: classification,
		Severity:       severity,
		Confidence:     outcome.Score / 10,
		Evidence: models.Evidence{
			IPAddress:   event.IPAddress,
			Path:        event.Path,
			EventKind:   event.Kind,
			Network:     event.Network,
			Device:      event.Device,
			TriggeredBy: triggeredBy,
			Scores:      scores,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// Replay runs a batch of historical events through the pipeline with
// bounded concurrency, always under comprehensive selection so an
// investigator sees every dimension's verdict. Outcomes return in input
// order.
func (e *Engine) Replay(ctx context.Context, events []*models.Event) ([]*Outcome, error) {
	if !e.Enabled() {
		return nil, fmt.Errorf("detection engine is paused")
	}

	e.mu.RLock()
	bound := e.config.ReplayConcurrency
	e.mu.RUnlock()

	outcomes := make([]*Outcome, len(events))
	errs := make([]error, len(events))
	sem := make(chan struct{}, bound)
	var wg sync.WaitGroup

	for i, event := range events {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		wg.Add(1)
		go func(i int, event *models.Event) {
			defer func() {
				<-sem
				wg.Done()
			}()
			outcomes[i], errs[i] = e.process(ctx, event, true)
		}(i, event)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return outcomes, fmt.Errorf("replaying event %s: %w", events[i].ID, err)
		}
	}
	return outcomes, nil
}

// SetComprehensive toggles run-everything mode at runtime.
func (e *Engine) SetComprehensive(comprehensive bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config.Comprehensive = comprehensive
}

// recordStats updates the status-endpoint snapshot.
func (e *Engine) recordStats(outcome *Outcome) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.stats.EventsProcessed++
	e.stats.Outcomes[outcome.ThreatLevel.String()]++
	if !e.seen.Test(outcome.Fingerprint) {
		e.seen.Add(outcome.Fingerprint)
		e.stats.UniqueFingerprints++
	}
	e.throughput.IncrementOne()
	e.stats.DetectorErrors += int64(len(outcome.FailedDetectors))
	e.stats.LastProcessedAt = outcome.ProcessedAt
	// Exponential moving average keeps the endpoint cheap.
	ms := float64(outcome.Duration.Milliseconds())
	if e.stats.AvgDurationMs == 0 {
		e.stats.AvgDurationMs = ms
	} else {
		e.stats.AvgDurationMs = 0.9*e.stats.AvgDurationMs + 0.1*ms
	}
}

// Stats returns a copy of the status snapshot.
func (e *Engine) Stats() EngineStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	outcomes := make(map[string]int64, len(e.stats.Outcomes))
	for k, v := range e.stats.Outcomes {
		outcomes[k] = v
	}
	return EngineStats{
		EventsProcessed:    e.stats.EventsProcessed,
		Outcomes:           outcomes,
		DetectorErrors:     e.stats.DetectorErrors,
		LastProcessedAt:    e.stats.LastProcessedAt,
		AvgDurationMs:      e.stats.AvgDurationMs,
		UniqueFingerprints: e.stats.UniqueFingerprints,
		EventsLastWindow:   e.throughput.Count(),
	}
}
