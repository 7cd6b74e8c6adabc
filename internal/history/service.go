// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package history

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/caseguard/caseguard/internal/cache"
	"github.com/caseguard/caseguard/internal/logging"
	"github.com/caseguard/caseguard/internal/models"
)

// Service serves lookback windows with an in-memory TTL cache in front of
// the store. A burst of detector calls for the same fingerprint shares one
// database fill.
//
// Storage failures degrade to an empty window with a warning: detectors
// then score on the current event alone rather than stalling the pipeline.
type Service struct {
	store       Store
	windowCache *cache.LRUCache[[]models.Event]

	windowHours int
	maxEvents   int

	hits   atomic.Int64
	misses atomic.Int64
}

// ServiceConfig configures the history service.
type ServiceConfig struct {
	WindowHours int
	MaxEvents   int
	CacheTTL    time.Duration
	CacheSize   int
}

// DefaultServiceConfig returns production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		WindowHours: 48,
		MaxEvents:   200,
		CacheTTL:    10 * time.Minute,
		CacheSize:   10000,
	}
}

// NewService creates a history service over store.
func NewService(store Store, cfg ServiceConfig) *Service {
	if cfg.WindowHours <= 0 {
		cfg.WindowHours = 48
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 200
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}
	return &Service{
		store:       store,
		windowCache: cache.NewLRUCache[[]models.Event](cfg.CacheSize, cfg.CacheTTL),
		windowHours: cfg.WindowHours,
		maxEvents:   cfg.MaxEvents,
	}
}

// WindowHours returns the configured lookback in hours.
func (s *Service) WindowHours() int { return s.windowHours }

// Record persists an event and invalidates the cached windows it belongs
// to so the next read includes it.
func (s *Service) Record(ctx context.Context, event *models.Event) error {
	if err := s.store.SaveEvent(ctx, event); err != nil {
		return fmt.Errorf("recording event %s: %w", event.ID, err)
	}
	s.windowCache.Remove(windowKey(event.Fingerprint, event.CaseID))
	s.windowCache.Remove(windowKey(event.Fingerprint, ""))
	return nil
}

// Window returns the fingerprint's events on one case within the lookback,
// newest first. Never returns an error: storage failures yield an empty
// window and a warning.
func (s *Service) Window(ctx context.Context, fingerprint, caseID string) []models.Event {
	return s.window(ctx, fingerprint, caseID)
}

// FingerprintWindow returns the fingerprint's events across all cases
// within the lookback, newest first.
func (s *Service) FingerprintWindow(ctx context.Context, fingerprint string) []models.Event {
	return s.window(ctx, fingerprint, "")
}

func (s *Service) window(ctx context.Context, fingerprint, caseID string) []models.Event {
	key := windowKey(fingerprint, caseID)
	if events, ok := s.windowCache.Get(key); ok {
		s.hits.Add(1)
		return events
	}
	s.misses.Add(1)

	since := time.Now().Add(-time.Duration(s.windowHours) * time.Hour)
	var events []models.Event
	var err error
	if caseID != "" {
		events, err = s.store.EventsForWindow(ctx, fingerprint, caseID, since, s.maxEvents)
	} else {
		events, err = s.store.EventsForFingerprint(ctx, fingerprint, since, s.maxEvents)
	}
	if err != nil {
		logging.Warn().
			Err(err).
			Str("fingerprint", fingerprint).
			Str("case_id", caseID).
			Msg("History lookup failed, analyzing without history")
		return nil
	}

	s.windowCache.Add(key, events)
	return events
}

// ActiveFingerprints returns the distinct fingerprints seen on a case
// within the lookback. Storage failures yield nil.
func (s *Service) ActiveFingerprints(ctx context.Context, caseID string) []string {
	since := time.Now().Add(-time.Duration(s.windowHours) * time.Hour)
	fingerprints, err := s.store.ActiveFingerprintsForCase(ctx, caseID, since)
	if err != nil {
		logging.Warn().Err(err).Str("case_id", caseID).Msg("Case fingerprint lookup failed")
		return nil
	}
	return fingerprints
}

// FirstSeen returns when the fingerprint first appeared, if ever.
func (s *Service) FirstSeen(ctx context.Context, fingerprint string) (time.Time, bool) {
	first, ok, err := s.store.FirstSeen(ctx, fingerprint)
	if err != nil {
		logging.Warn().Err(err).Str("fingerprint", fingerprint).Msg("First-seen lookup failed")
		return time.Time{}, false
	}
	return first, ok
}

// CacheStats reports window cache hit counters.
func (s *Service) CacheStats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

func windowKey(fingerprint, caseID string) string {
	return fingerprint + "|" + caseID
}
