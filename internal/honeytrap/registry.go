// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package honeytrap

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caseguard/caseguard/internal/cache"
	"github.com/caseguard/caseguard/internal/logging"
	"github.com/caseguard/caseguard/internal/models"
)

// Registry holds the deployed traps with in-memory indexes so Check stays
// O(1) on the event hot path. All mutations write through to the store.
type Registry struct {
	mu     sync.RWMutex
	store  *BadgerStore
	byID   map[string]*Trap
	byPath map[string]*Trap
	byTok  map[string]*Trap

	routeBase       string
	minTrapsPerCase int

	// probes tracks per-case trigger rates over the last hour, and
	// recentActors the distinct fingerprints behind them.
	probes       *cache.SlidingWindowStore
	recentActors *cache.UniqueValueStore
}

// RegistryConfig configures trap minting and effectiveness reporting.
type RegistryConfig struct {
	// RouteBase is the path prefix hidden routes are minted under.
	RouteBase string

	// MinTrapsPerCase drives coverage recommendations.
	MinTrapsPerCase int
}

// NewRegistry loads existing traps from the store and builds the indexes.
func NewRegistry(store *BadgerStore, cfg RegistryConfig) (*Registry, error) {
	if cfg.RouteBase == "" {
		cfg.RouteBase = "/cases/internal"
	}
	if cfg.MinTrapsPerCase <= 0 {
		cfg.MinTrapsPerCase = 2
	}

	r := &Registry{
		store:           store,
		byID:            make(map[string]*Trap),
		byPath:          make(map[string]*Trap),
		byTok:           make(map[string]*Trap),
		routeBase:       strings.TrimSuffix(cfg.RouteBase, "/"),
		minTrapsPerCase: cfg.MinTrapsPerCase,
		probes:          cache.NewSlidingWindowStore(time.Hour, 12, 10000),
		recentActors:    cache.NewUniqueValueStore(time.Hour, 12, 10000),
	}

	traps, err := store.ListTraps("")
	if err != nil {
		return nil, fmt.Errorf("loading traps: %w", err)
	}
	for i := range traps {
		r.index(&traps[i])
	}
	logging.Info().Int("traps", len(traps)).Msg("Honeytrap registry loaded")
	return r, nil
}

// index inserts a trap into the lookup maps. Caller holds the lock or is
// still single-threaded during construction.
func (r *Registry) index(trap *Trap) {
	r.byID[trap.ID] = trap
	if trap.Path != "" {
		r.byPath[trap.Path] = trap
	}
	if trap.Token != "" {
		r.byTok[trap.Token] = trap
	}
}

// DeployRequest describes a trap to mint.
type DeployRequest struct {
	CaseID      string   `json:"case_id" validate:"required"`
	Type        TrapType `json:"type" validate:"required"`
	Description string   `json:"description,omitempty"`

	// Kind is required for behavioral tripwires.
	Kind models.EventKind `json:"kind,omitempty"`
}

// Deploy mints and persists a new trap. Hidden routes and decoy documents
// get a generated unguessable path; canary tokens get a generated token;
// tripwires get both a path and the interaction kind they arm against.
func (r *Registry) Deploy(req DeployRequest) (*Trap, error) {
	if !ValidTrapTypes[req.Type] {
		return nil, fmt.Errorf("unknown trap type %q", req.Type)
	}
	if req.CaseID == "" {
		return nil, fmt.Errorf("case_id is required")
	}

	trap := &Trap{
		ID:          uuid.NewString(),
		CaseID:      req.CaseID,
		Type:        req.Type,
		Description: req.Description,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}

	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	switch req.Type {
	case TrapHiddenRoute:
		trap.Path = fmt.Sprintf("%s/%s/%s", r.routeBase, req.CaseID, nonce[:16])
	case TrapDecoyDocument:
		trap.Path = fmt.Sprintf("%s/%s/evidence-%s.pdf", r.routeBase, req.CaseID, nonce[:12])
	case TrapCanaryToken:
		trap.Token = "ct-" + nonce[:20]
	case TrapBehavioralTripwire:
		if req.Kind == "" {
			return nil, fmt.Errorf("kind is required for behavioral tripwires")
		}
		trap.Path = fmt.Sprintf("%s/%s/field-%s", r.routeBase, req.CaseID, nonce[:12])
		trap.Kind = req.Kind
	}

	if err := r.store.SaveTrap(trap); err != nil {
		return nil, fmt.Errorf("persisting trap: %w", err)
	}

	r.mu.Lock()
	r.index(trap)
	r.mu.Unlock()

	logging.Info().
		Str("trap_id", trap.ID).
		Str("case_id", trap.CaseID).
		Str("type", string(trap.Type)).
		Msg("Honeytrap deployed")
	return trap, nil
}

// Check tests an event against the deployed traps. A hit records the
// trigger, bumps the trap counters and returns the trap. Misses return
// (nil, nil).
func (r *Registry) Check(event *models.Event) (*Trap, error) {
	r.mu.RLock()
	trap := r.match(event)
	r.mu.RUnlock()
	if trap == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	trigger := &Trigger{
		ID:          uuid.NewString(),
		TrapID:      trap.ID,
		CaseID:      trap.CaseID,
		EventID:     event.ID,
		Fingerprint: event.Fingerprint,
		IPAddress:   event.IPAddress,
		Path:        event.Path,
		At:          now,
	}
	if err := r.store.SaveTrigger(trigger); err != nil {
		return nil, fmt.Errorf("recording trigger: %w", err)
	}

	r.mu.Lock()
	trap.TriggerCount++
	trap.LastTriggeredAt = &now
	snapshot := *trap
	r.mu.Unlock()
	r.probes.Increment(trap.CaseID)
	r.recentActors.Add(trap.CaseID, event.Fingerprint)

	if err := r.store.SaveTrap(&snapshot); err != nil {
		logging.Warn().Err(err).Str("trap_id", trap.ID).Msg("Failed to persist trap counters")
	}

	logging.Warn().
		Str("trap_id", trap.ID).
		Str("case_id", trap.CaseID).
		Str("type", string(trap.Type)).
		Str("fingerprint", event.Fingerprint).
		Str("ip", event.IPAddress).
		Msg("Honeytrap triggered")
	return &snapshot, nil
}

// match resolves an event to an active trap. Caller holds the read lock.
func (r *Registry) match(event *models.Event) *Trap {
	if trap, ok := r.byPath[event.Path]; ok && trap.Active {
		// Tripwires only arm against their configured interaction kind.
		if trap.Type != TrapBehavioralTripwire || trap.Kind == event.Kind {
			return trap
		}
	}
	if token := event.PayloadString("canary_token"); token != "" {
		if trap, ok := r.byTok[token]; ok && trap.Active {
			return trap
		}
	}
	// Canary tokens also surface inside copied or searched text.
	if text := event.PayloadString("text"); text != "" {
		for token, trap := range r.byTok {
			if trap.Active && strings.Contains(text, token) {
				return trap
			}
		}
	}
	return nil
}

// Get returns a deployed trap by ID.
func (r *Registry) Get(id string) (*Trap, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	trap, ok := r.byID[id]
	if !ok {
		return nil, ErrTrapNotFound
	}
	snapshot := *trap
	return &snapshot, nil
}

// List returns traps, optionally filtered to one case, newest first.
func (r *Registry) List(caseID string) []Trap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	traps := make([]Trap, 0, len(r.byID))
	for _, trap := range r.byID {
		if caseID == "" || trap.CaseID == caseID {
			traps = append(traps, *trap)
		}
	}
	sort.Slice(traps, func(i, j int) bool {
		return traps[i].CreatedAt.After(traps[j].CreatedAt)
	})
	return traps
}

// Deactivate disarms a trap without deleting its history.
func (r *Registry) Deactivate(id string) error {
	r.mu.Lock()
	trap, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return ErrTrapNotFound
	}
	trap.Active = false
	snapshot := *trap
	r.mu.Unlock()

	return r.store.SaveTrap(&snapshot)
}

// Remove deletes a trap and unindexes it. Its triggers remain stored.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	trap, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return ErrTrapNotFound
	}
	delete(r.byID, id)
	if trap.Path != "" {
		delete(r.byPath, trap.Path)
	}
	if trap.Token != "" {
		delete(r.byTok, trap.Token)
	}
	r.mu.Unlock()

	return r.store.DeleteTrap(id)
}

// Effectiveness builds the per-case trap performance report.
func (r *Registry) Effectiveness(caseID string) (*EffectivenessReport, error) {
	traps := r.List(caseID)
	now := time.Now().UTC()

	report := &EffectivenessReport{
		CaseID:      caseID,
		TrapCount:   len(traps),
		ByType:      make(map[TrapType]int),
		GeneratedAt: now,
	}

	actors := make(map[string]bool)
	var weighted float64
	var oldest time.Time
	for _, trap := range traps {
		report.ByType[trap.Type]++
		if trap.Active {
			report.ActiveTraps++
		}
		report.TriggerCount += trap.TriggerCount
		weighted += float64(trap.TriggerCount) * typeWeights[trap.Type]
		if oldest.IsZero() || trap.CreatedAt.Before(oldest) {
			oldest = trap.CreatedAt
		}

		age := now.Sub(trap.CreatedAt).Hours()
		if age < 1 {
			age = 1
		}
		report.Traps = append(report.Traps, TrapPerformance{
			TrapID:       trap.ID,
			Type:         trap.Type,
			Path:         trap.Path,
			Active:       trap.Active,
			TriggerCount: trap.TriggerCount,
			AgeHours:     age,
			RatePerHour:  float64(trap.TriggerCount) / age,
		})

		triggers, err := r.store.ListTriggers(trap.ID)
		if err != nil {
			return nil, fmt.Errorf("listing triggers for %s: %w", trap.ID, err)
		}
		for _, trigger := range triggers {
			actors[trigger.Fingerprint] = true
		}
	}
	report.UniqueActors = len(actors)
	report.RecentTriggers = r.probes.Count(caseID)
	report.RecentActors = r.recentActors.CountUnique(caseID)

	sort.Slice(report.Traps, func(i, j int) bool {
		if report.Traps[i].RatePerHour != report.Traps[j].RatePerHour {
			return report.Traps[i].RatePerHour > report.Traps[j].RatePerHour
		}
		return report.Traps[i].TriggerCount > report.Traps[j].TriggerCount
	})

	if !oldest.IsZero() {
		hours := now.Sub(oldest).Hours()
		if hours < 1 {
			hours = 1
		}
		report.TriggersPerHr = float64(report.TriggerCount) / hours
		// Normalize weighted triggers against exposure; saturates at 100.
		report.Score = weighted / hours * 10
		if report.Score > 100 {
			report.Score = 100
		}
	}

	if report.TrapCount < r.minTrapsPerCase {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("deploy at least %d traps for this case", r.minTrapsPerCase))
	}
	if report.ByType[TrapCanaryToken] == 0 {
		report.Recommendations = append(report.Recommendations,
			"add a canary token to detect scraping and content exfiltration")
	}
	if report.ActiveTraps == 0 && report.TrapCount > 0 {
		report.Recommendations = append(report.Recommendations,
			"all traps are disarmed; reactivate or redeploy")
	}

	return report, nil
}
