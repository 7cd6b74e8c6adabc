// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/caseguard/caseguard/internal/alerting"
	"github.com/caseguard/caseguard/internal/detection"
	"github.com/caseguard/caseguard/internal/distribution"
	"github.com/caseguard/caseguard/internal/history"
	"github.com/caseguard/caseguard/internal/honeytrap"
	"github.com/caseguard/caseguard/internal/logging"
	"github.com/caseguard/caseguard/internal/models"
)

func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// fakeStore is an in-memory history.Store for handler tests.
type fakeStore struct {
	mu        sync.Mutex
	events    []models.Event
	records   []models.ActivityRecord
	suspicion map[string]*models.SuspicionScore
}

func newFakeStore() *fakeStore {
	return &fakeStore{suspicion: make(map[string]*models.SuspicionScore)}
}

func (f *fakeStore) SaveEvent(_ context.Context, event *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeStore) EventsForWindow(_ context.Context, fingerprint, caseID string, since time.Time, limit int) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Event
	for _, e := range f.events {
		if e.Fingerprint == fingerprint && e.CaseID == caseID && e.Timestamp.After(since) {
			out = append(out, e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) EventsForFingerprint(_ context.Context, fingerprint string, since time.Time, limit int) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Event
	for _, e := range f.events {
		if e.Fingerprint == fingerprint && e.Timestamp.After(since) {
			out = append(out, e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ActiveFingerprintsForCase(_ context.Context, caseID string, since time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, e := range f.events {
		if e.CaseID == caseID && e.Timestamp.After(since) && !seen[e.Fingerprint] {
			seen[e.Fingerprint] = true
			out = append(out, e.Fingerprint)
		}
	}
	return out, nil
}

func (f *fakeStore) FirstSeen(_ context.Context, fingerprint string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.Fingerprint == fingerprint {
			return e.Timestamp, true, nil
		}
	}
	return time.Time{}, false, nil
}

func (f *fakeStore) SaveActivityRecord(_ context.Context, record *models.ActivityRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeStore) ListActivityRecords(_ context.Context, filter history.ActivityFilter) ([]models.ActivityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ActivityRecord
	for _, r := range f.records {
		if filter.Fingerprint != "" && r.Fingerprint != filter.Fingerprint {
			continue
		}
		if filter.CaseID != "" && r.CaseID != filter.CaseID {
			continue
		}
		if filter.Classification != "" && r.Classification != filter.Classification {
			continue
		}
		if r.Severity < filter.MinSeverity {
			continue
		}
		out = append(out, r)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) GetSuspicion(_ context.Context, fingerprint string) (*models.SuspicionScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	score, ok := f.suspicion[fingerprint]
	if !ok {
		return nil, nil
	}
	copied := *score
	return &copied, nil
}

func (f *fakeStore) RecordViolation(_ context.Context, fingerprint string, points int) (*models.SuspicionScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	score, ok := f.suspicion[fingerprint]
	if !ok {
		score = &models.SuspicionScore{Fingerprint: fingerprint}
		f.suspicion[fingerprint] = score
	}
	score.Score += points
	if score.Score > 100 {
		score.Score = 100
	}
	score.ViolationsCount++
	score.UpdatedAt = time.Now()
	copied := *score
	return &copied, nil
}

func (f *fakeStore) ListSuspicion(_ context.Context, limit int) ([]models.SuspicionScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SuspicionScore
	for _, score := range f.suspicion {
		out = append(out, *score)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) DecaySuspicion(_ context.Context, _ int) (int64, error) { return 0, nil }

func openBadger(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testEnv wires a full in-process stack behind the router.
type testEnv struct {
	router http.Handler
	store  *fakeStore
	engine *detection.Engine
	alerts *alerting.Manager
	traps  *honeytrap.Registry
	bus    *distribution.Bus
	hub    *distribution.Hub
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newFakeStore()
	windows := history.NewService(store, history.ServiceConfig{})

	traps, err := honeytrap.NewRegistry(honeytrap.NewBadgerStore(openBadger(t)), honeytrap.RegistryConfig{})
	if err != nil {
		t.Fatal(err)
	}

	alerts := alerting.NewManager(alerting.NewBadgerStore(openBadger(t)), nil, alerting.DefaultManagerConfig())

	bus := distribution.NewBus()
	t.Cleanup(func() { bus.Close() })
	hub := distribution.NewHub(0)

	engine := detection.NewEngine(windows, store, nil, alerts, nil, detection.EngineConfig{})
	engine.RegisterDetector(detection.NewCriminalDetector())
	engine.RegisterDetector(detection.NewBehavioralDetector())
	engine.RegisterDetector(detection.NewTemporalDetector())
	engine.RegisterDetector(detection.NewSessionDetector())
	engine.RegisterDetector(detection.NewHoneytrapDetector(traps))

	handler := NewHandler(HandlerDeps{
		Engine:  engine,
		Alerts:  alerts,
		Traps:   traps,
		Store:   store,
		Windows: windows,
		Bus:     bus,
		Hub:     hub,
	})

	cfg := DefaultMiddlewareConfig()
	cfg.RateLimitDisabled = true

	return &testEnv{
		router: NewRouter(handler, NewMiddleware(cfg)).Setup(),
		store:  store,
		engine: engine,
		alerts: alerts,
		traps:  traps,
		bus:    bus,
		hub:    hub,
	}
}

// doJSON issues a request with an optional JSON body and decodes the
// response envelope.
func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, *Response) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var envelope Response
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("response is not an envelope: %v (body %q)", err, w.Body.String())
	}
	return w, &envelope
}

// doRaw issues a request with a raw body and returns the recorder only.
func doRaw(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// dataMap re-decodes the envelope data as a map for field assertions.
func dataMap(t *testing.T, envelope *Response) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(envelope.Data)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("envelope data is not an object: %v", err)
	}
	return out
}

func validEvent() *models.Event {
	return &models.Event{
		ID:          "evt-api-1",
		Fingerprint: "fp-aaaa1111",
		CaseID:      "case-1",
		IPAddress:   "203.0.113.10",
		Path:        "/cases/case-1",
		Kind:        models.EventPageView,
		Timestamp:   time.Now().UTC(),
	}
}
