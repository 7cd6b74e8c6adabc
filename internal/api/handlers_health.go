// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package api

import (
	"net/http"
	"time"
)

// healthStatus is the health payload.
type healthStatus struct {
	Status     string          `json:"status"`
	UptimeSecs int64           `json:"uptime_seconds"`
	Components map[string]bool `json:"components"`
}

// Health reports overall service health and component availability.
//
// Method: GET
// Path: /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	components := map[string]bool{
		"engine":     h.engine != nil,
		"alerts":     h.alerts != nil,
		"honeytraps": h.traps != nil,
		"store":      h.store != nil,
		"bus":        h.bus != nil,
		"hub":        h.hub != nil,
	}

	status := "ok"
	code := http.StatusOK
	for _, up := range components {
		if !up {
			status = "degraded"
			break
		}
	}

	respondSuccess(w, code, healthStatus{
		Status:     status,
		UptimeSecs: int64(time.Since(h.startedAt).Seconds()),
		Components: components,
	}, start)
}

// HealthLive is the liveness probe: the process answers, nothing more.
//
// Method: GET
// Path: /api/v1/health/live
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// HealthReady is the readiness probe: the pipeline can accept events.
//
// Method: GET
// Path: /api/v1/health/ready
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil || h.bus == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not_ready"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
