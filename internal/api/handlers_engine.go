// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/caseguard/caseguard/internal/detection"
)

func (h *Handler) requireEngine(w http.ResponseWriter) bool {
	if h.engine == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Detection engine not available", nil)
		return false
	}
	return true
}

// engineStatus is the status payload.
type engineStatus struct {
	Enabled     bool                  `json:"enabled"`
	Stats       detection.EngineStats `json:"stats"`
	QueueDepth  int                   `json:"alert_queue_depth,omitempty"`
	Subscribers int                   `json:"subscribers"`
	UptimeSecs  int64                 `json:"uptime_seconds"`
}

// EngineStatus reports whether the engine is processing, its running
// statistics, and the delivery surfaces' depth.
//
// Method: GET
// Path: /api/v1/engine/status
func (h *Handler) EngineStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}

	start := time.Now()
	status := engineStatus{
		Enabled:    h.engine.Enabled(),
		Stats:      h.engine.Stats(),
		UptimeSecs: int64(time.Since(h.startedAt).Seconds()),
	}
	if h.alerts != nil {
		status.QueueDepth = h.alerts.QueueDepth()
	}
	if h.hub != nil {
		status.Subscribers = h.hub.ClientCount()
	}

	respondSuccess(w, http.StatusOK, status, start)
}

// PauseEngine stops event scoring; intake still records history.
//
// Method: POST
// Path: /api/v1/engine/pause
func (h *Handler) PauseEngine(w http.ResponseWriter, r *http.Request) {
	h.setEngineEnabled(w, false)
}

// ResumeEngine restarts event scoring.
//
// Method: POST
// Path: /api/v1/engine/resume
func (h *Handler) ResumeEngine(w http.ResponseWriter, r *http.Request) {
	h.setEngineEnabled(w, true)
}

func (h *Handler) setEngineEnabled(w http.ResponseWriter, enabled bool) {
	if !h.requireEngine(w) {
		return
	}

	start := time.Now()
	h.engine.SetEnabled(enabled)
	respondSuccess(w, http.StatusOK, map[string]bool{"enabled": enabled}, start)
}

// detectorInfo describes one registered detector.
type detectorInfo struct {
	Type    detection.DetectorType `json:"type"`
	Enabled bool                   `json:"enabled"`
}

// ListDetectors returns the registered detectors and their state.
//
// Method: GET
// Path: /api/v1/engine/detectors
func (h *Handler) ListDetectors(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}

	start := time.Now()
	detectors := h.engine.ListDetectors()
	infos := make([]detectorInfo, 0, len(detectors))
	for _, d := range detectors {
		infos = append(infos, detectorInfo{Type: d.Type(), Enabled: d.Enabled()})
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"detectors": infos,
		"count":     len(infos),
	}, start)
}

// ConfigureDetector applies a JSON configuration blob to one detector
// at runtime.
//
// Method: POST
// Path: /api/v1/engine/detectors/{type}/configure
func (h *Handler) ConfigureDetector(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}

	start := time.Now()
	detectorType := detection.DetectorType(chi.URLParam(r, "type"))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "MALFORMED_BODY", "Failed to read configuration body", err)
		return
	}

	if err := h.engine.ConfigureDetector(detectorType, json.RawMessage(body)); err != nil {
		respondError(w, http.StatusBadRequest, "CONFIGURE_FAILED", err.Error(), nil)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]string{"type": string(detectorType)}, start)
}

// EnableDetector turns one detector on.
//
// Method: POST
// Path: /api/v1/engine/detectors/{type}/enable
func (h *Handler) EnableDetector(w http.ResponseWriter, r *http.Request) {
	h.setDetectorEnabled(w, r, true)
}

// DisableDetector turns one detector off; its dimension scores as
// untriggered until re-enabled.
//
// Method: POST
// Path: /api/v1/engine/detectors/{type}/disable
func (h *Handler) DisableDetector(w http.ResponseWriter, r *http.Request) {
	h.setDetectorEnabled(w, r, false)
}

func (h *Handler) setDetectorEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	if !h.requireEngine(w) {
		return
	}

	start := time.Now()
	detectorType := detection.DetectorType(chi.URLParam(r, "type"))

	if err := h.engine.SetDetectorEnabled(detectorType, enabled); err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"type":    string(detectorType),
		"enabled": enabled,
	}, start)
}
