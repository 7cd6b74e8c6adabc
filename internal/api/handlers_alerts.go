// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/caseguard/caseguard/internal/alerting"
)

func (h *Handler) requireAlerts(w http.ResponseWriter) bool {
	if h.alerts == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Alert manager not available", nil)
		return false
	}
	return true
}

// ListAlerts returns alerts matching the query filters.
//
// Method: GET
// Path: /api/v1/alerts
//
// Query parameters: status, type, fingerprint, case_id, since
// (RFC3339), limit (default 100, max 1000).
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if !h.requireAlerts(w) {
		return
	}

	start := time.Now()
	q := r.URL.Query()

	filter := alerting.ListFilter{
		Status:      alerting.Status(q.Get("status")),
		Type:        alerting.AlertType(q.Get("type")),
		Fingerprint: q.Get("fingerprint"),
		CaseID:      q.Get("case_id"),
		Limit:       100,
	}

	if since := q.Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "since must be RFC3339", err)
			return
		}
		filter.Since = ts
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > 1000 {
			respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be between 1 and 1000", err)
			return
		}
		filter.Limit = n
	}

	alerts, err := h.alerts.List(filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to list alerts", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	}, start)
}

// GetAlert returns one alert by ID.
//
// Method: GET
// Path: /api/v1/alerts/{id}
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	if !h.requireAlerts(w) {
		return
	}

	start := time.Now()
	alert, err := h.alerts.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, alerting.ErrAlertNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Alert not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to load alert", err)
		return
	}

	respondSuccess(w, http.StatusOK, alert, start)
}

// lifecycleRequest carries the operator identity for acknowledge and
// resolve transitions.
type lifecycleRequest struct {
	By string `json:"by"`
}

// AcknowledgeAlert transitions an open alert to acknowledged.
//
// Method: POST
// Path: /api/v1/alerts/{id}/acknowledge
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	h.transitionAlert(w, r, h.alerts.Acknowledge)
}

// ResolveAlert transitions an alert to resolved.
//
// Method: POST
// Path: /api/v1/alerts/{id}/resolve
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	h.transitionAlert(w, r, h.alerts.Resolve)
}

func (h *Handler) transitionAlert(w http.ResponseWriter, r *http.Request, transition func(id, by string) (*alerting.Alert, error)) {
	if !h.requireAlerts(w) {
		return
	}

	start := time.Now()

	var req lifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "MALFORMED_BODY", "Request body is not valid", err)
		return
	}
	if req.By == "" {
		respondError(w, http.StatusBadRequest, "MISSING_FIELD", "Field 'by' is required", nil)
		return
	}

	alert, err := transition(chi.URLParam(r, "id"), req.By)
	if err != nil {
		if errors.Is(err, alerting.ErrAlertNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Alert not found", nil)
			return
		}
		respondError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
		return
	}

	respondSuccess(w, http.StatusOK, alert, start)
}
