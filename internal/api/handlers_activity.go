// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/caseguard/caseguard/internal/history"
	"github.com/caseguard/caseguard/internal/models"
)

func (h *Handler) requireStore(w http.ResponseWriter) bool {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Activity store not available", nil)
		return false
	}
	return true
}

// ListActivityRecords returns persisted suspicious-activity records
// matching the query filters.
//
// Method: GET
// Path: /api/v1/activity
//
// Query parameters: fingerprint, case_id, classification,
// min_severity, since (RFC3339), limit.
func (h *Handler) ListActivityRecords(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	start := time.Now()
	q := r.URL.Query()

	filter := history.ActivityFilter{
		Fingerprint:    q.Get("fingerprint"),
		CaseID:         q.Get("case_id"),
		Classification: models.ActivityClass(q.Get("classification")),
		Limit:          100,
	}

	if sev := q.Get("min_severity"); sev != "" {
		n, err := strconv.Atoi(sev)
		if err != nil || n < 0 || n > 5 {
			respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "min_severity must be between 0 and 5", err)
			return
		}
		filter.MinSeverity = n
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

	records, err := h.store.ListActivityRecords(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to list activity records", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	}, start)
}

// ListSuspicion returns the highest-scoring entries in the suspicion
// ledger.
//
// Method: GET
// Path: /api/v1/activity/suspicion
func (h *Handler) ListSuspicion(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	start := time.Now()
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be between 1 and 1000", err)
			return
		}
		limit = n
	}

	scores, err := h.store.ListSuspicion(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to list suspicion scores", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"scores": scores,
		"count":  len(scores),
	}, start)
}

// GetSuspicion returns one fingerprint's suspicion score.
//
// Method: GET
// Path: /api/v1/activity/suspicion/{fingerprint}
func (h *Handler) GetSuspicion(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	start := time.Now()
	score, err := h.store.GetSuspicion(r.Context(), chi.URLParam(r, "fingerprint"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to load suspicion score", err)
		return
	}
	if score == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No suspicion recorded for fingerprint", nil)
		return
	}

	respondSuccess(w, http.StatusOK, score, start)
}
