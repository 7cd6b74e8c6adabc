// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/caseguard/caseguard/internal/honeytrap"
	"github.com/caseguard/caseguard/internal/validation"
)

func (h *Handler) requireTraps(w http.ResponseWriter) bool {
	if h.traps == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Honeytrap registry not available", nil)
		return false
	}
	return true
}

// DeployTrap mints a new deception artifact for a case.
//
// Method: POST
// Path: /api/v1/honeytraps
func (h *Handler) DeployTrap(w http.ResponseWriter, r *http.Request) {
	if !h.requireTraps(w) {
		return
	}

	start := time.Now()

	var req honeytrap.DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "MALFORMED_BODY", "Request body is not a valid deploy request", err)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, verr.Fields())
		return
	}

	trap, err := h.traps.Deploy(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "DEPLOY_FAILED", err.Error(), nil)
		return
	}

	respondSuccess(w, http.StatusCreated, trap, start)
}

// ListTraps returns deployed traps, optionally filtered by case.
//
// Method: GET
// Path: /api/v1/honeytraps?case_id=...
func (h *Handler) ListTraps(w http.ResponseWriter, r *http.Request) {
	if !h.requireTraps(w) {
		return
	}

	start := time.Now()
	traps := h.traps.List(r.URL.Query().Get("case_id"))

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"honeytraps": traps,
		"count":      len(traps),
	}, start)
}

// GetTrap returns one trap by ID.
//
// Method: GET
// Path: /api/v1/honeytraps/{id}
func (h *Handler) GetTrap(w http.ResponseWriter, r *http.Request) {
	if !h.requireTraps(w) {
		return
	}

	start := time.Now()
	trap, err := h.traps.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, honeytrap.ErrTrapNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Honeytrap not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to load honeytrap", err)
		return
	}

	respondSuccess(w, http.StatusOK, trap, start)
}

// DeactivateTrap disarms a trap without deleting its history.
//
// Method: POST
// Path: /api/v1/honeytraps/{id}/deactivate
func (h *Handler) DeactivateTrap(w http.ResponseWriter, r *http.Request) {
	h.trapAction(w, r, h.traps.Deactivate)
}

// RemoveTrap deletes a trap entirely.
//
// Method: DELETE
// Path: /api/v1/honeytraps/{id}
func (h *Handler) RemoveTrap(w http.ResponseWriter, r *http.Request) {
	h.trapAction(w, r, h.traps.Remove)
}

func (h *Handler) trapAction(w http.ResponseWriter, r *http.Request, action func(id string) error) {
	if !h.requireTraps(w) {
		return
	}

	start := time.Now()
	id := chi.URLParam(r, "id")

	if err := action(id); err != nil {
		if errors.Is(err, honeytrap.ErrTrapNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Honeytrap not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Honeytrap operation failed", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]string{"id": id}, start)
}

// TrapEffectiveness reports per-case trap coverage and trigger yield.
//
// Method: GET
// Path: /api/v1/honeytraps/effectiveness?case_id=...
func (h *Handler) TrapEffectiveness(w http.ResponseWriter, r *http.Request) {
	if !h.requireTraps(w) {
		return
	}

	start := time.Now()
	caseID := r.URL.Query().Get("case_id")
	if caseID == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMETER", "case_id is required", nil)
		return
	}

	report, err := h.traps.Effectiveness(caseID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to build effectiveness report", err)
		return
	}

	respondSuccess(w, http.StatusOK, report, start)
}
