// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/caseguard/caseguard/internal/models"
	"github.com/caseguard/caseguard/internal/validation"
)

// maxEventBody bounds intake payloads. Telemetry events are small;
// anything larger is hostile or broken.
const maxEventBody = 256 * 1024

// maxReplayBatch bounds replay request size.
const maxReplayBatch = 1000

// IngestEvent accepts one observed interaction, validates it, and puts
// it on the bus. Validation failure is the only surfaced error;
// everything downstream degrades toward "no signal" instead.
//
// Method: POST
// Path: /api/v1/events
//
// Response:
//   - 202: event accepted for processing
//   - 400: unreadable body
//   - 422: validation failure with per-field details
//   - 503: bus not available
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Event bus not available", nil)
		return
	}

	start := time.Now()

	var event models.Event
	r.Body = http.MaxBytesReader(w, r.Body, maxEventBody)
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondError(w, http.StatusBadRequest, "MALFORMED_BODY", "Request body is not a valid event", err)
		return
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if verr := validation.ValidateStruct(&event); verr != nil {
		respondValidationError(w, verr.Fields())
		return
	}

	if err := h.bus.PublishEvent(&event); err != nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Failed to enqueue event", err)
		return
	}

	respondSuccess(w, http.StatusAccepted, map[string]string{"event_id": event.ID}, start)
}

// replayRequest is the batch replay payload.
type replayRequest struct {
	Events []*models.Event `json:"events"`
}

// replayResponse pairs replay outcomes with the batch size.
type replayResponse struct {
	Processed int                  `json:"processed"`
	Outcomes  []*replayOutcomeItem `json:"outcomes"`
}

type replayOutcomeItem struct {
	EventID    string      `json:"event_id"`
	Outcome    interface{} `json:"outcome,omitempty"`
	Error      string      `json:"error,omitempty"`
	Validation interface{} `json:"validation,omitempty"`
}

// ReplayEvents runs a batch of historical events through the pipeline
// synchronously and returns the per-event outcomes. Invalid events are
// reported in place without aborting the batch.
//
// Method: POST
// Path: /api/v1/events/replay
func (h *Handler) ReplayEvents(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Detection engine not available", nil)
		return
	}

	start := time.Now()

	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "MALFORMED_BODY", "Request body is not a valid replay batch", err)
		return
	}
	if len(req.Events) == 0 {
		respondError(w, http.StatusBadRequest, "EMPTY_BATCH", "Replay batch contains no events", nil)
		return
	}
	if len(req.Events) > maxReplayBatch {
		respondError(w, http.StatusBadRequest, "BATCH_TOO_LARGE", "Replay batch exceeds the maximum size", nil)
		return
	}

	items := make([]*replayOutcomeItem, 0, len(req.Events))
	valid := make([]*models.Event, 0, len(req.Events))
	validIdx := make([]int, 0, len(req.Events))

	for i, event := range req.Events {
		if event.ID == "" {
			event.ID = uuid.New().String()
		}
		item := &replayOutcomeItem{EventID: event.ID}
		items = append(items, item)

		if verr := validation.ValidateStruct(event); verr != nil {
			item.Validation = verr.Fields()
			continue
		}
		valid = append(valid, event)
		validIdx = append(validIdx, i)
	}

	outcomes, err := h.engine.Replay(r.Context(), valid)
	if err != nil {
		// Replay reports the first per-event failure but still returns
		// all outcomes it produced.
		for _, item := range items {
			if item.Validation == nil && item.Outcome == nil {
				item.Error = err.Error()
			}
		}
	}
	for i, outcome := range outcomes {
		if outcome != nil {
			items[validIdx[i]].Outcome = outcome
			items[validIdx[i]].Error = ""
		}
	}

	respondSuccess(w, http.StatusOK, &replayResponse{
		Processed: len(valid),
		Outcomes:  items,
	}, start)
}
