// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/caseguard/caseguard/internal/distribution"
	"github.com/caseguard/caseguard/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocket upgrades the connection and registers it with the hub.
// Initial scope may be seeded through query parameters (admin=true,
// case_id, fingerprint); clients widen or narrow it afterwards with
// subscribe and unsubscribe messages.
//
// Method: GET
// Path: /ws
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Distribution hub not available", nil)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := distribution.NewClient(h.hub, conn)

	q := r.URL.Query()
	scope := distribution.Scope{
		Admin: q.Get("admin") == "true",
	}
	if caseID := q.Get("case_id"); caseID != "" {
		scope.Cases = append(scope.Cases, caseID)
	}
	if fp := q.Get("fingerprint"); fp != "" {
		scope.Fingerprints = append(scope.Fingerprints, fp)
	}
	client.Subscribe(scope)

	h.hub.Register <- client
	client.Start()
}
