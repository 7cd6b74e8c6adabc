// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package api

import (
	"time"

	"github.com/caseguard/caseguard/internal/alerting"
	"github.com/caseguard/caseguard/internal/detection"
	"github.com/caseguard/caseguard/internal/distribution"
	"github.com/caseguard/caseguard/internal/history"
	"github.com/caseguard/caseguard/internal/honeytrap"
)

// Handler holds the services the HTTP surface exposes. Any field may be
// nil in partial deployments; handlers answer 503 for missing services.
type Handler struct {
	engine  *detection.Engine
	alerts  *alerting.Manager
	traps   *honeytrap.Registry
	store   history.Store
	windows *history.Service
	bus     *distribution.Bus
	hub     *distribution.Hub

	startedAt time.Time
}

// HandlerDeps bundles the services for NewHandler.
type HandlerDeps struct {
	Engine  *detection.Engine
	Alerts  *alerting.Manager
	Traps   *honeytrap.Registry
	Store   history.Store
	Windows *history.Service
	Bus     *distribution.Bus
	Hub     *distribution.Hub
}

// NewHandler creates the handler set.
func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		engine:    deps.Engine,
		alerts:    deps.Alerts,
		traps:     deps.Traps,
		store:     deps.Store,
		windows:   deps.Windows,
		bus:       deps.Bus,
		hub:       deps.Hub,
		startedAt: time.Now(),
	}
}
