// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires handlers and middleware into one http.Handler.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates the router.
func NewRouter(handler *Handler, middleware *Middleware) *Router {
	if middleware == nil {
		middleware = NewMiddleware(nil)
	}
	return &Router{handler: handler, middleware: middleware}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order. CORS is global
	// so OPTIONS preflight works everywhere.
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	// Probes get permissive rate limiting so monitors can poll often.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.middleware.RateLimitHealth())
		r.Use(SecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
		r.Get("/", router.handler.Health)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(SecurityHeaders())

		r.Route("/events", func(r chi.Router) {
			r.Post("/", router.handler.IngestEvent)
			r.Post("/replay", router.handler.ReplayEvents)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", router.handler.ListAlerts)
			r.Get("/{id}", router.handler.GetAlert)
			r.Post("/{id}/acknowledge", router.handler.AcknowledgeAlert)
			r.Post("/{id}/resolve", router.handler.ResolveAlert)
		})

		r.Route("/honeytraps", func(r chi.Router) {
			r.Post("/", router.handler.DeployTrap)
			r.Get("/", router.handler.ListTraps)
			r.Get("/effectiveness", router.handler.TrapEffectiveness)
			r.Get("/{id}", router.handler.GetTrap)
			r.Delete("/{id}", router.handler.RemoveTrap)
			r.Post("/{id}/deactivate", router.handler.DeactivateTrap)
		})

		r.Route("/engine", func(r chi.Router) {
			r.Get("/status", router.handler.EngineStatus)
			r.Post("/pause", router.handler.PauseEngine)
			r.Post("/resume", router.handler.ResumeEngine)
			r.Get("/detectors", router.handler.ListDetectors)
			r.Post("/detectors/{type}/configure", router.handler.ConfigureDetector)
			r.Post("/detectors/{type}/enable", router.handler.EnableDetector)
			r.Post("/detectors/{type}/disable", router.handler.DisableDetector)
		})

		r.Route("/activity", func(r chi.Router) {
			r.Get("/", router.handler.ListActivityRecords)
			r.Get("/suspicion", router.handler.ListSuspicion)
			r.Get("/suspicion/{fingerprint}", router.handler.GetSuspicion)
		})
	})

	r.Get("/ws", router.handler.WebSocket)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
