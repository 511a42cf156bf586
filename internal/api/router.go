// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

// Package api assembles the HTTP surface: the chi router, the middleware
// chain, and the health endpoints.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harmonia-fm/harmonia/internal/auth"
	"github.com/harmonia-fm/harmonia/internal/config"
	"github.com/harmonia-fm/harmonia/internal/middleware"
	"github.com/harmonia-fm/harmonia/internal/notify"
	"github.com/harmonia-fm/harmonia/internal/realtime"
	"github.com/harmonia-fm/harmonia/internal/signals"
)

// Router assembles the HTTP routes from the feature handlers.
type Router struct {
	cfg     config.ServerConfig
	authMW  *auth.Middleware
	authH   *auth.Handler
	signals *signals.Handler
	notify  *notify.Handler
	ws      *realtime.Handler
	health  *HealthHandler
}

// NewRouter creates the router. Handlers may be nil only in tests.
func NewRouter(
	cfg config.ServerConfig,
	authMW *auth.Middleware,
	authH *auth.Handler,
	signalsH *signals.Handler,
	notifyH *notify.Handler,
	wsH *realtime.Handler,
	healthH *HealthHandler,
) *Router {
	return &Router{
		cfg:     cfg,
		authMW:  authMW,
		authH:   authH,
		signals: signalsH,
		notify:  notifyH,
		ws:      wsH,
		health:  healthH,
	}
}

// Setup builds the full route tree.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware: order matters. Request ids come first so every
	// later log line carries one.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))

	// Health endpoints: permissive rate limit for monitoring probes, no
	// auth so they stay reachable in degraded mode.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/", rt.health.Health)
		r.Get("/live", rt.health.Live)
		r.Get("/ready", rt.health.Ready)
	})

	// Auth endpoints: tight rate limit, brute force prevention.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(httprate.LimitByIP(20, time.Minute))
		r.Post("/refresh", rt.authH.Refresh)
	})

	// Data endpoints.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(rt.cfg.RateLimitReqs, rt.cfg.RateLimitWindow))
		r.Use(middleware.PrometheusMetrics)

		// The notification list personalizes when an identity is present
		// and serves an empty page otherwise.
		r.Group(func(r chi.Router) {
			r.Use(rt.authMW.OptionalAuth)
			r.Get("/notifications", rt.notify.List)
		})

		r.Group(func(r chi.Router) {
			r.Use(rt.authMW.RequireAuth)
			r.Post("/recommendations/track", rt.signals.Track)
			r.Put("/notifications/{id}/read", rt.notify.MarkRead)
			r.Get("/ws", rt.ws.ServeWS)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
