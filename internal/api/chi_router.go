// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/galdcup/internal/auth"
	"github.com/tomtom215/galdcup/internal/authz"
	"github.com/tomtom215/galdcup/internal/middleware"
	ws "github.com/tomtom215/galdcup/internal/websocket"
)

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	authn         *auth.Middleware
	authz         *authz.Middleware
}

// NewRouter creates a new router.
func NewRouter(handler *Handler, chiMW *ChiMiddleware, authMW *auth.Middleware, authzMW *authz.Middleware) *Router {
	return &Router{
		handler:       handler,
		chiMiddleware: chiMW,
		authn:         authMW,
		authz:         authzMW,
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()
	h := router.handler

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // CORS must be global to handle OPTIONS preflight
	r.Use(requestTiming)
	r.Use(middleware.PrometheusMetrics)

	// ========================
	// Probes and live feed
	// ========================
	r.With(router.chiMiddleware.RateLimitHealth()).Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	if h.deps.Hub != nil {
		var origins []string
		if h.config != nil {
			origins = h.config.Security.CORSOrigins
		}
		r.With(router.chiMiddleware.RateLimitWebSocket()).Get("/ws", ws.Handler(h.deps.Hub, origins))
	}

	r.With(router.chiMiddleware.RateLimitLogin(), APISecurityHeaders()).Post("/api/v1/auth/login", h.Login)

	// ========================
	// Authenticated API
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(router.authn.Authenticate)
		r.Use(router.authz.AuthorizeRequest)

		r.Post("/auth/tokens", h.IssueToken)

		r.Get("/surveys/active", h.ActiveSurvey)
		r.Get("/surveys/active/status", h.SurveyStatus)
		r.Get("/archive", h.ArchiveList)
		r.Get("/archive/{surveyID}", h.ArchiveGet)

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitVotes())
			r.Post("/votes", h.SubmitVote)
			r.Post("/votes/opinion", h.SubmitOpinion)
		})

		r.Route("/suggestions", func(r chi.Router) {
			r.Get("/", h.ListSuggestions)
			r.Post("/", h.CreateSuggestion)
			r.Get("/{id}", h.GetSuggestion)
			r.Put("/{id}", h.UpdateSuggestion)
			r.Delete("/{id}", h.RejectSuggestion)
			r.Post("/{id}/promote", h.PromoteSuggestion)
			r.Post("/{id}/evaluate", h.EvaluateSuggestion)
			r.Post("/{id}/refine", h.RefineSuggestion)
			r.Post("/{id}/force", h.ForceSuggestion)
		})

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", h.ListQueue)
			r.Post("/", h.Enqueue)
			r.Post("/swap", h.SwapQueue)
			r.Post("/charge", h.ChargeQueue)
			r.Get("/{id}", h.GetQueued)
			r.Put("/{id}", h.UpdateQueued)
			r.Delete("/{id}", h.DeleteQueued)
			r.Post("/{id}/return", h.ReturnQueued)
			r.Post("/{id}/up", h.MoveQueuedUp)
			r.Post("/{id}/down", h.MoveQueuedDown)
		})

		r.Post("/rotation/force", h.ForceRotation)

		r.Get("/destinations", h.ListDestinations)
		r.Put("/destinations/{tenantID}", h.PutDestination)
		r.Delete("/destinations/{tenantID}", h.DeleteDestination)

		r.Get("/admins", h.ListAdmins)
		r.Post("/admins", h.AddAdmin)
		r.Delete("/admins/{userID}", h.RemoveAdmin)

		r.Get("/audit", h.ListAudit)
	})

	return r
}
