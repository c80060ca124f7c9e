// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/galdcup/internal/config"
)

type contextKey string

const startTimeKey contextKey = "start_time"

// ChiMiddlewareConfig holds configuration for Chi middleware factories.
type ChiMiddlewareConfig struct {
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	CORSMaxAge         int // seconds

	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
}

// DefaultChiMiddlewareConfig returns a secure default configuration.
// CORS origins default to empty, requiring explicit configuration.
func DefaultChiMiddlewareConfig() *ChiMiddlewareConfig {
	return &ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{},
		CORSAllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		CORSMaxAge:         86400,

		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
	}
}

// ChiMiddlewareConfigFromSecurity bridges the security section of the
// configuration to the middleware factories.
func ChiMiddlewareConfigFromSecurity(sec config.SecurityConfig) *ChiMiddlewareConfig {
	cfg := DefaultChiMiddlewareConfig()
	cfg.CORSAllowedOrigins = sec.CORSOrigins
	if sec.RateLimitReqs > 0 {
		cfg.RateLimitRequests = sec.RateLimitReqs
	}
	if sec.RateLimitWindow > 0 {
		cfg.RateLimitWindow = sec.RateLimitWindow
	}
	cfg.RateLimitDisabled = sec.RateLimitDisabled
	return cfg
}

// ChiMiddleware provides Chi-compatible middleware factories.
type ChiMiddleware struct {
	config *ChiMiddlewareConfig
	cors   func(http.Handler) http.Handler
}

// NewChiMiddleware creates a new Chi middleware factory with the given configuration.
func NewChiMiddleware(config *ChiMiddlewareConfig) *ChiMiddleware {
	if config == nil {
		config = DefaultChiMiddlewareConfig()
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   config.CORSAllowedOrigins,
		AllowedMethods:   config.CORSAllowedMethods,
		AllowedHeaders:   config.CORSAllowedHeaders,
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           config.CORSMaxAge,
	})

	return &ChiMiddleware{
		config: config,
		cors:   corsHandler,
	}
}

// CORS returns the go-chi/cors middleware.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns the default per-IP limiter for API routes.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitConfig{Requests: m.config.RateLimitRequests, Window: m.config.RateLimitWindow})
}

// RateLimitConfig defines rate limit parameters for specific endpoints.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Endpoint-specific rate limits.
var (
	// RateLimitLogin is very strict for login attempts
	RateLimitLogin = RateLimitConfig{Requests: 5, Window: 5 * time.Minute}

	// RateLimitHealth allows frequent probes from monitoring tools.
	RateLimitHealth = RateLimitConfig{Requests: 1000, Window: time.Minute}

	// RateLimitWebSocket limits connection upgrades.
	RateLimitWebSocket = RateLimitConfig{Requests: 30, Window: time.Minute}

	// RateLimitVotes allows vote bursts relayed by the chat bridge.
	RateLimitVotes = RateLimitConfig{Requests: 600, Window: time.Minute}
)

// RateLimitCustom returns a rate limiter with custom configuration.
func (m *ChiMiddleware) RateLimitCustom(config RateLimitConfig) func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "rate limit exceeded", nil)
		}),
	)
}

// RateLimitLogin returns a very strict rate limiter for login endpoints.
func (m *ChiMiddleware) RateLimitLogin() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitLogin)
}

// RateLimitHealth returns a rate limiter for health endpoints.
func (m *ChiMiddleware) RateLimitHealth() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitHealth)
}

// RateLimitWebSocket returns a rate limiter for websocket upgrades.
func (m *ChiMiddleware) RateLimitWebSocket() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitWebSocket)
}

// RateLimitVotes returns the limiter for the vote relay.
func (m *ChiMiddleware) RateLimitVotes() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitVotes)
}

// APISecurityHeaders adds security headers to API responses.
//
// Headers added:
//   - X-Content-Type-Options: nosniff
//   - X-Frame-Options: DENY
//   - Referrer-Policy: strict-origin-when-cross-origin
//   - Strict-Transport-Security when the request arrived over TLS
func APISecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestTiming stores the start time used for the query_time_ms metadata.
func requestTiming(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), startTimeKey, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
