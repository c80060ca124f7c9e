// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package auth issues and checks the bearer tokens of the operator API.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tomtom215/galdcup/internal/logging"
)

type contextKey string

// ClaimsContextKey holds the validated *Claims of a request.
const ClaimsContextKey contextKey = "claims"

// Middleware provides authentication middleware
type Middleware struct {
	jwtManager *JWTManager
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(jwtManager *JWTManager) *Middleware {
	return &Middleware{jwtManager: jwtManager}
}

// Authenticate rejects requests without a valid token and stores the
// claims in the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractToken(r)
		if err != nil {
			writeUnauthorized(w, err.Error())
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Msg("Token validation failed")
			writeUnauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

// ContextWithClaims returns ctx carrying claims.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

// ClaimsFromContext returns the claims stored by Authenticate.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok && claims != nil
}

// extractToken reads the bearer token from the Authorization header or the
// token cookie.
func extractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		cookie, err := r.Cookie("token")
		if err != nil {
			return "", fmt.Errorf("missing token")
		}
		return cookie.Value, nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("invalid authorization header")
	}
	return parts[1], nil
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="galdcup"`)
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"status":"error","error":{"code":"UNAUTHORIZED","message":%q}}`, "Unauthorized: "+message)
}
