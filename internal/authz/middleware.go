// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package authz

import (
	"net/http"

	"github.com/tomtom215/galdcup/internal/auth"
	"github.com/tomtom215/galdcup/internal/logging"
)

// Middleware provides authorization middleware using Casbin.
type Middleware struct {
	enforcer *Enforcer
}

// NewMiddleware creates a new authorization middleware.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{
		enforcer: enforcer,
	}
}

// AuthorizeRequest determines the action from the HTTP method and
// authorizes the request path. It must run after auth.Middleware.
func (m *Middleware) AuthorizeRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			http.Error(w, "Forbidden: no authentication context", http.StatusForbidden)
			return
		}

		allowed, err := m.enforcer.EnforceWithRoles(claims.UserID, tokenRoles(claims), r.URL.Path, methodToAction(r.Method))
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization error")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if !allowed {
			http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// tokenRoles returns the roles a token may assert by itself. Admin rights
// come only from grouping policies.
func tokenRoles(claims *auth.Claims) []string {
	switch claims.Role {
	case auth.RoleMaster, auth.RoleBridge, auth.RoleViewer:
		return []string{claims.Role}
	default:
		return nil
	}
}

// methodToAction maps HTTP methods to Casbin actions.
func methodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "read"
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return "write"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
