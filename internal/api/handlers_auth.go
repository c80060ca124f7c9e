// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/galdcup/internal/audit"
	"github.com/tomtom215/galdcup/internal/auth"
	"github.com/tomtom215/galdcup/internal/logging"
)

// LoginRequest is the operator login body.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

// TokenRequest asks for a service or viewer token.
type TokenRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
	Role   string `json:"role" validate:"required,oneof=bridge viewer"`
}

// TokenResponse carries a signed token.
type TokenResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login exchanges the operator credentials for a master token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if verr := validateRequest(&req); verr != nil {
		respondServiceError(w, r, verr)
		return
	}

	if h.deps.Password == nil {
		respondServiceError(w, r, auth.ErrLoginDisabled)
		return
	}
	if err := h.deps.Password.Verify(req.Username, req.Password); err != nil {
		logging.Ctx(r.Context()).Warn().Str("username", sanitizeLogValue(req.Username)).Msg("Login failed")
		h.deps.Audit.LogAction(r, audit.Actor{ID: req.Username}, audit.EventTypeAuthFailure, audit.OutcomeFailure,
			nil, "login", "Operator login failed", nil)
		respondServiceError(w, r, err)
		return
	}

	h.deps.Audit.LogAction(r, audit.Actor{ID: req.Username, Role: auth.RoleMaster}, audit.EventTypeAuthSuccess,
		audit.OutcomeSuccess, nil, "login", "Operator logged in", nil)
	h.issueToken(w, r, req.Username, auth.RoleMaster, http.StatusOK)
}

// IssueToken mints a bridge or viewer token. Administrators are not minted
// here: admin rights come from the stored administrator list.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if verr := validateRequest(&req); verr != nil {
		respondServiceError(w, r, verr)
		return
	}
	h.record(r, audit.EventTypeTokenIssued, audit.OutcomeSuccess, &audit.Target{ID: req.UserID, Type: "user"},
		"issue", "Token issued", map[string]string{"role": req.Role})
	h.issueToken(w, r, req.UserID, req.Role, http.StatusCreated)
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request, userID, role string, status int) {
	token, expires, err := h.deps.JWT.GenerateToken(userID, role)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("user_id", sanitizeLogValue(userID)).Str("role", role).Msg("Token issued")
	respondData(w, r, status, TokenResponse{Token: token, Role: role, ExpiresAt: expires})
}
