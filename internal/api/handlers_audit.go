// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package api

import (
	"net/http"
	"strings"

	"github.com/tomtom215/galdcup/internal/audit"
	"github.com/tomtom215/galdcup/internal/auth"
)

// record writes an audit event for the caller of r.
func (h *Handler) record(r *http.Request, typ audit.EventType, outcome audit.Outcome, target *audit.Target, action, description string, metadata interface{}) {
	if h.deps.Audit == nil {
		return
	}
	actor := audit.Actor{}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		actor = audit.Actor{ID: claims.UserID, Role: claims.Role}
	}
	h.deps.Audit.LogAction(r, actor, typ, outcome, target, action, description, metadata)
}

func outcomeOf(err error) audit.Outcome {
	if err != nil {
		return audit.OutcomeFailure
	}
	return audit.OutcomeSuccess
}

// ListAudit returns recorded operator actions, newest first.
// Query: limit, offset, type (comma separated), actor_id, target_id.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.deps.Audit == nil {
		respondData(w, r, http.StatusOK, []audit.Event{})
		return
	}
	limit, err := getIntParam(r, "limit", 100)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	offset, err := getIntParam(r, "offset", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}

	filter := audit.QueryFilter{
		Limit:    limit,
		Offset:   offset,
		ActorID:  r.URL.Query().Get("actor_id"),
		TargetID: r.URL.Query().Get("target_id"),
	}
	if types := r.URL.Query().Get("type"); types != "" {
		for _, t := range strings.Split(types, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Types = append(filter.Types, audit.EventType(t))
			}
		}
	}

	events, err := h.deps.Audit.Query(r.Context(), filter)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	respondData(w, r, http.StatusOK, events)
}
