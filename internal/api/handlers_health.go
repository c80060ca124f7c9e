// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/galdcup/internal/store"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status           string  `json:"status"`
	StoreConnected   bool    `json:"store_connected"`
	ArchiveConnected bool    `json:"archive_connected"`
	ActiveSurveyID   int64   `json:"active_survey_id,omitempty"`
	WebSocketClients int     `json:"websocket_clients"`
	Uptime           float64 `json:"uptime_seconds"`
}

// Health reports store and archive connectivity. A degraded engine still
// answers 200 so the probe body can be inspected; a closed store is 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	storeOK := h.deps.Store.Ping(ctx) == nil
	archiveOK := h.deps.Archive != nil && h.deps.Archive.Ping(ctx) == nil

	health := HealthStatus{
		Status:           "healthy",
		StoreConnected:   storeOK,
		ArchiveConnected: archiveOK,
		Uptime:           time.Since(h.startTime).Seconds(),
	}
	if h.deps.Hub != nil {
		health.WebSocketClients = h.deps.Hub.GetClientCount()
	}
	if storeOK {
		survey, err := h.deps.Store.ActiveSurvey(ctx)
		switch {
		case err == nil:
			health.ActiveSurveyID = survey.ID
		case !errors.Is(err, store.ErrNotFound):
			health.Status = "degraded"
		}
	}
	if !archiveOK {
		health.Status = "degraded"
	}

	status := http.StatusOK
	if !storeOK {
		health.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	respondData(w, r, status, health)
}
