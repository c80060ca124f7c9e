// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/galdcup/internal/audit"
	"github.com/tomtom215/galdcup/internal/broadcast"
	"github.com/tomtom215/galdcup/internal/logging"
	"github.com/tomtom215/galdcup/internal/models"
	"github.com/tomtom215/galdcup/internal/rotation"
	"github.com/tomtom215/galdcup/internal/store"
)

// DeliverySummary condenses a broadcast report for API callers.
type DeliverySummary struct {
	Status    broadcast.Status `json:"status"`
	Total     int              `json:"total"`
	Delivered int              `json:"delivered"`
	Failed    int              `json:"failed"`
	Disabled  []string         `json:"disabled,omitempty"`
}

// RotationResponse describes a finished rotation.
type RotationResponse struct {
	SurveyID     int64             `json:"survey_id"`
	PreviousID   int64             `json:"previous_id,omitempty"`
	Provenance   models.Provenance `json:"provenance"`
	Shared       bool              `json:"shared,omitempty"`
	Results      *DeliverySummary  `json:"results,omitempty"`
	Announcement *DeliverySummary  `json:"announcement,omitempty"`
}

// DestinationRequest registers a broadcast channel for a tenant.
type DestinationRequest struct {
	ChannelID string `json:"channel_id" validate:"required,max=64"`
	OwnerID   string `json:"owner_id" validate:"max=64"`
}

// AdminRequest names a user to promote.
type AdminRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

// DestinationResponse is the registered destination plus the delivery of
// the current survey to it, when one is open.
type DestinationResponse struct {
	Destination  *models.Destination `json:"destination"`
	Announcement *AnnouncementResult `json:"announcement,omitempty"`
}

// AnnouncementResult is the delivery outcome for one destination.
type AnnouncementResult struct {
	Delivered bool   `json:"delivered"`
	MessageID string `json:"message_id,omitempty"`
	Pinned    bool   `json:"pinned"`
	Error     string `json:"error,omitempty"`
}

func summarize(r *broadcast.Report) *DeliverySummary {
	if r == nil {
		return nil
	}
	return &DeliverySummary{
		Status:    r.Status,
		Total:     r.Total,
		Delivered: r.Delivered,
		Failed:    r.Failed,
		Disabled:  r.Disabled(),
	}
}

func newRotationResponse(out *rotation.Outcome) RotationResponse {
	return RotationResponse{
		SurveyID:     out.SurveyID,
		PreviousID:   out.PreviousID,
		Provenance:   out.Provenance,
		Shared:       out.Shared,
		Results:      summarize(out.Results),
		Announcement: summarize(out.Announcement),
	}
}

// ForceRotation closes the active survey now. An optional topic body
// replaces the cascade pick.
func (h *Handler) ForceRotation(w http.ResponseWriter, r *http.Request) {
	var topic models.Topic
	present, err := decodeOptionalJSON(w, r, &topic)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}

	req := rotation.RotateRequest{RequestedBy: requester(r), Trigger: rotation.TriggerForced}
	if present {
		req.Forced = &topic
	}
	out, err := h.deps.Rotator.Rotate(r.Context(), req)
	h.record(r, audit.EventTypeRotationForced, outcomeOf(err), nil,
		"force", "Forced rotation", map[string]bool{"explicit_topic": present})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, newRotationResponse(out))
}

// ListDestinations returns every registered destination.
func (h *Handler) ListDestinations(w http.ResponseWriter, r *http.Request) {
	dests, err := h.deps.Store.ListDestinations(r.Context(), false)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, dests)
}

// PutDestination registers or re-enables a tenant's channel and posts the
// current survey there.
func (h *Handler) PutDestination(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	var req DestinationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if verr := validateRequest(&req); verr != nil {
		respondServiceError(w, r, verr)
		return
	}

	dest := &models.Destination{
		TenantID:  tenantID,
		ChannelID: req.ChannelID,
		OwnerID:   req.OwnerID,
		Enabled:   true,
		UpdatedAt: time.Now().UTC(),
	}
	if err := h.deps.Store.UpsertDestination(r.Context(), dest); err != nil {
		respondServiceError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("tenant_id", sanitizeLogValue(tenantID)).
		Str("channel_id", sanitizeLogValue(req.ChannelID)).
		Msg("Destination registered")
	h.record(r, audit.EventTypeDestinationRegistered, audit.OutcomeSuccess, &audit.Target{ID: tenantID, Type: "destination"},
		"register", "Destination registered", map[string]string{"channel_id": req.ChannelID})

	resp := DestinationResponse{Destination: dest}
	if ann, err := h.announceCurrent(r.Context(), dest); err != nil {
		respondServiceError(w, r, err)
		return
	} else if ann != nil {
		resp.Announcement = ann
		if stored, gerr := h.deps.Store.GetDestination(r.Context(), tenantID); gerr == nil {
			resp.Destination = stored
		}
	}
	respondData(w, r, http.StatusOK, resp)
}

// announceCurrent posts the active survey to dest. It returns nil when no
// survey is open or no announcer is wired.
func (h *Handler) announceCurrent(ctx context.Context, dest *models.Destination) (*AnnouncementResult, error) {
	if h.deps.Announcer == nil {
		return nil, nil
	}
	survey, err := h.deps.Store.ActiveSurvey(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var period time.Duration
	if h.deps.Rotator != nil {
		period = h.deps.Rotator.Period()
	}
	msg := broadcast.Announcement(survey, broadcast.AnnouncementOptions{
		NewChannel: true,
		Period:     period,
	})
	res := h.deps.Announcer.AnnounceTo(ctx, dest, msg)
	out := &AnnouncementResult{Delivered: res.Delivered, MessageID: res.MessageID, Pinned: res.Pinned}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out, nil
}

// DeleteDestination unregisters a tenant.
func (h *Handler) DeleteDestination(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if err := h.deps.Store.DeleteDestination(r.Context(), tenantID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.record(r, audit.EventTypeDestinationRemoved, audit.OutcomeSuccess, &audit.Target{ID: tenantID, Type: "destination"},
		"delete", "Destination removed", nil)
	respondData(w, r, http.StatusOK, map[string]string{"deleted": tenantID})
}

// ListAdmins returns the stored administrators.
func (h *Handler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.deps.Store.ListAdmins(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, admins)
}

// AddAdmin grants the admin role to a user.
func (h *Handler) AddAdmin(w http.ResponseWriter, r *http.Request) {
	var req AdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if verr := validateRequest(&req); verr != nil {
		respondServiceError(w, r, verr)
		return
	}
	userID := req.UserID
	if userID == h.masterUserID() {
		respondServiceError(w, r, ErrMasterImmutable)
		return
	}
	admin := &models.Admin{
		UserID:  userID,
		Role:    models.RoleAdmin,
		AddedBy: requester(r),
		AddedAt: time.Now().UTC(),
	}
	if err := h.deps.Store.PutAdmin(r.Context(), admin); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if err := h.syncAdmins(r.Context()); err != nil {
		respondServiceError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("user_id", sanitizeLogValue(userID)).
		Str("added_by", sanitizeLogValue(admin.AddedBy)).
		Msg("Administrator added")
	h.record(r, audit.EventTypeRoleAssigned, audit.OutcomeSuccess, &audit.Target{ID: userID, Type: "admin"},
		"grant", "Administrator added", nil)
	respondData(w, r, http.StatusCreated, admin)
}

// RemoveAdmin revokes the admin role.
func (h *Handler) RemoveAdmin(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == h.masterUserID() {
		respondServiceError(w, r, ErrMasterImmutable)
		return
	}
	if err := h.deps.Store.DeleteAdmin(r.Context(), userID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if err := h.syncAdmins(r.Context()); err != nil {
		respondServiceError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("user_id", sanitizeLogValue(userID)).Msg("Administrator removed")
	h.record(r, audit.EventTypeRoleRevoked, audit.OutcomeSuccess, &audit.Target{ID: userID, Type: "admin"},
		"revoke", "Administrator removed", nil)
	respondData(w, r, http.StatusOK, map[string]string{"deleted": userID})
}

func (h *Handler) masterUserID() string {
	if h.config == nil {
		return ""
	}
	return h.config.Security.MasterUserID
}

func (h *Handler) syncAdmins(ctx context.Context) error {
	if h.deps.Admins == nil {
		return nil
	}
	admins, err := h.deps.Store.ListAdmins(ctx)
	if err != nil {
		return err
	}
	return h.deps.Admins.SyncAdmins(admins, h.masterUserID())
}
