// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/galdcup/internal/voting"
)

const maxArchiveLimit = 100

// OpinionRequest attaches an opinion to an existing vote.
type OpinionRequest struct {
	SurveyID int64  `json:"survey_id" validate:"required,gt=0"`
	UserID   string `json:"user_id" validate:"required,max=64"`
	TenantID string `json:"tenant_id" validate:"max=64"`
	Opinion  string `json:"opinion" validate:"required,max=1000"`
}

// ActiveSurvey returns the survey currently open for votes.
func (h *Handler) ActiveSurvey(w http.ResponseWriter, r *http.Request) {
	survey, err := h.deps.Store.ActiveSurvey(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, survey)
}

// SurveyStatus returns live counts and recent opinions.
func (h *Handler) SurveyStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.deps.Voting.CurrentStatus(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, status)
}

// ArchiveList returns the most recent closed surveys.
func (h *Handler) ArchiveList(w http.ResponseWriter, r *http.Request) {
	limit, err := getIntParam(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if limit < 0 || limit > maxArchiveLimit {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be between 1 and "+strconv.Itoa(maxArchiveLimit), nil)
		return
	}

	past, err := h.deps.Voting.PastStatistics(r.Context(), limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, past)
}

// ArchiveGet returns one full archive record.
func (h *Handler) ArchiveGet(w http.ResponseWriter, r *http.Request) {
	if h.deps.Archive == nil {
		respondServiceError(w, r, ErrNotConfigured)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "surveyID"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "survey id must be a positive integer", nil)
		return
	}
	rec, err := h.deps.Archive.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, rec)
}

// SubmitVote records a vote relayed by the chat bridge.
func (h *Handler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	var req voting.VoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	replaced, err := h.deps.Voting.SubmitVote(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	status := http.StatusCreated
	if replaced {
		status = http.StatusOK
	}
	respondData(w, r, status, map[string]bool{"replaced": replaced})
}

// SubmitOpinion adds an opinion to the caller's existing vote.
func (h *Handler) SubmitOpinion(w http.ResponseWriter, r *http.Request) {
	var req OpinionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if verr := validateRequest(&req); verr != nil {
		respondServiceError(w, r, verr)
		return
	}
	if err := h.deps.Voting.AddOpinion(r.Context(), req.SurveyID, req.UserID, req.TenantID, req.Opinion); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, map[string]bool{"saved": true})
}
