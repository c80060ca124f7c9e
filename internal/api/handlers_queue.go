// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/galdcup/internal/audit"
	"github.com/tomtom215/galdcup/internal/auth"
	"github.com/tomtom215/galdcup/internal/models"
	"github.com/tomtom215/galdcup/internal/queue"
)

// SuggestionRequest is a community suggestion relayed by the chat bridge.
type SuggestionRequest struct {
	UserID   string       `json:"user_id" validate:"required,max=64"`
	UserName string       `json:"user_name" validate:"max=100"`
	Topic    models.Topic `json:"topic"`
}

// SwapRequest names two queue positions.
type SwapRequest struct {
	A int64 `json:"a" validate:"required,gt=0"`
	B int64 `json:"b" validate:"required,gt=0,nefield=A"`
}

// ChargeRequest asks the AI assistant for topics.
type ChargeRequest struct {
	Count int `json:"count" validate:"required,gt=0"`
}

// EvaluationResponse is the AI verdict on a suggestion.
type EvaluationResponse struct {
	SuggestionID string `json:"suggestion_id"`
	Approved     bool   `json:"approved"`
}

func (h *Handler) decodeTopic(w http.ResponseWriter, r *http.Request) (models.Topic, bool) {
	var topic models.Topic
	if err := decodeJSON(w, r, &topic); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return topic, false
	}
	return topic, true
}

// ListSuggestions returns pending suggestions, oldest first.
func (h *Handler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Queue.ListSuggestions(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, list)
}

// CreateSuggestion stores a community suggestion.
func (h *Handler) CreateSuggestion(w http.ResponseWriter, r *http.Request) {
	var req SuggestionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if err := validateRequest(&req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	sug, err := h.deps.Queue.Suggest(r.Context(), queue.SuggestRequest{
		Topic:         req.Topic,
		SuggesterID:   req.UserID,
		SuggesterName: req.UserName,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusCreated, sug)
}

// GetSuggestion returns one suggestion.
func (h *Handler) GetSuggestion(w http.ResponseWriter, r *http.Request) {
	sug, err := h.deps.Queue.GetSuggestion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, sug)
}

// UpdateSuggestion replaces the topic of a suggestion.
func (h *Handler) UpdateSuggestion(w http.ResponseWriter, r *http.Request) {
	topic, ok := h.decodeTopic(w, r)
	if !ok {
		return
	}
	sug, err := h.deps.Queue.EditSuggestion(r.Context(), chi.URLParam(r, "id"), topic)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, sug)
}

// RejectSuggestion deletes a suggestion.
func (h *Handler) RejectSuggestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sug, err := h.deps.Queue.RejectSuggestion(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.record(r, audit.EventTypeSuggestion, audit.OutcomeSuccess, &audit.Target{ID: id, Type: "suggestion"},
		"reject", "Suggestion rejected", nil)
	respondData(w, r, http.StatusOK, sug)
}

// PromoteSuggestion moves a suggestion to the tail of the queue.
func (h *Handler) PromoteSuggestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q, err := h.deps.Queue.Promote(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.record(r, audit.EventTypeSuggestion, audit.OutcomeSuccess, &audit.Target{ID: id, Type: "suggestion"},
		"promote", "Suggestion promoted to the queue", map[string]int64{"position": q.Position})
	respondData(w, r, http.StatusOK, q)
}

// EvaluateSuggestion asks the AI assistant for a verdict.
func (h *Handler) EvaluateSuggestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	approved, err := h.deps.Queue.Evaluate(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, EvaluationResponse{SuggestionID: id, Approved: approved})
}

// RefineSuggestion replaces a suggestion with the AI assistant's polish.
func (h *Handler) RefineSuggestion(w http.ResponseWriter, r *http.Request) {
	sug, err := h.deps.Queue.Refine(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, sug)
}

// ForceSuggestion rotates immediately to a suggestion's topic.
func (h *Handler) ForceSuggestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	out, err := h.deps.Queue.ForcePick(r.Context(), id, requester(r))
	h.record(r, audit.EventTypeRotationForced, outcomeOf(err), &audit.Target{ID: id, Type: "suggestion"},
		"force", "Forced rotation to a suggestion", nil)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, newRotationResponse(out))
}

// ListQueue returns queued topics in rotation order.
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Queue.ListQueue(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, list)
}

// Enqueue appends an operator topic.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	topic, ok := h.decodeTopic(w, r)
	if !ok {
		return
	}
	q, err := h.deps.Queue.Enqueue(r.Context(), topic)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.record(r, audit.EventTypeQueueChanged, audit.OutcomeSuccess, &audit.Target{ID: q.ID, Type: "queued_topic"},
		"enqueue", "Topic queued", nil)
	respondData(w, r, http.StatusCreated, q)
}

// GetQueued returns one queued topic.
func (h *Handler) GetQueued(w http.ResponseWriter, r *http.Request) {
	q, err := h.deps.Queue.GetQueued(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, q)
}

// UpdateQueued replaces the topic of a queued entry in place.
func (h *Handler) UpdateQueued(w http.ResponseWriter, r *http.Request) {
	topic, ok := h.decodeTopic(w, r)
	if !ok {
		return
	}
	q, err := h.deps.Queue.EditQueued(r.Context(), chi.URLParam(r, "id"), topic)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, q)
}

// DeleteQueued removes a queued topic.
func (h *Handler) DeleteQueued(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q, err := h.deps.Queue.DeleteQueued(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.record(r, audit.EventTypeQueueChanged, audit.OutcomeSuccess, &audit.Target{ID: id, Type: "queued_topic"},
		"delete", "Queued topic deleted", nil)
	respondData(w, r, http.StatusOK, q)
}

// ReturnQueued moves a queued topic back to the suggestions.
func (h *Handler) ReturnQueued(w http.ResponseWriter, r *http.Request) {
	sug, err := h.deps.Queue.Return(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, sug)
}

// MoveQueuedUp swaps a topic with its predecessor.
func (h *Handler) MoveQueuedUp(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.deps.Queue.MoveUp)
}

// MoveQueuedDown swaps a topic with its successor.
func (h *Handler) MoveQueuedDown(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.deps.Queue.MoveDown)
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) error) {
	if err := fn(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.ListQueue(w, r)
}

// SwapQueue exchanges the contents of two adjacent positions.
func (h *Handler) SwapQueue(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if err := validateRequest(&req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if err := h.deps.Queue.Swap(r.Context(), req.A, req.B); err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.record(r, audit.EventTypeQueueChanged, audit.OutcomeSuccess, nil,
		"swap", "Queue positions swapped", map[string]int64{"a": req.A, "b": req.B})
	h.ListQueue(w, r)
}

// ChargeQueue appends AI-generated topics.
func (h *Handler) ChargeQueue(w http.ResponseWriter, r *http.Request) {
	var req ChargeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if err := validateRequest(&req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	added, err := h.deps.Queue.Charge(r.Context(), req.Count)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.record(r, audit.EventTypeQueueChanged, audit.OutcomeSuccess, nil,
		"charge", "Queue charged with generated topics", map[string]int{"requested": req.Count, "added": len(added)})
	respondData(w, r, http.StatusCreated, added)
}

// requester names the caller for announcements.
func requester(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return claims.UserID
	}
	return ""
}
