// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/galdcup/internal/ai"
	"github.com/tomtom215/galdcup/internal/archive"
	"github.com/tomtom215/galdcup/internal/auth"
	"github.com/tomtom215/galdcup/internal/logging"
	"github.com/tomtom215/galdcup/internal/queue"
	"github.com/tomtom215/galdcup/internal/rotation"
	"github.com/tomtom215/galdcup/internal/store"
	"github.com/tomtom215/galdcup/internal/validation"
	"github.com/tomtom215/galdcup/internal/voting"
)

// API errors raised by handlers themselves.
var (
	// ErrNotConfigured means an optional collaborator is absent.
	ErrNotConfigured = errors.New("feature is not configured")

	// ErrMasterImmutable rejects edits to the configured master.
	ErrMasterImmutable = errors.New("the master administrator is set in configuration")
)

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// errorTable maps sentinel errors to responses. The first match wins.
var errorTable = []errorMapping{
	{store.ErrNotFound, http.StatusNotFound, ErrCodeNotFound, "resource not found"},
	{archive.ErrNotFound, http.StatusNotFound, ErrCodeNotFound, "archive record not found"},
	{store.ErrActiveSurveyExists, http.StatusConflict, ErrCodeConflict, "a survey is already active"},
	{store.ErrPendingSuggestion, http.StatusConflict, ErrCodeConflict, "user already has a pending suggestion"},
	{queue.ErrNotAdjacent, http.StatusConflict, ErrCodeConflict, "queue positions are not adjacent"},
	{queue.ErrQueueEdge, http.StatusConflict, ErrCodeConflict, "topic is already at the edge of the queue"},
	{voting.ErrSurveyClosed, http.StatusConflict, ErrCodeConflict, "survey is closed"},
	{voting.ErrEmptySelection, http.StatusBadRequest, ErrCodeBadRequest, "at least one option must be selected"},
	{voting.ErrMultipleSelection, http.StatusBadRequest, ErrCodeBadRequest, "survey accepts a single selection"},
	{voting.ErrUnknownOption, http.StatusBadRequest, ErrCodeBadRequest, "selection is not an option of this survey"},
	{queue.ErrInvalidTopic, http.StatusBadRequest, ErrCodeBadRequest, "topic needs a title and at least two named options"},
	{rotation.ErrInvalidTopic, http.StatusBadRequest, ErrCodeBadRequest, "topic needs a title and at least two named options"},
	{queue.ErrInvalidCount, http.StatusBadRequest, ErrCodeBadRequest, "topic count is out of range"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid credentials"},
	{auth.ErrLoginDisabled, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "operator login is not configured"},
	{ErrMasterImmutable, http.StatusConflict, ErrCodeConflict, "the master administrator is set in configuration"},
	{ErrNotConfigured, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "feature is not configured"},
	{queue.ErrAssistantUnavailable, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "AI assistant is not available"},
	{ai.ErrInvalidOutput, http.StatusBadGateway, ErrCodeUpstreamFailed, "AI assistant returned unusable output"},
	{rotation.ErrRotationFailed, http.StatusBadGateway, ErrCodeUpstreamFailed, "rotation failed"},
	{store.ErrClosed, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "store is shutting down"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, ErrCodeTimeout, "operation timed out"},
}

// respondServiceError maps err to a status code and writes the error
// envelope. Unmapped errors are logged and reported as 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		respondError(w, http.StatusBadRequest, ErrCodeValidationFailed, verr.Error(), verr.Details())
		return
	}

	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			if m.status >= http.StatusInternalServerError {
				logging.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("Request failed")
			}
			respondError(w, m.status, m.code, m.message, nil)
			return
		}
	}

	logging.Ctx(r.Context()).Error().
		Str("error", sanitizeLogValue(err.Error())).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("API Error")
	respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error", nil)
}
