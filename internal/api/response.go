// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/galdcup/internal/logging"
	"github.com/tomtom215/galdcup/internal/models"
	"github.com/tomtom215/galdcup/internal/validation"
)

// Error codes for API responses
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeUpstreamFailed     = "UPSTREAM_FAILED"
	ErrCodeTimeout            = "TIMEOUT"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// sanitizeLogValue removes control characters from strings to prevent log injection attacks.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&result, "\\x%02x", r)
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondJSON sends a JSON response with proper headers
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondData(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	start, _ := r.Context().Value(startTimeKey).(time.Time)
	meta := models.Metadata{Timestamp: time.Now()}
	if !start.IsZero() {
		meta.QueryTimeMS = time.Since(start).Milliseconds()
	}
	respondJSON(w, status, &models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: meta,
	})
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	respondJSON(w, status, &models.APIResponse{
		Status: "error",
		Data:   nil,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

var errEmptyBody = errors.New("request body is empty")

// decodeJSON reads a bounded JSON body into v and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v interface{}) (bool, error) {
	err := decodeJSON(w, r, v)
	if errors.Is(err, errEmptyBody) {
		return false, nil
	}
	return err == nil, err
}

// validateRequest runs the shared validator and returns a plain nil error
// when v is valid.
func validateRequest(v interface{}) error {
	if verr := validation.ValidateStruct(v); verr != nil {
		return verr
	}
	return nil
}

// getIntParam extracts an integer query parameter with a default value
func getIntParam(r *http.Request, key string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}
