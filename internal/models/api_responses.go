// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package models

import "time"

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError represents an error response with structured error details.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SurveyStatus is the live view of the active survey.
type SurveyStatus struct {
	Survey           *Survey       `json:"survey"`
	ClosesAt         time.Time     `json:"closes_at"`
	TotalRespondents int           `json:"total_respondents"`
	Counts           []OptionCount `json:"counts"`
	RecentOpinions   []string      `json:"recent_opinions"`
}

// PastSurvey is one entry of the statistics view.
type PastSurvey struct {
	SurveyID         int64        `json:"survey_id"`
	Topic            string       `json:"topic"`
	TotalRespondents int          `json:"total_respondents"`
	Winner           *OptionCount `json:"winner,omitempty"`
	ClosedAt         time.Time    `json:"closed_at"`
}
