// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package models

import (
	"strings"
	"time"
)

// Vote is a user's answer to a survey. A user holds at most one vote per
// survey regardless of the tenant it was cast from; resubmission replaces
// the selection and opinion.
type Vote struct {
	SurveyID  int64     `json:"survey_id"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	Selected  []string  `json:"selected"`
	Opinion   string    `json:"opinion,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SelectedLabel joins the selection for display.
func (v *Vote) SelectedLabel() string {
	return strings.Join(v.Selected, ", ")
}

// HasOpinion reports whether the vote carries free text.
func (v *Vote) HasOpinion() bool {
	return strings.TrimSpace(v.Opinion) != ""
}
