// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package models

import "time"

// OptionCount is the tally of one option (or one free-text answer).
type OptionCount struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Cluster is a group of similar opinions.
type Cluster struct {
	Name    string `json:"name"`
	Count   int    `json:"count"`
	Summary string `json:"summary"`
}

// ArchiveRecord is the persisted summary of a closed survey.
type ArchiveRecord struct {
	SurveyID         int64         `json:"survey_id"`
	Topic            string        `json:"topic"`
	TotalRespondents int           `json:"total_respondents"`
	Counts           []OptionCount `json:"counts"`
	Summary          string        `json:"summary"`
	Clusters         []Cluster     `json:"clusters"`
	ClosedAt         time.Time     `json:"closed_at"`
}

// Winner returns the top-ranked option, if any vote was cast.
func (r *ArchiveRecord) Winner() (OptionCount, bool) {
	if r.TotalRespondents == 0 || len(r.Counts) == 0 {
		return OptionCount{}, false
	}
	return r.Counts[0], true
}
