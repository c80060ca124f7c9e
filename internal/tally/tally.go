// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package tally turns the votes of a closed survey into ranked counts, a
// text summary and opinion clusters, and builds the archive record.
package tally

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tomtom215/galdcup/internal/models"
)

// Result is the outcome of counting a survey's votes.
type Result struct {
	TotalRespondents int
	// Counts are ranked by count, descending. Ties keep declared option order,
	// then first-seen order for answers that are not declared options.
	Counts []models.OptionCount
}

// Count tallies votes against the survey's options. Each selected option of
// a multi-select vote counts independently, so the sum of counts may exceed
// the number of respondents. Selections that match no option get their own
// bucket.
func Count(survey *models.Survey, votes []*models.Vote) Result {
	index := make(map[string]int, len(survey.Options))
	counts := make([]models.OptionCount, 0, len(survey.Options))
	for _, o := range survey.Options {
		if _, dup := index[o.Name]; dup {
			continue
		}
		index[o.Name] = len(counts)
		counts = append(counts, models.OptionCount{Name: o.Name})
	}

	respondents := 0
	for _, v := range votes {
		if v == nil {
			continue
		}
		respondents++
		for _, sel := range v.Selected {
			i, ok := index[sel]
			if !ok {
				i = len(counts)
				index[sel] = i
				counts = append(counts, models.OptionCount{Name: sel})
			}
			counts[i].Count++
		}
	}

	for i := range counts {
		if respondents > 0 {
			counts[i].Percent = float64(counts[i].Count) / float64(respondents) * 100
		}
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })

	return Result{TotalRespondents: respondents, Counts: counts}
}

// Summary renders the human-readable stats text:
//
//	Total respondents: 3
//	X: 66.7% (2 votes)
//	Y: 33.3% (1 votes)
func (r Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total respondents: %d", r.TotalRespondents)
	for _, c := range r.Counts {
		fmt.Fprintf(&b, "\n%s: %.1f%% (%d votes)", c.Name, c.Percent, c.Count)
	}
	return b.String()
}

// Opinions returns the non-empty free-text opinions in vote order.
func Opinions(votes []*models.Vote) []string {
	out := make([]string, 0, len(votes))
	for _, v := range votes {
		if v != nil && v.HasOpinion() {
			out = append(out, strings.TrimSpace(v.Opinion))
		}
	}
	return out
}
