// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package tally

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/tomtom215/galdcup/internal/models"
)

// SamplesPerSource is how many opinions are drawn from each tenant.
const SamplesPerSource = 3

// Samples holds opinions drawn for one destination's results message.
type Samples struct {
	Local       []string
	OtherTenant string
	Other       []string
}

// SampleOpinions draws up to SamplesPerSource opinions written in tenantID
// and up to SamplesPerSource from one randomly chosen other tenant. Each is
// formatted "[selected] opinion".
func SampleOpinions(votes []*models.Vote, tenantID string, rng *rand.Rand) Samples {
	byTenant := make(map[string][]*models.Vote)
	for _, v := range votes {
		if v != nil && v.HasOpinion() {
			byTenant[v.TenantID] = append(byTenant[v.TenantID], v)
		}
	}

	out := Samples{Local: pick(byTenant[tenantID], rng)}

	others := make([]string, 0, len(byTenant))
	for t := range byTenant {
		if t != tenantID {
			others = append(others, t)
		}
	}
	if len(others) == 0 {
		return out
	}
	sort.Strings(others)
	out.OtherTenant = others[rng.IntN(len(others))]
	out.Other = pick(byTenant[out.OtherTenant], rng)
	return out
}

func pick(votes []*models.Vote, rng *rand.Rand) []string {
	idx := rng.Perm(len(votes))
	if len(idx) > SamplesPerSource {
		idx = idx[:SamplesPerSource]
	}
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		v := votes[i]
		out = append(out, fmt.Sprintf("[%s] %s", v.SelectedLabel(), v.Opinion))
	}
	return out
}
