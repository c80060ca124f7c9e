// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package tally

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/galdcup/internal/models"
)

func survey(options ...string) *models.Survey {
	s := &models.Survey{ID: 1, Topic: "topic"}
	for _, o := range options {
		s.Options = append(s.Options, models.Option{Name: o})
	}
	return s
}

func vote(user, tenant, opinion string, selected ...string) *models.Vote {
	return &models.Vote{SurveyID: 1, UserID: user, TenantID: tenant, Selected: selected, Opinion: opinion}
}

func countOf(r Result, name string) int {
	for _, c := range r.Counts {
		if c.Name == name {
			return c.Count
		}
	}
	return -1
}

func TestCount(t *testing.T) {
	tests := []struct {
		name        string
		survey      *models.Survey
		votes       []*models.Vote
		respondents int
		want        map[string]int
		order       []string
	}{
		{
			name:        "multi-select counts independently",
			survey:      survey("A", "B"),
			votes:       []*models.Vote{vote("1", "", "", "A"), vote("2", "", "", "A", "B"), vote("3", "", "", "B")},
			respondents: 3,
			want:        map[string]int{"A": 2, "B": 2},
			order:       []string{"A", "B"},
		},
		{
			name:        "ranking by count",
			survey:      survey("X", "Y"),
			votes:       []*models.Vote{vote("1", "", "", "Y"), vote("2", "", "", "Y"), vote("3", "", "", "X")},
			respondents: 3,
			want:        map[string]int{"X": 1, "Y": 2},
			order:       []string{"Y", "X"},
		},
		{
			name:        "unknown answers get their own bucket",
			survey:      survey("A", "B"),
			votes:       []*models.Vote{vote("1", "", "", "pizza"), vote("2", "", "", "A")},
			respondents: 2,
			want:        map[string]int{"A": 1, "B": 0, "pizza": 1},
			order:       []string{"A", "pizza", "B"},
		},
		{
			name:        "no votes keeps declared options at zero",
			survey:      survey("A", "B"),
			votes:       nil,
			respondents: 0,
			want:        map[string]int{"A": 0, "B": 0},
			order:       []string{"A", "B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Count(tt.survey, tt.votes)
			if r.TotalRespondents != tt.respondents {
				t.Errorf("TotalRespondents = %d, want %d", r.TotalRespondents, tt.respondents)
			}
			for name, want := range tt.want {
				if got := countOf(r, name); got != want {
					t.Errorf("count[%s] = %d, want %d", name, got, want)
				}
			}
			for i, name := range tt.order {
				if r.Counts[i].Name != name {
					t.Errorf("Counts[%d] = %s, want %s", i, r.Counts[i].Name, name)
				}
			}
		})
	}
}

func TestSummary(t *testing.T) {
	r := Count(survey("X", "Y"), []*models.Vote{
		vote("1", "", "", "X"), vote("2", "", "", "X"), vote("3", "", "", "Y"),
	})
	want := "Total respondents: 3\nX: 66.7% (2 votes)\nY: 33.3% (1 votes)"
	if got := r.Summary(); got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}

type mockClusterer struct {
	mu       sync.Mutex
	calls    int
	opinions []string
	clusters []models.Cluster
	err      error
	block    bool
}

func (m *mockClusterer) ClusterOpinions(ctx context.Context, _ string, opinions []string) ([]models.Cluster, error) {
	m.mu.Lock()
	m.calls++
	m.opinions = opinions
	m.mu.Unlock()
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.clusters, m.err
}

func TestAdapterClose(t *testing.T) {
	closedAt := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	votes := []*models.Vote{
		vote("1", "g1", "warm is better", "X"),
		vote("2", "g1", "  ", "X"),
		vote("3", "g2", "cold", "Y"),
	}

	tests := []struct {
		name      string
		clusterer *mockClusterer
		wantLen   int
	}{
		{
			name: "clusters kept, empty ones dropped",
			clusterer: &mockClusterer{clusters: []models.Cluster{
				{Name: "warm", Count: 1}, {Name: "empty", Count: 0}, {Name: "cold", Count: 1},
			}},
			wantLen: 2,
		},
		{name: "clusterer error", clusterer: &mockClusterer{err: errors.New("quota")}, wantLen: 0},
		{name: "clusterer timeout", clusterer: &mockClusterer{block: true}, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAdapter(tt.clusterer, 20*time.Millisecond, zerolog.Nop())
			rec, result := a.Close(context.Background(), survey("X", "Y"), votes, closedAt)

			if rec.SurveyID != 1 || rec.TotalRespondents != 3 || !rec.ClosedAt.Equal(closedAt) {
				t.Errorf("record = %+v", rec)
			}
			if rec.Clusters == nil || len(rec.Clusters) != tt.wantLen {
				t.Errorf("Clusters = %v, want %d non-nil", rec.Clusters, tt.wantLen)
			}
			if !strings.HasPrefix(rec.Summary, "Total respondents: 3") {
				t.Errorf("Summary = %q", rec.Summary)
			}
			if result.Counts[0].Name != "X" {
				t.Errorf("winner = %s, want X", result.Counts[0].Name)
			}
			if len(tt.clusterer.opinions) != 2 {
				t.Errorf("clusterer got %d opinions, want 2 non-empty", len(tt.clusterer.opinions))
			}
		})
	}
}

func TestAdapterSkipsClusteringWithoutOpinions(t *testing.T) {
	m := &mockClusterer{}
	a := NewAdapter(m, time.Second, zerolog.Nop())
	rec, _ := a.Close(context.Background(), survey("A", "B"), []*models.Vote{vote("1", "", "", "A")}, time.Now())

	if m.calls != 0 {
		t.Errorf("clusterer called %d times, want 0", m.calls)
	}
	if rec.Clusters == nil || len(rec.Clusters) != 0 {
		t.Errorf("Clusters = %v, want empty", rec.Clusters)
	}

	nilAdapter := NewAdapter(nil, time.Second, zerolog.Nop())
	rec, _ = nilAdapter.Close(context.Background(), survey("A", "B"), []*models.Vote{vote("1", "", "hi", "A")}, time.Now())
	if len(rec.Clusters) != 0 {
		t.Errorf("nil clusterer Clusters = %v", rec.Clusters)
	}
}

func TestSampleOpinions(t *testing.T) {
	votes := []*models.Vote{
		vote("1", "g1", "a", "X"), vote("2", "g1", "b", "X"), vote("3", "g1", "c", "Y"),
		vote("4", "g1", "d", "Y"), vote("5", "g1", "", "Y"),
		vote("6", "g2", "e", "X", "Y"),
	}
	rng := rand.New(rand.NewPCG(1, 2))

	s := SampleOpinions(votes, "g1", rng)
	if len(s.Local) != SamplesPerSource {
		t.Errorf("Local = %v, want %d entries", s.Local, SamplesPerSource)
	}
	if s.OtherTenant != "g2" || len(s.Other) != 1 || s.Other[0] != "[X, Y] e" {
		t.Errorf("Other = %q %v, want g2 [[X, Y] e]", s.OtherTenant, s.Other)
	}
	for _, o := range s.Local {
		if !strings.HasPrefix(o, "[") {
			t.Errorf("sample %q not formatted", o)
		}
	}

	alone := SampleOpinions(votes[:3], "g1", rng)
	if alone.OtherTenant != "" || len(alone.Other) != 0 {
		t.Errorf("single tenant Other = %+v", alone)
	}
}
