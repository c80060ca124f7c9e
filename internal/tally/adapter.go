// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package tally

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/galdcup/internal/models"
)

// Clusterer groups free-text opinions. Implementations may fail or time out.
type Clusterer interface {
	ClusterOpinions(ctx context.Context, topic string, opinions []string) ([]models.Cluster, error)
}

// Adapter builds archive records, calling the clusterer under a timeout.
type Adapter struct {
	clusterer Clusterer
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewAdapter creates an Adapter. clusterer may be nil.
func NewAdapter(clusterer Clusterer, timeout time.Duration, logger zerolog.Logger) *Adapter {
	return &Adapter{
		clusterer: clusterer,
		timeout:   timeout,
		logger:    logger.With().Str("component", "tally").Logger(),
	}
}

// Close tallies a closed survey and builds its archive record. It never
// fails: clustering errors and timeouts yield an empty cluster set.
func (a *Adapter) Close(ctx context.Context, survey *models.Survey, votes []*models.Vote, closedAt time.Time) (*models.ArchiveRecord, Result) {
	result := Count(survey, votes)
	return &models.ArchiveRecord{
		SurveyID:         survey.ID,
		Topic:            survey.Topic,
		TotalRespondents: result.TotalRespondents,
		Counts:           result.Counts,
		Summary:          result.Summary(),
		Clusters:         a.cluster(ctx, survey, Opinions(votes)),
		ClosedAt:         closedAt,
	}, result
}

func (a *Adapter) cluster(ctx context.Context, survey *models.Survey, opinions []string) []models.Cluster {
	if a.clusterer == nil || len(opinions) == 0 {
		return []models.Cluster{}
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	clusters, err := a.clusterer.ClusterOpinions(ctx, survey.Topic, opinions)
	if err != nil {
		a.logger.Warn().Err(err).Int64("survey_id", survey.ID).Int("opinions", len(opinions)).
			Msg("Opinion clustering failed, archiving without clusters")
		return []models.Cluster{}
	}

	out := make([]models.Cluster, 0, len(clusters))
	for _, c := range clusters {
		if c.Count > 0 {
			out = append(out, c)
		}
	}
	return out
}
