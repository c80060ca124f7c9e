// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package cascade picks the topic for the next survey from an ordered list
// of sources: forced override, operator queue, AI generation, static
// fallback.
package cascade

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/galdcup/internal/metrics"
	"github.com/tomtom215/galdcup/internal/models"
	"github.com/tomtom215/galdcup/internal/store"
)

// Strategy is one topic source. Next returns (nil, nil) when it has nothing
// to offer. An error is logged and treated the same way.
type Strategy interface {
	Name() models.Provenance
	Next(ctx context.Context) (*models.Topic, error)
}

// Selection is the chosen topic and where it came from.
type Selection struct {
	Topic      *models.Topic
	Provenance models.Provenance
}

// Cascade walks its strategies in order and ends with the fallback.
type Cascade struct {
	strategies []Strategy
	fallback   FallbackStrategy
	logger     zerolog.Logger
}

// New creates a cascade over strategies. The fallback is always appended.
func New(logger zerolog.Logger, strategies ...Strategy) *Cascade {
	return &Cascade{
		strategies: strategies,
		logger:     logger.With().Str("component", "cascade").Logger(),
	}
}

// Next resolves the next topic. A forced topic wins without touching any
// strategy. It never fails.
func (c *Cascade) Next(ctx context.Context, forced *models.Topic) Selection {
	if forced != nil {
		metrics.TopicSelections.WithLabelValues(string(models.ProvenanceForced)).Inc()
		return Selection{Topic: forced, Provenance: models.ProvenanceForced}
	}

	for _, s := range c.strategies {
		topic, err := s.Next(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Str("strategy", string(s.Name())).Msg("Topic source failed, trying next")
			continue
		}
		if topic == nil {
			c.logger.Debug().Str("strategy", string(s.Name())).Msg("Topic source had nothing")
			continue
		}
		metrics.TopicSelections.WithLabelValues(string(s.Name())).Inc()
		return Selection{Topic: topic, Provenance: s.Name()}
	}

	topic, _ := c.fallback.Next(ctx)
	metrics.TopicSelections.WithLabelValues(string(models.ProvenanceFallback)).Inc()
	return Selection{Topic: topic, Provenance: models.ProvenanceFallback}
}

// Dequeuer removes the head of the operator queue.
type Dequeuer interface {
	Dequeue(ctx context.Context) (*models.QueuedTopic, error)
}

// QueueStrategy consumes the lowest-position queued topic.
type QueueStrategy struct {
	Queue Dequeuer
}

// Name implements Strategy.
func (QueueStrategy) Name() models.Provenance { return models.ProvenanceCurated }

// Next implements Strategy. The entry is consumed even if the caller later
// fails to open a survey with it.
func (q QueueStrategy) Next(ctx context.Context) (*models.Topic, error) {
	head, err := q.Queue.Dequeue(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	topic := head.Topic
	return &topic, nil
}

// TopicGenerator produces a fresh topic.
type TopicGenerator interface {
	GenerateTopic(ctx context.Context) (*models.Topic, error)
}

// AIStrategy makes one generation call bounded by Timeout.
type AIStrategy struct {
	Generator TopicGenerator
	Timeout   time.Duration
}

// Name implements Strategy.
func (AIStrategy) Name() models.Provenance { return models.ProvenanceAI }

// Next implements Strategy.
func (a AIStrategy) Next(ctx context.Context) (*models.Topic, error) {
	if a.Generator == nil {
		return nil, nil
	}
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	topic, err := a.Generator.GenerateTopic(ctx)
	if err != nil {
		return nil, err
	}
	if !topic.Valid() {
		return nil, nil
	}
	topic.FillImageURL()
	return topic, nil
}

// FallbackStrategy always returns the same valid topic.
type FallbackStrategy struct{}

// Name implements Strategy.
func (FallbackStrategy) Name() models.Provenance { return models.ProvenanceFallback }

// Next implements Strategy.
func (FallbackStrategy) Next(context.Context) (*models.Topic, error) {
	return FallbackTopic(), nil
}

// FallbackTopic returns a fresh copy of the static topic.
func FallbackTopic() *models.Topic {
	t := &models.Topic{
		Topic: "Summer forever vs winter forever",
		Options: []models.Option{
			{Name: "Summer forever", Description: "Endless sun, beaches and long evenings, but the heat never lets up."},
			{Name: "Winter forever", Description: "Snow, cozy blankets and hot drinks, but the cold never lets up."},
		},
		ImagePrompt: "A dramatic clash between blazing hot summer sun and freezing winter blizzard, split screen",
	}
	t.FillImageURL()
	return t
}
