// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package models

import (
	"time"

	"github.com/google/uuid"
)

// SuggestedTopic is an unreviewed community submission.
type SuggestedTopic struct {
	ID            string    `json:"id"`
	Topic         Topic     `json:"topic"`
	SuggesterID   string    `json:"suggester_id"`
	SuggesterName string    `json:"suggester_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// QueueSource tells how a topic entered the queue.
type QueueSource string

const (
	QueueSourcePromoted QueueSource = "promoted"
	QueueSourceOperator QueueSource = "operator"
	QueueSourceAI       QueueSource = "ai"
)

// QueuedTopic is a curated topic waiting for rotation. Lower positions are
// dequeued first; positions are unique but may have gaps.
type QueuedTopic struct {
	ID            string      `json:"id"`
	Topic         Topic       `json:"topic"`
	Position      int64       `json:"position"`
	Source        QueueSource `json:"source"`
	SuggesterID   string      `json:"suggester_id,omitempty"`
	SuggesterName string      `json:"suggester_name,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// NewTopicID returns a fresh identifier for suggestions and queue entries.
func NewTopicID() string {
	return uuid.New().String()
}

// ToQueued converts a suggestion into a queue entry. The position is
// assigned by the store.
func (s *SuggestedTopic) ToQueued() *QueuedTopic {
	return &QueuedTopic{
		ID:            s.ID,
		Topic:         s.Topic,
		Source:        QueueSourcePromoted,
		SuggesterID:   s.SuggesterID,
		SuggesterName: s.SuggesterName,
		CreatedAt:     s.CreatedAt,
	}
}

// ToSuggestion converts a queue entry back into a suggestion.
func (q *QueuedTopic) ToSuggestion(now time.Time) *SuggestedTopic {
	created := q.CreatedAt
	if created.IsZero() {
		created = now
	}
	return &SuggestedTopic{
		ID:            q.ID,
		Topic:         q.Topic,
		SuggesterID:   q.SuggesterID,
		SuggesterName: q.SuggesterName,
		CreatedAt:     created,
		UpdatedAt:     now,
	}
}
