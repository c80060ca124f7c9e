// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package queue manages the suggestion pool and the curated topic queue.
//
// Suggestions are unreviewed community submissions. Operators promote them
// into the queue, reorder the queue by swapping adjacent entries, and return
// queued topics to the pool. Moves between the two collections happen in a
// single store transaction, so a topic is never in both or neither.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/galdcup/internal/config"
	"github.com/tomtom215/galdcup/internal/metrics"
	"github.com/tomtom215/galdcup/internal/models"
	"github.com/tomtom215/galdcup/internal/rotation"
	"github.com/tomtom215/galdcup/internal/store"
	"github.com/tomtom215/galdcup/internal/validation"
)

var (
	// ErrNotAdjacent is returned by Swap for positions with entries between them.
	ErrNotAdjacent = store.ErrNotAdjacent

	// ErrInvalidTopic is returned for topics without text or two named options.
	ErrInvalidTopic = errors.New("topic needs text and at least two named options")

	// ErrAssistantUnavailable is returned by AI operations when no assistant
	// is configured.
	ErrAssistantUnavailable = errors.New("ai assistant is not configured")

	// ErrInvalidCount is returned by Charge for a count outside 1..max.
	ErrInvalidCount = errors.New("charge count out of range")

	// ErrQueueEdge is returned by MoveUp at the head and MoveDown at the tail.
	ErrQueueEdge = errors.New("topic is already at the edge of the queue")
)

// Store is the slice of the persistence gateway the manager needs.
type Store interface {
	CreateSuggestion(ctx context.Context, sug *models.SuggestedTopic, onePending bool) error
	GetSuggestion(ctx context.Context, id string) (*models.SuggestedTopic, error)
	ListSuggestions(ctx context.Context) ([]*models.SuggestedTopic, error)
	UpdateSuggestion(ctx context.Context, id string, topic models.Topic) (*models.SuggestedTopic, error)
	DeleteSuggestion(ctx context.Context, id string) (*models.SuggestedTopic, error)
	PromoteSuggestion(ctx context.Context, id string) (*models.QueuedTopic, error)
	ReturnQueued(ctx context.Context, id string) (*models.SuggestedTopic, error)

	Enqueue(ctx context.Context, q *models.QueuedTopic) error
	ListQueue(ctx context.Context) ([]*models.QueuedTopic, error)
	QueueLength(ctx context.Context) (int, error)
	GetQueued(ctx context.Context, id string) (*models.QueuedTopic, error)
	UpdateQueued(ctx context.Context, id string, topic models.Topic) (*models.QueuedTopic, error)
	DeleteQueued(ctx context.Context, id string) (*models.QueuedTopic, error)
	SwapQueued(ctx context.Context, a, b int64, requireAdjacent bool) error
	NeighborPosition(ctx context.Context, id string, dir int) (self, neighbor int64, err error)
}

// Assistant is the AI collaborator used by Charge, Evaluate and Refine.
type Assistant interface {
	GenerateTopics(ctx context.Context, n int) ([]*models.Topic, error)
	EvaluateTopic(ctx context.Context, topic *models.Topic) (bool, error)
	RefineTopic(ctx context.Context, topic *models.Topic) (*models.Topic, error)
}

// Rotator starts forced rotations.
type Rotator interface {
	Rotate(ctx context.Context, req rotation.RotateRequest) (*rotation.Outcome, error)
}

// SuggestRequest is a community submission.
type SuggestRequest struct {
	Topic         models.Topic
	SuggesterID   string
	SuggesterName string
}

// Manager implements the suggestion and queue operations.
type Manager struct {
	store     Store
	assistant Assistant
	rotator   Rotator
	config    config.QueueConfig
	timeout   time.Duration
	logger    zerolog.Logger
}

// New creates a Manager. assistant and rotator may be nil; the operations
// that need them then fail.
func New(s Store, assistant Assistant, rotator Rotator, cfg config.QueueConfig, timeout time.Duration, logger zerolog.Logger) *Manager {
	if cfg.MaxChargeCount < 1 {
		cfg.MaxChargeCount = 5
	}
	return &Manager{
		store:     s,
		assistant: assistant,
		rotator:   rotator,
		config:    cfg,
		timeout:   timeout,
		logger:    logger.With().Str("component", "queue").Logger(),
	}
}

// ValidateTopic checks tags and content of a topic.
func ValidateTopic(t *models.Topic) error {
	if verr := validation.ValidateStruct(t); verr != nil {
		return verr
	}
	if !t.Valid() {
		return ErrInvalidTopic
	}
	return nil
}

// Suggest stores a community suggestion.
func (m *Manager) Suggest(ctx context.Context, req SuggestRequest) (*models.SuggestedTopic, error) {
	if err := ValidateTopic(&req.Topic); err != nil {
		return nil, err
	}
	sug := &models.SuggestedTopic{
		Topic:         req.Topic,
		SuggesterID:   req.SuggesterID,
		SuggesterName: req.SuggesterName,
	}
	if err := m.store.CreateSuggestion(ctx, sug, m.config.OnePendingPerUser); err != nil {
		return nil, err
	}
	m.record(ctx, "suggest")
	m.logger.Info().Str("suggestion_id", sug.ID).Str("suggester_id", sug.SuggesterID).Msg("Suggestion received")
	return sug, nil
}

// GetSuggestion returns a pending suggestion.
func (m *Manager) GetSuggestion(ctx context.Context, id string) (*models.SuggestedTopic, error) {
	return m.store.GetSuggestion(ctx, id)
}

// ListSuggestions returns pending suggestions, oldest first.
func (m *Manager) ListSuggestions(ctx context.Context) ([]*models.SuggestedTopic, error) {
	return m.store.ListSuggestions(ctx)
}

// EditSuggestion replaces a suggestion's topic.
func (m *Manager) EditSuggestion(ctx context.Context, id string, topic models.Topic) (*models.SuggestedTopic, error) {
	if err := ValidateTopic(&topic); err != nil {
		return nil, err
	}
	sug, err := m.store.UpdateSuggestion(ctx, id, topic)
	if err != nil {
		return nil, err
	}
	m.record(ctx, "edit_suggestion")
	return sug, nil
}

// RejectSuggestion deletes a suggestion.
func (m *Manager) RejectSuggestion(ctx context.Context, id string) (*models.SuggestedTopic, error) {
	sug, err := m.store.DeleteSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	m.record(ctx, "reject")
	return sug, nil
}

// ListQueue returns the queue in dequeue order.
func (m *Manager) ListQueue(ctx context.Context) ([]*models.QueuedTopic, error) {
	return m.store.ListQueue(ctx)
}

// GetQueued returns a queued topic.
func (m *Manager) GetQueued(ctx context.Context, id string) (*models.QueuedTopic, error) {
	return m.store.GetQueued(ctx, id)
}

// Enqueue appends an operator topic at the queue tail.
func (m *Manager) Enqueue(ctx context.Context, topic models.Topic) (*models.QueuedTopic, error) {
	if err := ValidateTopic(&topic); err != nil {
		return nil, err
	}
	q := &models.QueuedTopic{Topic: topic, Source: models.QueueSourceOperator}
	if err := m.store.Enqueue(ctx, q); err != nil {
		return nil, err
	}
	m.record(ctx, "enqueue")
	return q, nil
}

// EditQueued replaces a queued topic in place.
func (m *Manager) EditQueued(ctx context.Context, id string, topic models.Topic) (*models.QueuedTopic, error) {
	if err := ValidateTopic(&topic); err != nil {
		return nil, err
	}
	q, err := m.store.UpdateQueued(ctx, id, topic)
	if err != nil {
		return nil, err
	}
	m.record(ctx, "edit_queued")
	return q, nil
}

// DeleteQueued removes a queued topic.
func (m *Manager) DeleteQueued(ctx context.Context, id string) (*models.QueuedTopic, error) {
	q, err := m.store.DeleteQueued(ctx, id)
	if err != nil {
		return nil, err
	}
	m.record(ctx, "delete_queued")
	return q, nil
}

// Promote moves a suggestion to the queue tail.
func (m *Manager) Promote(ctx context.Context, suggestionID string) (*models.QueuedTopic, error) {
	q, err := m.store.PromoteSuggestion(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	m.record(ctx, "promote")
	m.logger.Info().Str("topic_id", q.ID).Int64("position", q.Position).Msg("Suggestion promoted")
	return q, nil
}

// Return moves a queued topic back to the suggestion pool.
func (m *Manager) Return(ctx context.Context, queuedID string) (*models.SuggestedTopic, error) {
	sug, err := m.store.ReturnQueued(ctx, queuedID)
	if err != nil {
		return nil, err
	}
	m.record(ctx, "return")
	return sug, nil
}

// Swap exchanges the entries at two adjacent positions.
func (m *Manager) Swap(ctx context.Context, posA, posB int64) error {
	if err := m.store.SwapQueued(ctx, posA, posB, true); err != nil {
		return err
	}
	m.record(ctx, "swap")
	return nil
}

// MoveUp swaps a queued topic with the one ahead of it.
func (m *Manager) MoveUp(ctx context.Context, id string) error {
	return m.move(ctx, id, -1)
}

// MoveDown swaps a queued topic with the one behind it.
func (m *Manager) MoveDown(ctx context.Context, id string) error {
	return m.move(ctx, id, 1)
}

func (m *Manager) move(ctx context.Context, id string, dir int) error {
	self, neighbor, err := m.store.NeighborPosition(ctx, id, dir)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) && self != 0 {
			return ErrQueueEdge
		}
		return err
	}
	return m.Swap(ctx, self, neighbor)
}

// Charge asks the assistant for n topics and enqueues the valid ones.
func (m *Manager) Charge(ctx context.Context, n int) ([]*models.QueuedTopic, error) {
	if n < 1 || n > m.config.MaxChargeCount {
		return nil, fmt.Errorf("%w: want 1 to %d, got %d", ErrInvalidCount, m.config.MaxChargeCount, n)
	}
	if m.assistant == nil {
		return nil, ErrAssistantUnavailable
	}

	actx, cancel := m.withTimeout(ctx)
	defer cancel()
	topics, err := m.assistant.GenerateTopics(actx, n)
	if err != nil {
		return nil, fmt.Errorf("generate topics: %w", err)
	}

	out := make([]*models.QueuedTopic, 0, len(topics))
	for _, t := range topics {
		if ValidateTopic(t) != nil {
			m.logger.Debug().Str("topic", t.Topic).Msg("Skipping invalid generated topic")
			continue
		}
		q := &models.QueuedTopic{Topic: *t, Source: models.QueueSourceAI}
		if err := m.store.Enqueue(ctx, q); err != nil {
			return out, err
		}
		out = append(out, q)
	}
	m.record(ctx, "charge")
	m.logger.Info().Int("requested", n).Int("enqueued", len(out)).Msg("Queue charged with generated topics")
	return out, nil
}

// Evaluate asks the assistant whether a suggestion is acceptable.
func (m *Manager) Evaluate(ctx context.Context, suggestionID string) (bool, error) {
	if m.assistant == nil {
		return false, ErrAssistantUnavailable
	}
	sug, err := m.store.GetSuggestion(ctx, suggestionID)
	if err != nil {
		return false, err
	}
	actx, cancel := m.withTimeout(ctx)
	defer cancel()
	ok, err := m.assistant.EvaluateTopic(actx, &sug.Topic)
	if err != nil {
		return false, fmt.Errorf("evaluate topic: %w", err)
	}
	m.record(ctx, "evaluate")
	return ok, nil
}

// Refine asks the assistant to polish a suggestion and stores the result.
func (m *Manager) Refine(ctx context.Context, suggestionID string) (*models.SuggestedTopic, error) {
	if m.assistant == nil {
		return nil, ErrAssistantUnavailable
	}
	sug, err := m.store.GetSuggestion(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	actx, cancel := m.withTimeout(ctx)
	defer cancel()
	refined, err := m.assistant.RefineTopic(actx, &sug.Topic)
	if err != nil {
		return nil, fmt.Errorf("refine topic: %w", err)
	}
	if err := ValidateTopic(refined); err != nil {
		return nil, err
	}
	return m.EditSuggestion(ctx, suggestionID, *refined)
}

// ForcePick rotates immediately to a suggestion's topic and then deletes
// the suggestion. The suggestion is kept when the rotation fails.
func (m *Manager) ForcePick(ctx context.Context, suggestionID, requestedBy string) (*rotation.Outcome, error) {
	if m.rotator == nil {
		return nil, errors.New("rotation is not available")
	}
	sug, err := m.store.GetSuggestion(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	topic := sug.Topic
	out, err := m.rotator.Rotate(ctx, rotation.RotateRequest{
		Forced:      &topic,
		RequestedBy: requestedBy,
		Trigger:     rotation.TriggerForced,
	})
	if err != nil {
		return nil, err
	}
	if out.Shared {
		m.logger.Warn().Str("suggestion_id", suggestionID).Msg("Force pick joined a rotation in flight, suggestion kept")
		return out, nil
	}
	if _, err := m.store.DeleteSuggestion(ctx, suggestionID); err != nil && !errors.Is(err, store.ErrNotFound) {
		m.logger.Warn().Err(err).Str("suggestion_id", suggestionID).Msg("Failed to delete force-picked suggestion")
	}
	m.record(ctx, "force_pick")
	return out, nil
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

// record counts an operation and refreshes the size gauges.
func (m *Manager) record(ctx context.Context, op string) {
	metrics.QueueOperations.WithLabelValues(op).Inc()
	if n, err := m.store.QueueLength(ctx); err == nil {
		metrics.QueueLength.Set(float64(n))
	}
	if sugs, err := m.store.ListSuggestions(ctx); err == nil {
		metrics.SuggestionsPending.Set(float64(len(sugs)))
	}
}
