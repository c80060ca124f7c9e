// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package store

import (
	"context"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/galdcup/internal/models"
)

// CreateSuggestion stores a new suggestion. With onePending set, it fails
// with ErrPendingSuggestion when the suggester already has one.
func (s *Store) CreateSuggestion(ctx context.Context, sug *models.SuggestedTopic, onePending bool) error {
	now := s.now()
	if sug.ID == "" {
		sug.ID = models.NewTopicID()
	}
	if sug.CreatedAt.IsZero() {
		sug.CreatedAt = now
	}
	sug.UpdatedAt = now

	return s.update(ctx, "create_suggestion", func(txn *badger.Txn) error {
		if onePending && sug.SuggesterID != "" {
			found := false
			err := scanJSON(txn, []byte(suggestPrefix), false, func(existing *models.SuggestedTopic) bool {
				found = existing.SuggesterID == sug.SuggesterID
				return !found
			})
			if err != nil {
				return err
			}
			if found {
				return ErrPendingSuggestion
			}
		}
		return setJSON(txn, suggestionKey(sug.ID), sug)
	})
}

// GetSuggestion returns a suggestion by id.
func (s *Store) GetSuggestion(ctx context.Context, id string) (*models.SuggestedTopic, error) {
	sug := &models.SuggestedTopic{}
	err := s.view(ctx, "get_suggestion", func(txn *badger.Txn) error {
		return getJSON(txn, suggestionKey(id), sug)
	})
	if err != nil {
		return nil, err
	}
	return sug, nil
}

// ListSuggestions returns all pending suggestions, oldest first.
func (s *Store) ListSuggestions(ctx context.Context) ([]*models.SuggestedTopic, error) {
	var out []*models.SuggestedTopic
	err := s.view(ctx, "list_suggestions", func(txn *badger.Txn) error {
		return scanJSON(txn, []byte(suggestPrefix), false, func(sug *models.SuggestedTopic) bool {
			out = append(out, sug)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateSuggestion replaces the topic of an existing suggestion.
func (s *Store) UpdateSuggestion(ctx context.Context, id string, topic models.Topic) (*models.SuggestedTopic, error) {
	sug := &models.SuggestedTopic{}
	err := s.update(ctx, "update_suggestion", func(txn *badger.Txn) error {
		if err := getJSON(txn, suggestionKey(id), sug); err != nil {
			return err
		}
		sug.Topic = topic
		sug.UpdatedAt = s.now()
		return setJSON(txn, suggestionKey(id), sug)
	})
	if err != nil {
		return nil, err
	}
	return sug, nil
}

// DeleteSuggestion removes a suggestion and returns what was removed.
func (s *Store) DeleteSuggestion(ctx context.Context, id string) (*models.SuggestedTopic, error) {
	sug := &models.SuggestedTopic{}
	err := s.update(ctx, "delete_suggestion", func(txn *badger.Txn) error {
		if err := getJSON(txn, suggestionKey(id), sug); err != nil {
			return err
		}
		return txn.Delete(suggestionKey(id))
	})
	if err != nil {
		return nil, err
	}
	return sug, nil
}

// PromoteSuggestion deletes the suggestion and appends it to the queue tail
// in one transaction.
func (s *Store) PromoteSuggestion(ctx context.Context, id string) (*models.QueuedTopic, error) {
	var queued *models.QueuedTopic
	err := s.update(ctx, "promote_suggestion", func(txn *badger.Txn) error {
		sug := &models.SuggestedTopic{}
		if err := getJSON(txn, suggestionKey(id), sug); err != nil {
			return err
		}
		if err := txn.Delete(suggestionKey(id)); err != nil {
			return err
		}
		queued = sug.ToQueued()
		return appendQueued(txn, queued)
	})
	if err != nil {
		return nil, err
	}
	return queued, nil
}

// ReturnQueued moves a queued topic back to the suggestion pool in one
// transaction. Its position is discarded.
func (s *Store) ReturnQueued(ctx context.Context, id string) (*models.SuggestedTopic, error) {
	var sug *models.SuggestedTopic
	err := s.update(ctx, "return_queued", func(txn *badger.Txn) error {
		q, err := removeQueued(txn, id)
		if err != nil {
			return err
		}
		sug = q.ToSuggestion(s.now())
		return setJSON(txn, suggestionKey(sug.ID), sug)
	})
	if err != nil {
		return nil, err
	}
	return sug, nil
}
