// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package store

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/galdcup/internal/models"
)

// UpsertVote stores v, replacing any previous vote by the same user on the
// same survey. It reports whether an existing vote was replaced.
func (s *Store) UpsertVote(ctx context.Context, v *models.Vote) (replaced bool, err error) {
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = s.now()
	}
	key := voteKey(v.SurveyID, v.UserID)
	err = s.update(ctx, "upsert_vote", func(txn *badger.Txn) error {
		_, getErr := txn.Get(key)
		replaced = getErr == nil
		return setJSON(txn, key, v)
	})
	return replaced, err
}

// GetVote returns one user's vote on a survey.
func (s *Store) GetVote(ctx context.Context, surveyID int64, userID string) (*models.Vote, error) {
	vote := &models.Vote{}
	err := s.view(ctx, "get_vote", func(txn *badger.Txn) error {
		return getJSON(txn, voteKey(surveyID, userID), vote)
	})
	if err != nil {
		return nil, err
	}
	return vote, nil
}

// ListVotes returns every vote on a survey ordered by user id.
func (s *Store) ListVotes(ctx context.Context, surveyID int64) ([]*models.Vote, error) {
	var votes []*models.Vote
	err := s.view(ctx, "list_votes", func(txn *badger.Txn) error {
		return scanJSON(txn, votePrefixFor(surveyID), false, func(v *models.Vote) bool {
			votes = append(votes, v)
			return true
		})
	})
	return votes, err
}
