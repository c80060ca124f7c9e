// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/galdcup/internal/models"
)

// ActiveSurvey returns the active survey, or ErrNotFound when there is none.
func (s *Store) ActiveSurvey(ctx context.Context) (*models.Survey, error) {
	var survey *models.Survey
	err := s.view(ctx, "active_survey", func(txn *badger.Txn) error {
		id, err := activeID(txn)
		if err != nil {
			return err
		}
		survey = &models.Survey{}
		return getJSON(txn, surveyKey(id), survey)
	})
	if err != nil {
		return nil, err
	}
	return survey, nil
}

// GetSurvey returns a survey by id.
func (s *Store) GetSurvey(ctx context.Context, id int64) (*models.Survey, error) {
	survey := &models.Survey{}
	err := s.view(ctx, "get_survey", func(txn *badger.Txn) error {
		return getJSON(txn, surveyKey(id), survey)
	})
	if err != nil {
		return nil, err
	}
	return survey, nil
}

// CreateSurvey stores a new active survey built from topic. It fails with
// ErrActiveSurveyExists while another survey is active.
func (s *Store) CreateSurvey(ctx context.Context, topic *models.Topic, start time.Time) (*models.Survey, error) {
	next, err := s.surveySeq.Next()
	if err != nil {
		return nil, fmt.Errorf("next survey id: %w", err)
	}
	survey := models.NewSurvey(topic, start)
	// Sequences start at zero.
	survey.ID = int64(next) + 1

	err = s.update(ctx, "create_survey", func(txn *badger.Txn) error {
		if _, err := activeID(txn); err == nil {
			return ErrActiveSurveyExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := setJSON(txn, surveyKey(survey.ID), survey); err != nil {
			return err
		}
		return txn.Set([]byte(activeKey), []byte(strconv.FormatInt(survey.ID, 10)))
	})
	if err != nil {
		return nil, err
	}
	return survey, nil
}

// CloseSurvey marks the survey inactive with EndTime=end and clears the
// active pointer if it points at it. Closing an already closed survey is a
// no-op that returns the stored record.
func (s *Store) CloseSurvey(ctx context.Context, id int64, end time.Time) (*models.Survey, error) {
	survey := &models.Survey{}
	err := s.update(ctx, "close_survey", func(txn *badger.Txn) error {
		if err := getJSON(txn, surveyKey(id), survey); err != nil {
			return err
		}
		if current, err := activeID(txn); err == nil && current == id {
			if err := txn.Delete([]byte(activeKey)); err != nil {
				return err
			}
		}
		if !survey.Active {
			return nil
		}
		survey.Active = false
		survey.EndTime = &end
		return setJSON(txn, surveyKey(id), survey)
	})
	if err != nil {
		return nil, err
	}
	return survey, nil
}

// ListClosedSurveys returns up to limit closed surveys, newest first.
func (s *Store) ListClosedSurveys(ctx context.Context, limit int) ([]*models.Survey, error) {
	var out []*models.Survey
	err := s.view(ctx, "list_surveys", func(txn *badger.Txn) error {
		return scanJSON(txn, []byte(surveyPrefix), true, func(sv *models.Survey) bool {
			if !sv.Active {
				out = append(out, sv)
			}
			return limit <= 0 || len(out) < limit
		})
	})
	return out, err
}

func activeID(txn *badger.Txn) (int64, error) {
	item, err := txn.Get([]byte(activeKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	var id int64
	err = item.Value(func(val []byte) error {
		var perr error
		id, perr = strconv.ParseInt(string(val), 10, 64)
		return perr
	})
	return id, err
}
