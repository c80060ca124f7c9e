// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package voting records votes on the active survey and serves the live
// and historical result views.
package voting

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/galdcup/internal/cache"
	"github.com/tomtom215/galdcup/internal/events"
	"github.com/tomtom215/galdcup/internal/metrics"
	"github.com/tomtom215/galdcup/internal/models"
	"github.com/tomtom215/galdcup/internal/store"
	"github.com/tomtom215/galdcup/internal/tally"
	"github.com/tomtom215/galdcup/internal/validation"
)

var (
	// ErrSurveyClosed is returned for votes on a survey that is not active.
	ErrSurveyClosed = errors.New("survey is closed")

	// ErrEmptySelection is returned when nothing was selected.
	ErrEmptySelection = errors.New("at least one option must be selected")

	// ErrMultipleSelection is returned for several selections on a
	// single-select survey.
	ErrMultipleSelection = errors.New("survey accepts a single selection")

	// ErrUnknownOption is returned for free text on a survey without short
	// answers.
	ErrUnknownOption = errors.New("selection is not an option of this survey")
)

const (
	recentOpinionLimit = 10
	defaultPastLimit   = 5
	statusCacheKey     = "active"
	statusCacheTTL     = 5 * time.Second
)

// Store is the slice of the persistence gateway voting needs.
type Store interface {
	GetSurvey(ctx context.Context, id int64) (*models.Survey, error)
	ActiveSurvey(ctx context.Context) (*models.Survey, error)
	GetVote(ctx context.Context, surveyID int64, userID string) (*models.Vote, error)
	UpsertVote(ctx context.Context, v *models.Vote) (bool, error)
	ListVotes(ctx context.Context, surveyID int64) ([]*models.Vote, error)
}

// Archive reads closed survey records.
type Archive interface {
	Recent(ctx context.Context, limit int) ([]*models.ArchiveRecord, error)
}

// VoteRequest is one submission from a user.
type VoteRequest struct {
	SurveyID int64    `json:"survey_id" validate:"required,gt=0"`
	UserID   string   `json:"user_id" validate:"required,max=64"`
	TenantID string   `json:"tenant_id" validate:"max=64"`
	Selected []string `json:"selected" validate:"max=10,dive,max=100"`
	Opinion  string   `json:"opinion" validate:"max=1000"`
}

// Service implements the voting operations.
type Service struct {
	store   Store
	archive Archive
	events  events.Publisher
	period  time.Duration
	status  *cache.Cache[*models.SurveyStatus]
	now     func() time.Time
	logger  zerolog.Logger
}

// NewService creates a Service. period is the rotation period used to show
// the closing time.
func NewService(s Store, archive Archive, pub events.Publisher, period time.Duration, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		store:   s,
		archive: archive,
		events:  pub,
		period:  period,
		status:  cache.New[*models.SurveyStatus]("survey_status", statusCacheTTL),
		now:     time.Now,
		logger:  logger.With().Str("component", "voting").Logger(),
	}
}

// SubmitVote records or replaces a user's vote. It reports whether an
// earlier vote was replaced.
func (s *Service) SubmitVote(ctx context.Context, req VoteRequest) (bool, error) {
	if verr := validation.ValidateStruct(&req); verr != nil {
		return false, verr
	}

	survey, err := s.store.GetSurvey(ctx, req.SurveyID)
	if err != nil {
		return false, err
	}
	if !survey.Active {
		return false, s.reject(ErrSurveyClosed, "closed")
	}

	selected := normalize(req.Selected)
	switch {
	case len(selected) == 0:
		return false, s.reject(ErrEmptySelection, "empty")
	case len(selected) > 1 && !survey.AllowMultiple:
		return false, s.reject(ErrMultipleSelection, "multiple")
	}
	if !survey.AllowShortAnswer {
		for _, sel := range selected {
			if !survey.HasOption(sel) {
				return false, s.reject(ErrUnknownOption, "unknown_option")
			}
		}
	}

	vote := &models.Vote{
		SurveyID:  survey.ID,
		UserID:    req.UserID,
		TenantID:  req.TenantID,
		Selected:  selected,
		Opinion:   strings.TrimSpace(req.Opinion),
		UpdatedAt: s.now(),
	}
	replaced, err := s.store.UpsertVote(ctx, vote)
	if err != nil {
		return false, err
	}
	s.status.Delete(statusCacheKey)

	metrics.VotesRecorded.WithLabelValues("selection").Inc()
	if vote.HasOpinion() {
		metrics.VotesRecorded.WithLabelValues("opinion").Inc()
	}
	if err := s.events.Publish(ctx, events.TopicVoteRecorded, events.VoteRecorded{
		SurveyID: survey.ID,
		TenantID: req.TenantID,
		Replaced: replaced,
		At:       vote.UpdatedAt,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish vote event")
	}

	s.logger.Debug().Int64("survey_id", survey.ID).Str("tenant_id", req.TenantID).Bool("replaced", replaced).Msg("Vote recorded")
	return replaced, nil
}

// AddOpinion attaches an opinion to the user's existing vote, keeping the
// selection. Without an earlier vote it fails with ErrEmptySelection.
func (s *Service) AddOpinion(ctx context.Context, surveyID int64, userID, tenantID, opinion string) error {
	prev, err := s.store.GetVote(ctx, surveyID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.reject(ErrEmptySelection, "empty")
		}
		return err
	}
	if tenantID == "" {
		tenantID = prev.TenantID
	}
	_, err = s.SubmitVote(ctx, VoteRequest{
		SurveyID: surveyID,
		UserID:   userID,
		TenantID: tenantID,
		Selected: prev.Selected,
		Opinion:  opinion,
	})
	return err
}

// CurrentStatus returns the active survey with live counts and the most
// recent opinions. It returns the store's not-found error when no survey is active.
func (s *Service) CurrentStatus(ctx context.Context) (*models.SurveyStatus, error) {
	return s.status.GetOrLoad(ctx, statusCacheKey, s.loadStatus)
}

func (s *Service) loadStatus(ctx context.Context) (*models.SurveyStatus, error) {
	survey, err := s.store.ActiveSurvey(ctx)
	if err != nil {
		return nil, err
	}
	votes, err := s.store.ListVotes(ctx, survey.ID)
	if err != nil {
		return nil, err
	}

	result := tally.Count(survey, votes)
	return &models.SurveyStatus{
		Survey:           survey,
		ClosesAt:         survey.ClosesAt(s.period),
		TotalRespondents: result.TotalRespondents,
		Counts:           result.Counts,
		RecentOpinions:   recentOpinions(votes, recentOpinionLimit),
	}, nil
}

// InvalidateStatus drops the cached live view.
func (s *Service) InvalidateStatus() {
	s.status.Delete(statusCacheKey)
}

// WatchRotations invalidates the live view whenever a survey opens. It
// returns when ctx is done.
func (s *Service) WatchRotations(ctx context.Context, sub events.Subscriber) error {
	msgs, err := sub.Subscribe(ctx, events.TopicSurveyOpened)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			s.InvalidateStatus()
			msg.Ack()
		}
	}
}

// PastStatistics returns up to limit closed surveys, newest first. A
// non-positive limit means 5.
func (s *Service) PastStatistics(ctx context.Context, limit int) ([]models.PastSurvey, error) {
	if limit <= 0 {
		limit = defaultPastLimit
	}
	records, err := s.archive.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.PastSurvey, 0, len(records))
	for _, r := range records {
		past := models.PastSurvey{
			SurveyID:         r.SurveyID,
			Topic:            r.Topic,
			TotalRespondents: r.TotalRespondents,
			ClosedAt:         r.ClosedAt,
		}
		if w, ok := r.Winner(); ok {
			past.Winner = &w
		}
		out = append(out, past)
	}
	return out, nil
}

func (s *Service) reject(err error, reason string) error {
	metrics.VotesRejected.WithLabelValues(reason).Inc()
	return err
}

// normalize trims selections and drops blanks and duplicates, keeping order.
func normalize(selected []string) []string {
	seen := make(map[string]struct{}, len(selected))
	out := make([]string, 0, len(selected))
	for _, sel := range selected {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		if _, dup := seen[sel]; dup {
			continue
		}
		seen[sel] = struct{}{}
		out = append(out, sel)
	}
	return out
}

func recentOpinions(votes []*models.Vote, limit int) []string {
	withOpinion := make([]*models.Vote, 0, len(votes))
	for _, v := range votes {
		if v.HasOpinion() {
			withOpinion = append(withOpinion, v)
		}
	}
	sort.SliceStable(withOpinion, func(i, j int) bool {
		return withOpinion[i].UpdatedAt.After(withOpinion[j].UpdatedAt)
	})

	out := make([]string, 0, min(limit, len(withOpinion)))
	for _, v := range withOpinion[:min(limit, len(withOpinion))] {
		out = append(out, strings.TrimSpace(v.Opinion))
	}
	return out
}
