// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package rotation closes the active survey and opens the next one, either
// on a timer or on operator request.
//
// A rotation runs these steps in order:
//  1. Close the active survey (before any broadcast), then best-effort:
//     tally and cluster, archive, render charts, broadcast results
//  2. Resolve the next topic (forced, or the topic cascade)
//  3. Create the new survey; failure here fails the rotation
//  4. Announce the new survey to every enabled destination
//  5. Publish lifecycle events
//
// Every trigger shares one singleflight key, so at most one rotation is in
// flight and concurrent callers share its outcome. The body runs detached
// from the caller's cancellation.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/galdcup/internal/broadcast"
	"github.com/tomtom215/galdcup/internal/cascade"
	"github.com/tomtom215/galdcup/internal/config"
	"github.com/tomtom215/galdcup/internal/events"
	"github.com/tomtom215/galdcup/internal/logging"
	"github.com/tomtom215/galdcup/internal/metrics"
	"github.com/tomtom215/galdcup/internal/models"
	"github.com/tomtom215/galdcup/internal/store"
	"github.com/tomtom215/galdcup/internal/tally"
)

var (
	// ErrRotationFailed wraps any error that left the engine without a new
	// active survey.
	ErrRotationFailed = errors.New("rotation failed")

	// ErrInvalidTopic is returned for a forced topic without text or with
	// fewer than two options.
	ErrInvalidTopic = errors.New("forced topic needs text and at least two options")
)

const rotateKey = "rotate"

// Trigger identifies what started a rotation.
type Trigger string

const (
	TriggerTimer  Trigger = "timer"
	TriggerForced Trigger = "forced"
)

// SurveyStore is the slice of the persistence gateway a rotation needs.
type SurveyStore interface {
	ActiveSurvey(ctx context.Context) (*models.Survey, error)
	CloseSurvey(ctx context.Context, id int64, end time.Time) (*models.Survey, error)
	CreateSurvey(ctx context.Context, topic *models.Topic, start time.Time) (*models.Survey, error)
	ListVotes(ctx context.Context, surveyID int64) ([]*models.Vote, error)
}

// Archiver persists result records.
type Archiver interface {
	Save(ctx context.Context, rec *models.ArchiveRecord) error
}

// TopicSelector resolves the next topic.
type TopicSelector interface {
	Next(ctx context.Context, forced *models.Topic) cascade.Selection
}

// Tallier counts and clusters a closed survey.
type Tallier interface {
	Close(ctx context.Context, survey *models.Survey, votes []*models.Vote, closedAt time.Time) (*models.ArchiveRecord, tally.Result)
}

// ChartRenderer draws result charts.
type ChartRenderer interface {
	RenderCounts(ctx context.Context, title string, counts []models.OptionCount) ([]byte, error)
	RenderClusters(ctx context.Context, title string, clusters []models.Cluster) ([]byte, error)
}

// ChartUploader stores charts and returns a URL.
type ChartUploader interface {
	UploadPNG(ctx context.Context, surveyID int64, name string, data []byte) (string, error)
}

// Broadcaster fans messages out to destinations.
type Broadcaster interface {
	Broadcast(ctx context.Context, compose broadcast.Composer, opts broadcast.Options) (*broadcast.Report, error)
}

// Deps are the collaborators of a Scheduler. Charts, Uploader and Events
// are optional.
type Deps struct {
	Store      SurveyStore
	Archive    Archiver
	Cascade    TopicSelector
	Tally      Tallier
	Charts     ChartRenderer
	Uploader   ChartUploader
	Dispatcher Broadcaster
	Events     events.Publisher
}

// RotateRequest asks for a rotation. A nil Forced topic uses the cascade.
type RotateRequest struct {
	Forced      *models.Topic
	RequestedBy string
	Trigger     Trigger
}

// Outcome describes a finished rotation.
type Outcome struct {
	SurveyID   int64
	PreviousID int64
	Provenance models.Provenance
	// Shared is set for callers that joined a rotation already in flight.
	Shared bool
	// Skipped is set when a timer rotation found the survey not yet due.
	Skipped      bool
	Results      *broadcast.Report
	Announcement *broadcast.Report

	// runToken identifies the Rotate call whose body produced the outcome.
	runToken uint64
}

// Scheduler runs rotations.
type Scheduler struct {
	deps   Deps
	config config.RotationConfig
	logger zerolog.Logger
	group  singleflight.Group
	calls  atomic.Uint64
	now    func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a scheduler. Zero durations get defaults.
func New(deps Deps, cfg config.RotationConfig, logger zerolog.Logger) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.Period <= 0 {
		cfg.Period = 72 * time.Hour
	}
	if cfg.CollaboratorTimeout <= 0 {
		cfg.CollaboratorTimeout = 30 * time.Second
	}
	if cfg.ChartTimeout <= 0 {
		cfg.ChartTimeout = 10 * time.Second
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	return &Scheduler{
		deps:   deps,
		config: cfg,
		logger: logger.With().Str("component", "rotation-scheduler").Logger(),
		now:    time.Now,
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
}

// SetClock replaces the time source.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Period returns the configured rotation period.
func (s *Scheduler) Period() time.Duration {
	return s.config.Period
}

// Start begins the timer loop. The first check runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("rotation scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	if !s.config.Enabled {
		s.logger.Info().Msg("Rotation timer disabled, forced rotations only")
		go func() {
			defer close(s.doneCh)
			<-s.stopCh
		}()
		return nil
	}

	s.logger.Info().
		Dur("check_interval", s.config.CheckInterval).
		Dur("period", s.config.Period).
		Msg("Starting rotation scheduler")

	go s.run(ctx)
	return nil
}

// Stop ends the timer loop and waits for it. A rotation in flight keeps
// running to completion.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("Rotation scheduler stopped")
	return nil
}

// IsRunning reports whether the timer loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	s.CheckNow(ctx)
	for {
		select {
		case <-ticker.C:
			s.CheckNow(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// CheckNow runs one timer check: it rotates when there is no active survey
// or the active one is due. Failures are logged and retried on the next
// tick.
func (s *Scheduler) CheckNow(ctx context.Context) {
	active, err := s.deps.Store.ActiveSurvey(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.logger.Info().Msg("No active survey, rotating")
	case err != nil:
		s.logger.Error().Err(err).Msg("Failed to read active survey")
		return
	case !active.Due(s.now(), s.config.Period):
		return
	}

	out, err := s.Rotate(ctx, RotateRequest{Trigger: TriggerTimer})
	if err != nil {
		s.logger.Error().Err(err).Msg("Timer rotation failed, will retry on next tick")
		return
	}
	if !out.Skipped && !out.Shared {
		s.logger.Info().Int64("survey_id", out.SurveyID).Str("provenance", string(out.Provenance)).Msg("Timer rotation completed")
	}
}

// Rotate runs a rotation, or joins the one already in flight. Canceling ctx
// stops the wait but not the rotation.
func (s *Scheduler) Rotate(ctx context.Context, req RotateRequest) (*Outcome, error) {
	if req.Trigger == "" {
		req.Trigger = TriggerForced
	}
	if req.Forced != nil {
		if !req.Forced.Valid() {
			return nil, ErrInvalidTopic
		}
		forced := *req.Forced
		forced.FillImageURL()
		req.Forced = &forced
	}

	start := time.Now()
	// One correlation id ties the log lines and bus events of a rotation.
	detached := context.WithoutCancel(ctx)
	if logging.CorrelationIDFromContext(detached) == "" {
		detached = logging.ContextWithNewCorrelationID(detached)
	}
	token := s.calls.Add(1)
	ch := s.group.DoChan(rotateKey, func() (interface{}, error) {
		out, err := s.rotate(detached, req)
		if out != nil {
			out.runToken = token
		}
		return out, err
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		trigger := string(req.Trigger)
		if res.Err != nil {
			metrics.RecordRotation(trigger, "failure", time.Since(start))
			return nil, res.Err
		}
		out := *res.Val.(*Outcome)
		// res.Shared is also true for the caller that ran the body.
		out.Shared = out.runToken != token
		switch {
		case out.Shared:
			metrics.RecordRotation(trigger, "shared", 0)
		case out.Skipped:
			metrics.RecordRotation(trigger, "skipped", 0)
		default:
			metrics.RecordRotation(trigger, "success", time.Since(start))
		}
		return &out, nil
	}
}

func (s *Scheduler) rotate(ctx context.Context, req RotateRequest) (*Outcome, error) {
	now := s.now()
	out := &Outcome{}

	prev, err := s.deps.Store.ActiveSurvey(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: read active survey: %w", ErrRotationFailed, err)
	}

	if prev != nil {
		// A forced rotation may have finished between the timer's check and
		// this call.
		if req.Trigger == TriggerTimer && !prev.Due(now, s.config.Period) {
			return &Outcome{SurveyID: prev.ID, Skipped: true}, nil
		}

		closed, err := s.deps.Store.CloseSurvey(ctx, prev.ID, now)
		if err != nil {
			return nil, fmt.Errorf("%w: close survey %d: %w", ErrRotationFailed, prev.ID, err)
		}
		out.PreviousID = closed.ID
		out.Results = s.closeOut(ctx, closed, now)
	}

	sel := s.deps.Cascade.Next(ctx, req.Forced)
	survey, err := s.deps.Store.CreateSurvey(ctx, sel.Topic, now)
	if err != nil {
		s.logger.Error().Err(err).
			Str("provenance", string(sel.Provenance)).
			Str("topic", sel.Topic.Topic).
			Msg("Failed to open survey, selected topic was not kept")
		return nil, fmt.Errorf("%w: create survey: %w", ErrRotationFailed, err)
	}
	out.SurveyID = survey.ID
	out.Provenance = sel.Provenance
	metrics.ActiveSurveyID.Set(float64(survey.ID))

	s.logger.Info().
		Str("correlation_id", logging.CorrelationIDFromContext(ctx)).
		Int64("survey_id", survey.ID).
		Int64("previous_id", out.PreviousID).
		Str("provenance", string(sel.Provenance)).
		Str("trigger", string(req.Trigger)).
		Str("topic", survey.Topic).
		Msg("Survey opened")

	msg := broadcast.Announcement(survey, broadcast.AnnouncementOptions{
		Provenance:  sel.Provenance,
		RequestedBy: req.RequestedBy,
		Period:      s.config.Period,
	})
	report, err := s.deps.Dispatcher.Broadcast(ctx, func(*models.Destination) *broadcast.Message { return msg },
		broadcast.Options{Pin: true, Kind: "announcement"})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Announcement broadcast failed")
	}
	out.Announcement = report

	s.publish(ctx, events.TopicSurveyOpened, events.SurveyOpened{
		SurveyID:    survey.ID,
		Topic:       survey.Topic,
		Options:     survey.OptionNames(),
		Provenance:  sel.Provenance,
		RequestedBy: req.RequestedBy,
		StartTime:   survey.StartTime,
		ClosesAt:    survey.ClosesAt(s.config.Period),
	})
	return out, nil
}

// closeOut runs the best-effort half of closing a survey. Nothing here can
// fail the rotation.
func (s *Scheduler) closeOut(ctx context.Context, survey *models.Survey, closedAt time.Time) *broadcast.Report {
	log := s.logger.With().Int64("survey_id", survey.ID).Logger()

	votes, err := s.deps.Store.ListVotes(ctx, survey.ID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list votes, closing with no votes")
		votes = nil
	}

	record, result := s.deps.Tally.Close(ctx, survey, votes, closedAt)
	if err := s.deps.Archive.Save(ctx, record); err != nil {
		log.Error().Err(err).Msg("Failed to archive results")
	}
	log.Info().Int("respondents", result.TotalRespondents).Int("clusters", len(record.Clusters)).Msg("Survey closed")

	content := broadcast.ResultsContent{Record: record}
	s.attachCharts(ctx, &content, log)

	report, err := s.deps.Dispatcher.Broadcast(ctx, func(dest *models.Destination) *broadcast.Message {
		s.rngMu.Lock()
		samples := tally.SampleOpinions(votes, dest.TenantID, s.rng)
		s.rngMu.Unlock()
		return broadcast.Results(content, samples)
	}, broadcast.Options{Kind: "results"})
	if err != nil {
		log.Warn().Err(err).Msg("Results broadcast failed")
	}

	closed := events.SurveyClosed{
		SurveyID:         survey.ID,
		Topic:            survey.Topic,
		TotalRespondents: record.TotalRespondents,
		ClosedAt:         closedAt,
	}
	if w, ok := record.Winner(); ok {
		closed.Winner = &w
	}
	s.publish(ctx, events.TopicSurveyClosed, closed)
	return report
}

// attachCharts renders the charts under the chart timeout and uploads them
// when an uploader is configured. Charts that fail to upload are attached.
func (s *Scheduler) attachCharts(ctx context.Context, content *broadcast.ResultsContent, log zerolog.Logger) {
	if s.deps.Charts == nil {
		return
	}
	rec := content.Record

	type chart struct {
		name   string
		render func(context.Context) ([]byte, error)
	}
	var charts []chart
	if rec.TotalRespondents > 0 {
		charts = append(charts, chart{"results.png", func(c context.Context) ([]byte, error) {
			return s.deps.Charts.RenderCounts(c, rec.Topic, rec.Counts)
		}})
	}
	if len(rec.Clusters) > 0 {
		charts = append(charts, chart{"clusters.png", func(c context.Context) ([]byte, error) {
			return s.deps.Charts.RenderClusters(c, "Opinion groups: "+rec.Topic, rec.Clusters)
		}})
	}

	for _, c := range charts {
		data, err := bounded(ctx, s.config.ChartTimeout, c.render)
		if err != nil {
			log.Warn().Err(err).Str("chart", c.name).Msg("Chart rendering failed, sending without it")
			continue
		}
		if s.deps.Uploader != nil {
			url, err := s.deps.Uploader.UploadPNG(ctx, rec.SurveyID, c.name, data)
			if err == nil {
				content.ChartURLs = append(content.ChartURLs, url)
				continue
			}
			log.Warn().Err(err).Str("chart", c.name).Msg("Chart upload failed, attaching instead")
		}
		content.Charts = append(content.Charts, broadcast.Attachment{Name: c.name, ContentType: "image/png", Data: data})
	}
}

// bounded runs fn under timeout and gives up waiting when it expires.
func bounded(ctx context.Context, timeout time.Duration, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := fn(ctx)
		ch <- result{data, err}
	}()

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Scheduler) publish(ctx context.Context, topic string, payload interface{}) {
	if err := s.deps.Events.Publish(ctx, topic, payload); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to publish event")
	}
}
