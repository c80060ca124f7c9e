// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package rotation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/galdcup/internal/broadcast"
	"github.com/tomtom215/galdcup/internal/cascade"
	"github.com/tomtom215/galdcup/internal/config"
	"github.com/tomtom215/galdcup/internal/models"
	"github.com/tomtom215/galdcup/internal/store"
	"github.com/tomtom215/galdcup/internal/tally"
)

// stubSelector returns a fixed curated topic, optionally blocking on gate.
type stubSelector struct {
	calls atomic.Int32
	gate  chan struct{}
}

func (s *stubSelector) Next(_ context.Context, forced *models.Topic) cascade.Selection {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if forced != nil {
		return cascade.Selection{Topic: forced, Provenance: models.ProvenanceForced}
	}
	return cascade.Selection{
		Topic: &models.Topic{
			Topic:   "Tea or coffee?",
			Options: []models.Option{{Name: "Tea"}, {Name: "Coffee"}},
		},
		Provenance: models.ProvenanceCurated,
	}
}

type memArchive struct {
	mu      sync.Mutex
	records []*models.ArchiveRecord
	err     error
}

func (a *memArchive) Save(_ context.Context, rec *models.ArchiveRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, rec)
	return nil
}

// recordingBroadcaster composes for a fixed set of destinations.
type recordingBroadcaster struct {
	mu    sync.Mutex
	dests []*models.Destination
	sent  map[string][]*broadcast.Message
	pins  int
}

func newRecordingBroadcaster(tenants ...string) *recordingBroadcaster {
	b := &recordingBroadcaster{sent: make(map[string][]*broadcast.Message)}
	for _, t := range tenants {
		b.dests = append(b.dests, &models.Destination{TenantID: t, ChannelID: "ch-" + t, Enabled: true})
	}
	return b
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, compose broadcast.Composer, opts broadcast.Options) (*broadcast.Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if opts.Pin {
		b.pins++
	}
	report := &broadcast.Report{Status: broadcast.StatusDelivered, Total: len(b.dests)}
	for _, d := range b.dests {
		if msg := compose(d); msg != nil {
			b.sent[opts.Kind] = append(b.sent[opts.Kind], msg)
			report.Delivered++
		}
	}
	return report, nil
}

type stubCharts struct{ err error }

func (c stubCharts) RenderCounts(context.Context, string, []models.OptionCount) ([]byte, error) {
	return []byte("png"), c.err
}

func (c stubCharts) RenderClusters(context.Context, string, []models.Cluster) ([]byte, error) {
	return []byte("png"), c.err
}

type stubUploader struct{ err error }

func (u stubUploader) UploadPNG(_ context.Context, _ int64, name string, _ []byte) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	return "https://cdn.example/" + name, nil
}

type fixture struct {
	store    *store.Store
	archive  *memArchive
	selector *stubSelector
	bc       *recordingBroadcaster
	sched    *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		store:    s,
		archive:  &memArchive{},
		selector: &stubSelector{},
		bc:       newRecordingBroadcaster("1", "2"),
	}
	f.sched = New(Deps{
		Store:      s,
		Archive:    f.archive,
		Cascade:    f.selector,
		Tally:      tally.NewAdapter(nil, time.Second, zerolog.Nop()),
		Charts:     stubCharts{},
		Dispatcher: f.bc,
	}, config.RotationConfig{Period: time.Hour, CheckInterval: time.Minute}, zerolog.Nop())
	return f
}

func (f *fixture) openSurvey(t *testing.T, start time.Time) *models.Survey {
	t.Helper()
	survey, err := f.store.CreateSurvey(context.Background(), &models.Topic{
		Topic:   "X or Y?",
		Options: []models.Option{{Name: "X"}, {Name: "Y"}},
	}, start)
	if err != nil {
		t.Fatalf("CreateSurvey() error = %v", err)
	}
	return survey
}

func (f *fixture) vote(t *testing.T, surveyID int64, user, tenant, option string) {
	t.Helper()
	_, err := f.store.UpsertVote(context.Background(), &models.Vote{
		SurveyID: surveyID, UserID: user, TenantID: tenant, Selected: []string{option},
	})
	if err != nil {
		t.Fatalf("UpsertVote() error = %v", err)
	}
}

func TestRotateClosesTalliesAndOpens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prev := f.openSurvey(t, time.Now().Add(-2*time.Hour))
	f.vote(t, prev.ID, "a", "1", "X")
	f.vote(t, prev.ID, "b", "1", "X")
	f.vote(t, prev.ID, "c", "2", "Y")

	out, err := f.sched.Rotate(ctx, RotateRequest{Trigger: TriggerTimer})
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if out.PreviousID != prev.ID || out.SurveyID == prev.ID {
		t.Errorf("Outcome ids = %d -> %d, want new id after %d", out.PreviousID, out.SurveyID, prev.ID)
	}
	if out.Provenance != models.ProvenanceCurated {
		t.Errorf("Provenance = %q, want curated", out.Provenance)
	}

	closed, err := f.store.GetSurvey(ctx, prev.ID)
	if err != nil {
		t.Fatalf("GetSurvey() error = %v", err)
	}
	if closed.Active || closed.EndTime == nil {
		t.Error("previous survey should be closed with an end time")
	}

	active, err := f.store.ActiveSurvey(ctx)
	if err != nil {
		t.Fatalf("ActiveSurvey() error = %v", err)
	}
	if active.ID != out.SurveyID || active.Topic != "Tea or coffee?" {
		t.Errorf("active survey = %d %q", active.ID, active.Topic)
	}

	if len(f.archive.records) != 1 {
		t.Fatalf("archived %d records, want 1", len(f.archive.records))
	}
	rec := f.archive.records[0]
	if rec.TotalRespondents != 3 {
		t.Errorf("TotalRespondents = %d, want 3", rec.TotalRespondents)
	}
	for _, want := range []string{"X: 66.7% (2 votes)", "Y: 33.3% (1 votes)"} {
		if !strings.Contains(rec.Summary, want) {
			t.Errorf("Summary %q missing %q", rec.Summary, want)
		}
	}

	results := f.bc.sent["results"]
	if len(results) != 2 {
		t.Fatalf("results messages = %d, want one per destination", len(results))
	}
	if len(results[0].Attachments) != 1 || results[0].Attachments[0].Name != "results.png" {
		t.Errorf("results attachments = %+v, want results.png", results[0].Attachments)
	}
	if got := len(f.bc.sent["announcement"]); got != 2 {
		t.Errorf("announcements = %d, want 2", got)
	}
	if f.bc.pins != 1 {
		t.Errorf("pinned broadcasts = %d, want 1", f.bc.pins)
	}
}

func TestRotateWithoutActiveSurvey(t *testing.T) {
	f := newFixture(t)

	out, err := f.sched.Rotate(context.Background(), RotateRequest{})
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if out.PreviousID != 0 {
		t.Errorf("PreviousID = %d, want 0", out.PreviousID)
	}
	if len(f.bc.sent["results"]) != 0 {
		t.Error("no results should be broadcast without a previous survey")
	}
	if len(f.archive.records) != 0 {
		t.Error("nothing should be archived without a previous survey")
	}
}

func TestRotateForcedTopic(t *testing.T) {
	f := newFixture(t)
	f.openSurvey(t, time.Now())

	forced := &models.Topic{
		Topic:       "Cats or dogs?",
		Options:     []models.Option{{Name: "Cats"}, {Name: "Dogs"}},
		ImagePrompt: "a cat and a dog",
	}
	out, err := f.sched.Rotate(context.Background(), RotateRequest{Forced: forced, RequestedBy: "mod"})
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if out.Provenance != models.ProvenanceForced {
		t.Errorf("Provenance = %q, want forced", out.Provenance)
	}

	active, _ := f.store.ActiveSurvey(context.Background())
	if active.Topic != "Cats or dogs?" || active.ImageURL == "" {
		t.Errorf("active = %q image %q, want forced topic with derived image", active.Topic, active.ImageURL)
	}
	if forced.ImageURL != "" {
		t.Error("caller's topic should not be modified")
	}

	ann := f.bc.sent["announcement"][0]
	if !strings.Contains(ann.Description, "mod") {
		t.Errorf("announcement %q should name the requester", ann.Description)
	}
}

func TestRotateRejectsInvalidForcedTopic(t *testing.T) {
	f := newFixture(t)
	before := f.openSurvey(t, time.Now())

	_, err := f.sched.Rotate(context.Background(), RotateRequest{
		Forced: &models.Topic{Topic: "Only one", Options: []models.Option{{Name: "A"}}},
	})
	if !errors.Is(err, ErrInvalidTopic) {
		t.Fatalf("Rotate() error = %v, want ErrInvalidTopic", err)
	}

	active, _ := f.store.ActiveSurvey(context.Background())
	if active.ID != before.ID {
		t.Error("invalid forced topic must not close the active survey")
	}
}

func TestConcurrentRotateOpensOneSurvey(t *testing.T) {
	f := newFixture(t)
	f.selector.gate = make(chan struct{})
	prev := f.openSurvey(t, time.Now())

	const callers = 5
	var wg sync.WaitGroup
	outcomes := make([]*Outcome, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = f.sched.Rotate(context.Background(), RotateRequest{})
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(f.selector.gate)
	wg.Wait()

	if got := f.selector.calls.Load(); got != 1 {
		t.Errorf("topic selections = %d, want 1", got)
	}
	shared := 0
	for i := range outcomes {
		if errs[i] != nil {
			t.Fatalf("Rotate() #%d error = %v", i, errs[i])
		}
		if outcomes[i].SurveyID != outcomes[0].SurveyID {
			t.Errorf("outcome #%d survey = %d, want %d", i, outcomes[i].SurveyID, outcomes[0].SurveyID)
		}
		if outcomes[i].Shared {
			shared++
		}
	}
	if shared != callers-1 {
		t.Errorf("shared outcomes = %d, want %d", shared, callers-1)
	}

	closed, err := f.store.ListClosedSurveys(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListClosedSurveys() error = %v", err)
	}
	if len(closed) != 1 || closed[0].ID != prev.ID {
		t.Errorf("closed surveys = %d, want only the previous one", len(closed))
	}
}

func TestRotateOriginatorIsNotShared(t *testing.T) {
	f := newFixture(t)
	f.selector.gate = make(chan struct{})
	f.openSurvey(t, time.Now().Add(-2*time.Hour))

	type result struct {
		out *Outcome
		err error
	}
	forcedCh := make(chan result, 1)
	go func() {
		out, err := f.sched.Rotate(context.Background(), RotateRequest{
			Forced: &models.Topic{Topic: "Forced?", Options: []models.Option{{Name: "A"}, {Name: "B"}}},
		})
		forcedCh <- result{out, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.selector.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("forced rotation never reached topic selection")
		}
		time.Sleep(5 * time.Millisecond)
	}

	timerCh := make(chan result, 1)
	go func() {
		out, err := f.sched.Rotate(context.Background(), RotateRequest{Trigger: TriggerTimer})
		timerCh <- result{out, err}
	}()
	time.Sleep(50 * time.Millisecond)
	close(f.selector.gate)

	forced, joined := <-forcedCh, <-timerCh
	if forced.err != nil || joined.err != nil {
		t.Fatalf("Rotate() errors = %v, %v", forced.err, joined.err)
	}
	if forced.out.Shared {
		t.Error("caller that ran the rotation reported Shared")
	}
	if forced.out.Provenance != models.ProvenanceForced {
		t.Errorf("Provenance = %q, want forced", forced.out.Provenance)
	}
	if !joined.out.Shared || joined.out.SurveyID != forced.out.SurveyID {
		t.Errorf("joiner = %+v, want shared outcome of survey %d", joined.out, forced.out.SurveyID)
	}
	if got := f.selector.calls.Load(); got != 1 {
		t.Errorf("topic selections = %d, want 1", got)
	}

	alone, err := f.sched.Rotate(context.Background(), RotateRequest{})
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if alone.Shared {
		t.Error("uncontended rotation reported Shared")
	}
}

// parallelBroadcaster composes for every destination concurrently and
// records whether the sampling lock was held when the fan-out started.
type parallelBroadcaster struct {
	sched      *Scheduler
	dests      []*models.Destination
	lockedAtIO atomic.Bool
	composed   atomic.Int32
}

func (b *parallelBroadcaster) Broadcast(_ context.Context, compose broadcast.Composer, opts broadcast.Options) (*broadcast.Report, error) {
	if opts.Kind == "results" {
		if b.sched.rngMu.TryLock() {
			b.sched.rngMu.Unlock()
		} else {
			b.lockedAtIO.Store(true)
		}
	}
	var wg sync.WaitGroup
	for _, d := range b.dests {
		wg.Add(1)
		go func(d *models.Destination) {
			defer wg.Done()
			if compose(d) != nil && opts.Kind == "results" {
				b.composed.Add(1)
			}
		}(d)
	}
	wg.Wait()
	return &broadcast.Report{Status: broadcast.StatusDelivered, Total: len(b.dests), Delivered: len(b.dests)}, nil
}

func TestResultsFanOutDoesNotHoldSamplingLock(t *testing.T) {
	f := newFixture(t)
	bc := &parallelBroadcaster{sched: f.sched}
	for _, tenant := range []string{"1", "2", "3", "4", "5", "6"} {
		bc.dests = append(bc.dests, &models.Destination{TenantID: tenant, ChannelID: "ch-" + tenant, Enabled: true})
	}
	f.sched.deps.Dispatcher = bc

	prev := f.openSurvey(t, time.Now().Add(-2*time.Hour))
	for i, tenant := range []string{"1", "2", "3", "4", "5", "6", "1", "2"} {
		_, err := f.store.UpsertVote(context.Background(), &models.Vote{
			SurveyID: prev.ID, UserID: "u" + string(rune('a'+i)), TenantID: tenant,
			Selected: []string{"X"}, Opinion: "because " + tenant,
		})
		if err != nil {
			t.Fatalf("UpsertVote() error = %v", err)
		}
	}

	if _, err := f.sched.Rotate(context.Background(), RotateRequest{Trigger: TriggerTimer}); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if bc.lockedAtIO.Load() {
		t.Error("sampling lock held while results were being sent")
	}
	if got := bc.composed.Load(); got != int32(len(bc.dests)) {
		t.Errorf("results composed = %d, want %d", got, len(bc.dests))
	}
}

func TestRotateCallerCancelDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	f.selector.gate = make(chan struct{})
	f.openSurvey(t, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.sched.Rotate(ctx, RotateRequest{})
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Rotate() error = %v, want context.Canceled", err)
	}

	close(f.selector.gate)
	out, err := f.sched.Rotate(context.Background(), RotateRequest{})
	if err != nil {
		t.Fatalf("second Rotate() error = %v", err)
	}
	// The joined or follow-up rotation completes against the store.
	active, err := f.store.ActiveSurvey(context.Background())
	if err != nil || active.ID != out.SurveyID {
		t.Errorf("active survey = %v (%v), want %d", active, err, out.SurveyID)
	}
}

func TestCheckNowSkipsUntilDue(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.sched.SetClock(func() time.Time { return now })
	survey := f.openSurvey(t, now.Add(-30*time.Minute))

	f.sched.CheckNow(context.Background())
	active, _ := f.store.ActiveSurvey(context.Background())
	if active.ID != survey.ID {
		t.Fatal("survey rotated before its period elapsed")
	}

	now = now.Add(31 * time.Minute)
	f.sched.CheckNow(context.Background())
	active, _ = f.store.ActiveSurvey(context.Background())
	if active.ID == survey.ID {
		t.Error("due survey was not rotated")
	}
}

func TestTimerRotateSkipsFreshSurvey(t *testing.T) {
	f := newFixture(t)
	survey := f.openSurvey(t, time.Now())

	out, err := f.sched.Rotate(context.Background(), RotateRequest{Trigger: TriggerTimer})
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if !out.Skipped || out.SurveyID != survey.ID {
		t.Errorf("Outcome = %+v, want skipped on survey %d", out, survey.ID)
	}
}

func TestCheckNowBootstrapsEmptyStore(t *testing.T) {
	f := newFixture(t)

	f.sched.CheckNow(context.Background())
	if _, err := f.store.ActiveSurvey(context.Background()); err != nil {
		t.Errorf("ActiveSurvey() error = %v, want a bootstrapped survey", err)
	}
}

func TestCloseOutSurvivesCollaboratorFailures(t *testing.T) {
	f := newFixture(t)
	f.archive.err = errors.New("disk full")
	f.sched.deps.Charts = stubCharts{err: errors.New("no fonts")}
	prev := f.openSurvey(t, time.Now().Add(-2*time.Hour))
	f.vote(t, prev.ID, "a", "1", "X")

	out, err := f.sched.Rotate(context.Background(), RotateRequest{})
	if err != nil {
		t.Fatalf("Rotate() error = %v, want success despite archive and chart failures", err)
	}
	if out.SurveyID == prev.ID {
		t.Error("a new survey should be open")
	}
	if got := f.bc.sent["results"]; len(got) != 2 || len(got[0].Attachments) != 0 {
		t.Errorf("results should still be broadcast without charts, got %d", len(got))
	}
}

func TestChartsUploadedOrAttached(t *testing.T) {
	tests := []struct {
		name            string
		uploader        ChartUploader
		wantURL         bool
		wantAttachments int
	}{
		{"no uploader", nil, false, 1},
		{"uploaded", stubUploader{}, true, 0},
		{"upload fails", stubUploader{err: errors.New("denied")}, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.sched.deps.Uploader = tt.uploader
			prev := f.openSurvey(t, time.Now().Add(-2*time.Hour))
			f.vote(t, prev.ID, "a", "1", "X")

			if _, err := f.sched.Rotate(context.Background(), RotateRequest{}); err != nil {
				t.Fatalf("Rotate() error = %v", err)
			}
			msg := f.bc.sent["results"][0]
			if got := msg.ImageURL == "https://cdn.example/results.png"; got != tt.wantURL {
				t.Errorf("ImageURL = %q, uploaded = %v", msg.ImageURL, tt.wantURL)
			}
			if len(msg.Attachments) != tt.wantAttachments {
				t.Errorf("attachments = %d, want %d", len(msg.Attachments), tt.wantAttachments)
			}
		})
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	f.sched.config.Enabled = true

	if err := f.sched.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.sched.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if !f.sched.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if err := f.sched.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if f.sched.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	if _, err := f.store.ActiveSurvey(context.Background()); err != nil {
		t.Errorf("first check should have bootstrapped a survey: %v", err)
	}
}
