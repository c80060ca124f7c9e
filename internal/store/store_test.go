// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/galdcup/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testTopic(name string, options ...string) *models.Topic {
	if len(options) == 0 {
		options = []string{"A", "B"}
	}
	t := &models.Topic{Topic: name}
	for _, o := range options {
		t.Options = append(t.Options, models.Option{Name: o})
	}
	return t
}

func TestCreateSurveySingleActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.ActiveSurvey(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ActiveSurvey() on empty store error = %v, want ErrNotFound", err)
	}

	first, err := s.CreateSurvey(ctx, testTopic("first"), time.Now())
	if err != nil {
		t.Fatalf("CreateSurvey() error = %v", err)
	}
	if first.ID != 1 || !first.Active {
		t.Errorf("first survey = %+v, want id 1 and active", first)
	}

	if _, err := s.CreateSurvey(ctx, testTopic("second"), time.Now()); !errors.Is(err, ErrActiveSurveyExists) {
		t.Fatalf("second CreateSurvey() error = %v, want ErrActiveSurveyExists", err)
	}

	closed, err := s.CloseSurvey(ctx, first.ID, time.Now())
	if err != nil {
		t.Fatalf("CloseSurvey() error = %v", err)
	}
	if closed.Active || closed.EndTime == nil {
		t.Errorf("closed survey = %+v, want inactive with end time", closed)
	}

	second, err := s.CreateSurvey(ctx, testTopic("second"), time.Now())
	if err != nil {
		t.Fatalf("CreateSurvey() after close error = %v", err)
	}
	if second.ID == first.ID {
		t.Errorf("second survey reused id %d", first.ID)
	}

	active, err := s.ActiveSurvey(ctx)
	if err != nil {
		t.Fatalf("ActiveSurvey() error = %v", err)
	}
	if active.ID != second.ID {
		t.Errorf("ActiveSurvey().ID = %d, want %d", active.ID, second.ID)
	}

	past, err := s.ListClosedSurveys(ctx, 5)
	if err != nil {
		t.Fatalf("ListClosedSurveys() error = %v", err)
	}
	if len(past) != 1 || past[0].ID != first.ID {
		t.Errorf("ListClosedSurveys() = %v, want only survey %d", past, first.ID)
	}
}

func TestConcurrentCreateSurvey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.CreateSurvey(ctx, testTopic(fmt.Sprintf("t%d", i)), time.Now()); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("created %d active surveys, want 1", created)
	}
}

func TestLegacyStringOptions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	raw := `{"id":7,"topic":"legacy","options":["Yes","No"],"active":true,"start_time":"2025-01-01T00:00:00Z"}`
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(surveyKey(7), []byte(raw)); err != nil {
			return err
		}
		return txn.Set([]byte(activeKey), []byte("7"))
	})
	if err != nil {
		t.Fatalf("seed error = %v", err)
	}

	survey, err := s.ActiveSurvey(ctx)
	if err != nil {
		t.Fatalf("ActiveSurvey() error = %v", err)
	}
	if len(survey.Options) != 2 || survey.Options[0].Name != "Yes" || survey.Options[1].Name != "No" {
		t.Errorf("Options = %+v, want [Yes No]", survey.Options)
	}
}

func TestUpsertVoteReplacesInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	replaced, err := s.UpsertVote(ctx, &models.Vote{SurveyID: 1, UserID: "u1", TenantID: "g1", Selected: []string{"A"}})
	if err != nil || replaced {
		t.Fatalf("first UpsertVote() = %v, %v; want false, nil", replaced, err)
	}
	replaced, err = s.UpsertVote(ctx, &models.Vote{SurveyID: 1, UserID: "u1", TenantID: "g2", Selected: []string{"B"}, Opinion: "changed"})
	if err != nil || !replaced {
		t.Fatalf("second UpsertVote() = %v, %v; want true, nil", replaced, err)
	}
	if _, err := s.UpsertVote(ctx, &models.Vote{SurveyID: 2, UserID: "u1", Selected: []string{"A"}}); err != nil {
		t.Fatalf("UpsertVote() other survey error = %v", err)
	}

	votes, err := s.ListVotes(ctx, 1)
	if err != nil {
		t.Fatalf("ListVotes() error = %v", err)
	}
	if len(votes) != 1 {
		t.Fatalf("ListVotes() len = %d, want 1", len(votes))
	}
	if votes[0].Selected[0] != "B" || votes[0].Opinion != "changed" || votes[0].TenantID != "g2" {
		t.Errorf("vote = %+v, want latest submission", votes[0])
	}
}

func TestSuggestionOnePending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &models.SuggestedTopic{Topic: *testTopic("one"), SuggesterID: "u1"}
	if err := s.CreateSuggestion(ctx, first, true); err != nil {
		t.Fatalf("CreateSuggestion() error = %v", err)
	}
	if err := s.CreateSuggestion(ctx, &models.SuggestedTopic{Topic: *testTopic("two"), SuggesterID: "u1"}, true); !errors.Is(err, ErrPendingSuggestion) {
		t.Errorf("second suggestion error = %v, want ErrPendingSuggestion", err)
	}
	if err := s.CreateSuggestion(ctx, &models.SuggestedTopic{Topic: *testTopic("two"), SuggesterID: "u1"}, false); err != nil {
		t.Errorf("suggestion with rule off error = %v", err)
	}
	if err := s.CreateSuggestion(ctx, &models.SuggestedTopic{Topic: *testTopic("three"), SuggesterID: "u2"}, true); err != nil {
		t.Errorf("other user suggestion error = %v", err)
	}

	list, err := s.ListSuggestions(ctx)
	if err != nil {
		t.Fatalf("ListSuggestions() error = %v", err)
	}
	if len(list) != 3 {
		t.Errorf("ListSuggestions() len = %d, want 3", len(list))
	}

	updated, err := s.UpdateSuggestion(ctx, first.ID, *testTopic("one edited"))
	if err != nil {
		t.Fatalf("UpdateSuggestion() error = %v", err)
	}
	if updated.Topic.Topic != "one edited" {
		t.Errorf("UpdateSuggestion() topic = %q", updated.Topic.Topic)
	}

	if _, err := s.DeleteSuggestion(ctx, first.ID); err != nil {
		t.Fatalf("DeleteSuggestion() error = %v", err)
	}
	if _, err := s.GetSuggestion(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSuggestion() after delete error = %v, want ErrNotFound", err)
	}
}

func enqueueN(t *testing.T, s *Store, names ...string) []*models.QueuedTopic {
	t.Helper()
	out := make([]*models.QueuedTopic, 0, len(names))
	for _, n := range names {
		q := &models.QueuedTopic{Topic: *testTopic(n), Source: models.QueueSourceOperator}
		if err := s.Enqueue(context.Background(), q); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", n, err)
		}
		out = append(out, q)
	}
	return out
}

func TestQueueFIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	queued := enqueueN(t, s, "a", "b", "c")
	for i, q := range queued {
		if q.Position != int64(i+1) {
			t.Errorf("%s position = %d, want %d", q.Topic.Topic, q.Position, i+1)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		head, err := s.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
		if head.Topic.Topic != want {
			t.Errorf("Dequeue() = %q, want %q", head.Topic.Topic, want)
		}
	}
	if _, err := s.Dequeue(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Dequeue() on empty queue error = %v, want ErrNotFound", err)
	}
}

func TestSwapQueued(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	enqueueN(t, s, "first", "second", "third")

	if err := s.SwapQueued(ctx, 1, 2, true); err != nil {
		t.Fatalf("SwapQueued(1,2) error = %v", err)
	}

	list, err := s.ListQueue(ctx)
	if err != nil {
		t.Fatalf("ListQueue() error = %v", err)
	}
	if list[0].Position != 1 || list[1].Position != 2 {
		t.Errorf("positions = %d,%d; want 1,2", list[0].Position, list[1].Position)
	}
	if list[0].Topic.Topic != "second" || list[1].Topic.Topic != "first" {
		t.Errorf("order = %s,%s; want second,first", list[0].Topic.Topic, list[1].Topic.Topic)
	}

	got, err := s.GetQueued(ctx, list[1].ID)
	if err != nil {
		t.Fatalf("GetQueued() error = %v", err)
	}
	if got.Position != 2 {
		t.Errorf("id index position = %d, want 2", got.Position)
	}

	if err := s.SwapQueued(ctx, 1, 3, true); !errors.Is(err, ErrNotAdjacent) {
		t.Errorf("SwapQueued(1,3) error = %v, want ErrNotAdjacent", err)
	}
	if err := s.SwapQueued(ctx, 1, 9, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SwapQueued(1,9) error = %v, want ErrNotFound", err)
	}
}

func TestNeighborPositionSkipsGaps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	queued := enqueueN(t, s, "a", "b", "c")

	if _, err := s.DeleteQueued(ctx, queued[1].ID); err != nil {
		t.Fatalf("DeleteQueued() error = %v", err)
	}

	self, next, err := s.NeighborPosition(ctx, queued[0].ID, 1)
	if err != nil {
		t.Fatalf("NeighborPosition() error = %v", err)
	}
	if self != 1 || next != 3 {
		t.Errorf("NeighborPosition() = %d,%d; want 1,3", self, next)
	}
	if err := s.SwapQueued(ctx, self, next, true); err != nil {
		t.Errorf("SwapQueued across gap error = %v", err)
	}
	if _, _, err := s.NeighborPosition(ctx, queued[0].ID, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("NeighborPosition() at tail error = %v, want ErrNotFound", err)
	}
}

func TestPromoteAndReturn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	enqueueN(t, s, "existing")

	sug := &models.SuggestedTopic{Topic: *testTopic("idea"), SuggesterID: "u1", SuggesterName: "alice"}
	if err := s.CreateSuggestion(ctx, sug, true); err != nil {
		t.Fatalf("CreateSuggestion() error = %v", err)
	}

	queued, err := s.PromoteSuggestion(ctx, sug.ID)
	if err != nil {
		t.Fatalf("PromoteSuggestion() error = %v", err)
	}
	if queued.Position != 2 || queued.SuggesterName != "alice" || queued.Source != models.QueueSourcePromoted {
		t.Errorf("promoted = %+v", queued)
	}
	if _, err := s.GetSuggestion(ctx, sug.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("suggestion still present after promote: %v", err)
	}

	back, err := s.ReturnQueued(ctx, queued.ID)
	if err != nil {
		t.Fatalf("ReturnQueued() error = %v", err)
	}
	if back.Topic.Topic != "idea" || back.SuggesterID != "u1" {
		t.Errorf("returned = %+v", back)
	}
	if _, err := s.GetQueued(ctx, queued.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("queued entry still present after return: %v", err)
	}
	n, err := s.QueueLength(ctx)
	if err != nil || n != 1 {
		t.Errorf("QueueLength() = %d, %v; want 1", n, err)
	}

	if _, err := s.PromoteSuggestion(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("PromoteSuggestion(missing) error = %v, want ErrNotFound", err)
	}
}

// assertQueueConsistent checks that positions are unique, the id index
// matches the position rows, and both agree on the queue length.
func assertQueueConsistent(t *testing.T, s *Store) []*models.QueuedTopic {
	t.Helper()
	ctx := context.Background()

	list, err := s.ListQueue(ctx)
	if err != nil {
		t.Fatalf("ListQueue() error = %v", err)
	}
	n, err := s.QueueLength(ctx)
	if err != nil {
		t.Fatalf("QueueLength() error = %v", err)
	}
	if len(list) != n {
		t.Errorf("ListQueue() has %d entries, id index has %d", len(list), n)
	}

	seen := make(map[int64]string, len(list))
	for _, q := range list {
		if other, dup := seen[q.Position]; dup {
			t.Errorf("position %d held by %s and %s", q.Position, other, q.ID)
		}
		seen[q.Position] = q.ID

		got, err := s.GetQueued(ctx, q.ID)
		if err != nil {
			t.Errorf("GetQueued(%s) error = %v", q.ID, err)
			continue
		}
		if got.ID != q.ID || got.Position != q.Position {
			t.Errorf("GetQueued(%s) = %s at %d, want itself at %d", q.ID, got.ID, got.Position, q.Position)
		}
	}
	return list
}

func TestConcurrentAppendsKeepEveryTopic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	enqueueN(t, s, "seed")

	const enqueues, promotes = 20, 5
	suggestions := make([]*models.SuggestedTopic, promotes)
	for i := range suggestions {
		suggestions[i] = &models.SuggestedTopic{Topic: *testTopic(fmt.Sprintf("idea-%d", i)), SuggesterID: fmt.Sprintf("u%d", i)}
		if err := s.CreateSuggestion(ctx, suggestions[i], true); err != nil {
			t.Fatalf("CreateSuggestion() error = %v", err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, enqueues+promotes)
	for i := 0; i < enqueues; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := &models.QueuedTopic{Topic: *testTopic(fmt.Sprintf("t%d", i)), Source: models.QueueSourceOperator}
			if err := s.Enqueue(ctx, q); err != nil {
				errs <- fmt.Errorf("Enqueue(t%d): %w", i, err)
			}
		}(i)
	}
	for _, sug := range suggestions {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := s.PromoteSuggestion(ctx, id); err != nil {
				errs <- fmt.Errorf("PromoteSuggestion(%s): %w", id, err)
			}
		}(sug.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	list := assertQueueConsistent(t, s)
	if want := 1 + enqueues + promotes; len(list) != want {
		t.Errorf("queue length = %d, want %d", len(list), want)
	}
	if list[0].Topic.Topic != "seed" {
		t.Errorf("head = %q, want seed", list[0].Topic.Topic)
	}
}

func TestConcurrentQueueEditsStayConsistent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seeded := enqueueN(t, s, "a", "b", "c", "d", "e", "f", "g", "h", "i", "j")

	const workers = 5
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		dequeued = make(map[string]bool)
	)
	errs := make(chan error, 3*workers)
	for i := 0; i < workers; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			head, err := s.Dequeue(ctx)
			if err != nil {
				errs <- fmt.Errorf("Dequeue: %w", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if dequeued[head.ID] {
				errs <- fmt.Errorf("Dequeue returned %s twice", head.ID)
			}
			dequeued[head.ID] = true
		}()
		go func(i int) {
			defer wg.Done()
			q := &models.QueuedTopic{Topic: *testTopic(fmt.Sprintf("new-%d", i)), Source: models.QueueSourceOperator}
			if err := s.Enqueue(ctx, q); err != nil {
				errs <- fmt.Errorf("Enqueue: %w", err)
			}
		}(i)
		go func(pos int64) {
			defer wg.Done()
			// Either side may already be dequeued.
			if err := s.SwapQueued(ctx, pos, pos+1, false); err != nil && !errors.Is(err, ErrNotFound) {
				errs <- fmt.Errorf("SwapQueued(%d): %w", pos, err)
			}
		}(seeded[2*i].Position)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	list := assertQueueConsistent(t, s)
	if want := len(seeded); len(list) != want {
		t.Errorf("queue length = %d, want %d", len(list), want)
	}
	for _, q := range list {
		if dequeued[q.ID] {
			t.Errorf("%s is both dequeued and still queued", q.ID)
		}
	}
}

func TestAppendAfterDrainKeepsIncreasing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	enqueueN(t, s, "a", "b")
	for i := 0; i < 2; i++ {
		if _, err := s.Dequeue(ctx); err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
	}

	next := enqueueN(t, s, "c")
	if next[0].Position != 3 {
		t.Errorf("position after drain = %d, want 3", next[0].Position)
	}
}

func TestDestinations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"g1", "g2", "g3"} {
		if err := s.UpsertDestination(ctx, &models.Destination{TenantID: id, ChannelID: "c-" + id, Enabled: true}); err != nil {
			t.Fatalf("UpsertDestination(%s) error = %v", id, err)
		}
	}
	if err := s.SetPinnedMessage(ctx, "g1", "m1"); err != nil {
		t.Fatalf("SetPinnedMessage() error = %v", err)
	}
	if err := s.SetDestinationEnabled(ctx, "g2", false, "missing permissions"); err != nil {
		t.Fatalf("SetDestinationEnabled() error = %v", err)
	}

	enabled, err := s.ListDestinations(ctx, true)
	if err != nil {
		t.Fatalf("ListDestinations() error = %v", err)
	}
	if len(enabled) != 2 || enabled[0].TenantID != "g1" || enabled[1].TenantID != "g3" {
		t.Errorf("enabled destinations = %+v", enabled)
	}

	// Re-registering the same channel keeps the pin reference.
	if err := s.UpsertDestination(ctx, &models.Destination{TenantID: "g1", ChannelID: "c-g1", Enabled: true}); err != nil {
		t.Fatalf("UpsertDestination() error = %v", err)
	}
	d, err := s.GetDestination(ctx, "g1")
	if err != nil {
		t.Fatalf("GetDestination() error = %v", err)
	}
	if d.PinnedMessageID != "m1" {
		t.Errorf("PinnedMessageID = %q, want m1", d.PinnedMessageID)
	}

	disabled, _ := s.GetDestination(ctx, "g2")
	if disabled.Enabled || disabled.DisabledReason != "missing permissions" {
		t.Errorf("g2 = %+v, want disabled with reason", disabled)
	}

	if err := s.DeleteDestination(ctx, "g3"); err != nil {
		t.Fatalf("DeleteDestination() error = %v", err)
	}
	if err := s.DeleteDestination(ctx, "g3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteDestination() error = %v, want ErrNotFound", err)
	}
}

func TestAdmins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutAdmin(ctx, &models.Admin{UserID: "u1", Role: models.RoleAdmin, AddedBy: "master"}); err != nil {
		t.Fatalf("PutAdmin() error = %v", err)
	}
	a, err := s.GetAdmin(ctx, "u1")
	if err != nil || a.Role != models.RoleAdmin || a.AddedAt.IsZero() {
		t.Fatalf("GetAdmin() = %+v, %v", a, err)
	}
	list, err := s.ListAdmins(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListAdmins() = %v, %v", list, err)
	}
	if err := s.DeleteAdmin(ctx, "u1"); err != nil {
		t.Fatalf("DeleteAdmin() error = %v", err)
	}
	if err := s.DeleteAdmin(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteAdmin() again error = %v, want ErrNotFound", err)
	}
}

func TestClosedStore(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := s.ActiveSurvey(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("ActiveSurvey() after close error = %v, want ErrClosed", err)
	}
}
