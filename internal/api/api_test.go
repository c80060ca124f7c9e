// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/galdcup/internal/archive"
	"github.com/tomtom215/galdcup/internal/audit"
	"github.com/tomtom215/galdcup/internal/auth"
	"github.com/tomtom215/galdcup/internal/authz"
	"github.com/tomtom215/galdcup/internal/broadcast"
	"github.com/tomtom215/galdcup/internal/config"
	"github.com/tomtom215/galdcup/internal/models"
	"github.com/tomtom215/galdcup/internal/queue"
	"github.com/tomtom215/galdcup/internal/rotation"
	"github.com/tomtom215/galdcup/internal/store"
	"github.com/tomtom215/galdcup/internal/voting"
)

const (
	testSecret   = "test-secret-with-at-least-32-characters!"
	testMaster   = "999"
	testUsername = "operator"
	testPassword = "correct horse battery"
)

type fakeArchive struct {
	records map[int64]*models.ArchiveRecord
	pingErr error
}

func (a *fakeArchive) Get(_ context.Context, id int64) (*models.ArchiveRecord, error) {
	rec, ok := a.records[id]
	if !ok {
		return nil, archive.ErrNotFound
	}
	return rec, nil
}

func (a *fakeArchive) Recent(context.Context, int) ([]*models.ArchiveRecord, error) {
	return nil, nil
}

func (a *fakeArchive) Ping(context.Context) error { return a.pingErr }

type fakeRotator struct {
	mu       sync.Mutex
	requests []rotation.RotateRequest
}

func (r *fakeRotator) Rotate(_ context.Context, req rotation.RotateRequest) (*rotation.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return &rotation.Outcome{
		SurveyID:   int64(len(r.requests) + 1),
		PreviousID: int64(len(r.requests)),
		Provenance: models.ProvenanceForced,
		Results:    &broadcast.Report{Status: broadcast.StatusDelivered, Total: 1, Delivered: 1},
	}, nil
}

func (r *fakeRotator) Period() time.Duration { return 24 * time.Hour }

func (r *fakeRotator) calls() []rotation.RotateRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]rotation.RotateRequest(nil), r.requests...)
}

type fakeAnnouncer struct {
	mu    sync.Mutex
	dests []string
	msgs  []*broadcast.Message
}

func (a *fakeAnnouncer) AnnounceTo(_ context.Context, dest *models.Destination, msg *broadcast.Message) broadcast.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dests = append(a.dests, dest.TenantID)
	a.msgs = append(a.msgs, msg)
	return broadcast.Result{TenantID: dest.TenantID, ChannelID: dest.ChannelID, Delivered: true, MessageID: "m1", Pinned: true}
}

type testEnv struct {
	store     *store.Store
	rotator   *fakeRotator
	announcer *fakeAnnouncer
	jwt       *auth.JWTManager
	audit     *audit.MemoryStore
	server    http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	cfg := &config.Config{Security: config.SecurityConfig{
		JWTSecret:         testSecret,
		SessionTimeout:    time.Hour,
		AdminUsername:     testUsername,
		AdminPasswordHash: hash,
		MasterUserID:      testMaster,
		RateLimitDisabled: true,
	}}

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}
	enforcer, err := authz.NewEnforcer(context.Background(), nil)
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}
	t.Cleanup(enforcer.Close)
	if err := enforcer.SyncAdmins(nil, testMaster); err != nil {
		t.Fatalf("SyncAdmins() error = %v", err)
	}

	auditStore := audit.NewMemoryStore(100)
	auditLog := audit.NewLogger(auditStore, &audit.Config{Enabled: true, BufferSize: 100}, zerolog.Nop())
	t.Cleanup(func() { _ = auditLog.Close() })

	rot := &fakeRotator{}
	ann := &fakeAnnouncer{}
	arch := &fakeArchive{records: map[int64]*models.ArchiveRecord{
		7: {SurveyID: 7, Topic: "Tea or coffee?"},
	}}
	deps := Deps{
		Store:     s,
		Archive:   arch,
		Voting:    voting.NewService(s, arch, nil, 24*time.Hour, zerolog.Nop()),
		Queue:     queue.New(s, nil, rot, config.QueueConfig{OnePendingPerUser: true, MaxChargeCount: 5}, time.Second, zerolog.Nop()),
		Rotator:   rot,
		Announcer: ann,
		Admins:    enforcer,
		JWT:       jwtManager,
		Password:  auth.NewPasswordAuthenticator(testUsername, hash),
		Audit:     auditLog,
	}
	handler := NewHandler(deps, cfg, zerolog.Nop())
	router := NewRouter(handler,
		NewChiMiddleware(ChiMiddlewareConfigFromSecurity(cfg.Security)),
		auth.NewMiddleware(jwtManager),
		authz.NewMiddleware(enforcer))

	return &testEnv{store: s, rotator: rot, announcer: ann, jwt: jwtManager, audit: auditStore, server: router.SetupChi()}
}

func (e *testEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, _, err := e.jwt.GenerateToken(userID, role)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	return tok
}

func (e *testEnv) activeSurvey(t *testing.T) *models.Survey {
	t.Helper()
	topic := &models.Topic{
		Topic:   "Tea or coffee?",
		Options: []models.Option{{Name: "Tea"}, {Name: "Coffee"}},
	}
	survey, err := e.store.CreateSurvey(context.Background(), topic, time.Now().UTC())
	if err != nil {
		t.Fatalf("CreateSurvey() error = %v", err)
	}
	return survey
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:1234"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)

	var env envelope
	if ct := rec.Header().Get("Content-Type"); ct == "application/json" {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("Unmarshal(data) error = %v", err)
	}
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, want, rec.Body.String())
	}
}

// waitAudit polls until the async audit writer has stored n events.
func (e *testEnv) waitAudit(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for e.audit.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("audit events = %d, want %d", e.audit.Len(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
