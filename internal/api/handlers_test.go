// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package api

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/tomtom215/galdcup/internal/audit"
	"github.com/tomtom215/galdcup/internal/auth"
	"github.com/tomtom215/galdcup/internal/broadcast"
	"github.com/tomtom215/galdcup/internal/models"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/health", "", nil)
	wantStatus(t, rec, http.StatusOK)

	var health HealthStatus
	decodeData(t, body, &health)
	if health.Status != "healthy" || !health.StoreConnected || !health.ArchiveConnected {
		t.Errorf("health = %+v", health)
	}
	if health.ActiveSurveyID != 0 {
		t.Errorf("ActiveSurveyID = %d, want 0 without a survey", health.ActiveSurveyID)
	}

	survey := env.activeSurvey(t)
	_, body = env.do(t, http.MethodGet, "/health", "", nil)
	decodeData(t, body, &health)
	if health.ActiveSurveyID != survey.ID {
		t.Errorf("ActiveSurveyID = %d, want %d", health.ActiveSurveyID, survey.ID)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized},
		{"viewer cannot moderate", env.token(t, "u1", auth.RoleViewer), http.StatusForbidden},
		{"bridge cannot moderate", env.token(t, "bot", auth.RoleBridge), http.StatusForbidden},
		{"admin claim is not trusted", env.token(t, "u1", auth.RoleAdmin), http.StatusForbidden},
		{"master can moderate", env.token(t, testUsername, auth.RoleMaster), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := env.do(t, http.MethodGet, "/api/v1/queue", tt.token, nil)
			wantStatus(t, rec, tt.want)
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Username: testUsername, Password: "wrong password"})
	wantStatus(t, rec, http.StatusUnauthorized)
	if body.Error == nil || body.Error.Code != ErrCodeUnauthorized {
		t.Errorf("error = %+v", body.Error)
	}

	rec, body = env.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Username: testUsername})
	wantStatus(t, rec, http.StatusBadRequest)
	if body.Error == nil || body.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error = %+v", body.Error)
	}

	rec, body = env.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Username: testUsername, Password: testPassword})
	wantStatus(t, rec, http.StatusOK)
	var tok TokenResponse
	decodeData(t, body, &tok)
	if tok.Role != auth.RoleMaster || tok.Token == "" {
		t.Fatalf("token = %+v", tok)
	}

	rec, _ = env.do(t, http.MethodGet, "/api/v1/admins", tok.Token, nil)
	wantStatus(t, rec, http.StatusOK)
}

func TestIssueToken(t *testing.T) {
	env := newTestEnv(t)
	master := env.token(t, testUsername, auth.RoleMaster)

	rec, body := env.do(t, http.MethodPost, "/api/v1/auth/tokens", master, TokenRequest{UserID: "bot", Role: auth.RoleBridge})
	wantStatus(t, rec, http.StatusCreated)
	var tok TokenResponse
	decodeData(t, body, &tok)
	if tok.Role != auth.RoleBridge {
		t.Errorf("Role = %q", tok.Role)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/tokens", master, TokenRequest{UserID: "x", Role: auth.RoleAdmin})
	wantStatus(t, rec, http.StatusBadRequest)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/tokens", tok.Token, TokenRequest{UserID: "x", Role: auth.RoleViewer})
	wantStatus(t, rec, http.StatusForbidden)
}

func TestSubmitVote(t *testing.T) {
	env := newTestEnv(t)
	bridge := env.token(t, "bot", auth.RoleBridge)
	survey := env.activeSurvey(t)

	vote := map[string]interface{}{
		"survey_id": survey.ID,
		"user_id":   "u1",
		"tenant_id": "g1",
		"selected":  []string{"Tea"},
	}
	rec, _ := env.do(t, http.MethodPost, "/api/v1/votes", bridge, vote)
	wantStatus(t, rec, http.StatusCreated)

	vote["selected"] = []string{"Coffee"}
	rec, body := env.do(t, http.MethodPost, "/api/v1/votes", bridge, vote)
	wantStatus(t, rec, http.StatusOK)
	var out map[string]bool
	decodeData(t, body, &out)
	if !out["replaced"] {
		t.Error("second vote should replace the first")
	}

	rec, _ = env.do(t, http.MethodPost, "/api/v1/votes/opinion", bridge, OpinionRequest{SurveyID: survey.ID, UserID: "u1", Opinion: "coffee wins"})
	wantStatus(t, rec, http.StatusOK)

	tests := []struct {
		name string
		body interface{}
		want int
		code string
	}{
		{"unknown survey", map[string]interface{}{"survey_id": survey.ID + 100, "user_id": "u1", "selected": []string{"Tea"}}, http.StatusNotFound, ErrCodeNotFound},
		{"unknown option", map[string]interface{}{"survey_id": survey.ID, "user_id": "u1", "selected": []string{"Milk"}}, http.StatusBadRequest, ErrCodeBadRequest},
		{"missing user", map[string]interface{}{"survey_id": survey.ID, "selected": []string{"Tea"}}, http.StatusBadRequest, ErrCodeValidationFailed},
		{"unknown field", map[string]interface{}{"survey_id": survey.ID, "user_id": "u1", "vote": "Tea"}, http.StatusBadRequest, ErrCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, http.MethodPost, "/api/v1/votes", bridge, tt.body)
			wantStatus(t, rec, tt.want)
			if body.Error == nil || body.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", body.Error, tt.code)
			}
		})
	}

	viewer := env.token(t, "u1", auth.RoleViewer)
	rec, body = env.do(t, http.MethodGet, "/api/v1/surveys/active/status", viewer, nil)
	wantStatus(t, rec, http.StatusOK)
	var status models.SurveyStatus
	decodeData(t, body, &status)
	if status.Survey == nil || status.Survey.ID != survey.ID || status.TotalRespondents != 1 {
		t.Errorf("status = %+v", status)
	}
}

func TestArchiveEndpoints(t *testing.T) {
	env := newTestEnv(t)
	viewer := env.token(t, "u1", auth.RoleViewer)

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/archive/7", http.StatusOK},
		{"/api/v1/archive/8", http.StatusNotFound},
		{"/api/v1/archive/abc", http.StatusBadRequest},
		{"/api/v1/archive?limit=5", http.StatusOK},
		{"/api/v1/archive?limit=500", http.StatusBadRequest},
		{"/api/v1/archive?limit=x", http.StatusBadRequest},
		{"/api/v1/surveys/active", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec, _ := env.do(t, http.MethodGet, tt.path, viewer, nil)
			wantStatus(t, rec, tt.want)
		})
	}
}

func TestQueueFlow(t *testing.T) {
	env := newTestEnv(t)
	bridge := env.token(t, "bot", auth.RoleBridge)
	master := env.token(t, testMaster, auth.RoleViewer)

	topic := models.Topic{Topic: "Cats or dogs?", Options: []models.Option{{Name: "Cats"}, {Name: "Dogs"}}}
	rec, body := env.do(t, http.MethodPost, "/api/v1/suggestions", bridge, SuggestionRequest{UserID: "u1", UserName: "Ann", Topic: topic})
	wantStatus(t, rec, http.StatusCreated)
	var sug models.SuggestedTopic
	decodeData(t, body, &sug)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/suggestions", bridge, SuggestionRequest{UserID: "u1", Topic: topic})
	wantStatus(t, rec, http.StatusConflict)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/suggestions", bridge, nil)
	wantStatus(t, rec, http.StatusForbidden)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/suggestions/"+sug.ID+"/promote", master, nil)
	wantStatus(t, rec, http.StatusOK)

	second := models.Topic{Topic: "Summer or winter?", Options: []models.Option{{Name: "Summer"}, {Name: "Winter"}}}
	rec, _ = env.do(t, http.MethodPost, "/api/v1/queue", master, second)
	wantStatus(t, rec, http.StatusCreated)

	rec, body = env.do(t, http.MethodGet, "/api/v1/queue", master, nil)
	wantStatus(t, rec, http.StatusOK)
	var queued []*models.QueuedTopic
	decodeData(t, body, &queued)
	if len(queued) != 2 || queued[0].Topic.Topic != "Cats or dogs?" {
		t.Fatalf("queue = %+v", queued)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/v1/queue/swap", master, SwapRequest{A: queued[0].Position, B: queued[1].Position})
	wantStatus(t, rec, http.StatusOK)

	rec, body = env.do(t, http.MethodPost, "/api/v1/queue/"+queued[0].ID+"/down", master, nil)
	wantStatus(t, rec, http.StatusConflict)
	if body.Error == nil || body.Error.Code != ErrCodeConflict {
		t.Errorf("error = %+v", body.Error)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/v1/queue/"+queued[0].ID+"/return", master, nil)
	wantStatus(t, rec, http.StatusOK)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/queue/charge", master, ChargeRequest{Count: 2})
	wantStatus(t, rec, http.StatusServiceUnavailable)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/queue", master, models.Topic{Topic: "Lonely", Options: []models.Option{{Name: "Yes"}}})
	wantStatus(t, rec, http.StatusBadRequest)

	rec, _ = env.do(t, http.MethodDelete, "/api/v1/queue/"+queued[1].ID, master, nil)
	wantStatus(t, rec, http.StatusOK)
	rec, _ = env.do(t, http.MethodGet, "/api/v1/queue/"+queued[1].ID, master, nil)
	wantStatus(t, rec, http.StatusNotFound)
}

func TestForceRotation(t *testing.T) {
	env := newTestEnv(t)
	master := env.token(t, testMaster, auth.RoleViewer)

	rec, body := env.do(t, http.MethodPost, "/api/v1/rotation/force", master, nil)
	wantStatus(t, rec, http.StatusOK)
	var out RotationResponse
	decodeData(t, body, &out)
	if out.Results == nil || out.Results.Delivered != 1 {
		t.Errorf("results = %+v", out.Results)
	}

	forced := models.Topic{Topic: "Rain or shine?", Options: []models.Option{{Name: "Rain"}, {Name: "Shine"}}}
	rec, _ = env.do(t, http.MethodPost, "/api/v1/rotation/force", master, forced)
	wantStatus(t, rec, http.StatusOK)

	calls := env.rotator.calls()
	if len(calls) != 2 {
		t.Fatalf("rotations = %d, want 2", len(calls))
	}
	if calls[0].Forced != nil || calls[0].RequestedBy != testMaster {
		t.Errorf("first request = %+v", calls[0])
	}
	if calls[1].Forced == nil || calls[1].Forced.Topic != "Rain or shine?" {
		t.Errorf("second request = %+v", calls[1])
	}
}

func TestForceSuggestion(t *testing.T) {
	env := newTestEnv(t)
	bridge := env.token(t, "bot", auth.RoleBridge)
	master := env.token(t, testMaster, auth.RoleViewer)

	topic := models.Topic{Topic: "Beach or mountains?", Options: []models.Option{{Name: "Beach"}, {Name: "Mountains"}}}
	_, body := env.do(t, http.MethodPost, "/api/v1/suggestions", bridge, SuggestionRequest{UserID: "u2", Topic: topic})
	var sug models.SuggestedTopic
	decodeData(t, body, &sug)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/suggestions/"+sug.ID+"/force", master, nil)
	wantStatus(t, rec, http.StatusOK)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/suggestions/"+sug.ID, master, nil)
	wantStatus(t, rec, http.StatusNotFound)

	calls := env.rotator.calls()
	if len(calls) != 1 || calls[0].Forced == nil || calls[0].Forced.Topic != "Beach or mountains?" {
		t.Errorf("rotations = %+v", calls)
	}
}

func TestPutDestinationAnnounces(t *testing.T) {
	env := newTestEnv(t)
	master := env.token(t, testMaster, auth.RoleViewer)

	rec, body := env.do(t, http.MethodPut, "/api/v1/destinations/g1", master, DestinationRequest{ChannelID: "c1", OwnerID: "o1"})
	wantStatus(t, rec, http.StatusOK)
	var resp DestinationResponse
	decodeData(t, body, &resp)
	if resp.Announcement != nil {
		t.Errorf("announcement without an active survey: %+v", resp.Announcement)
	}

	env.activeSurvey(t)
	rec, body = env.do(t, http.MethodPut, "/api/v1/destinations/g2", master, DestinationRequest{ChannelID: "c2"})
	wantStatus(t, rec, http.StatusOK)
	decodeData(t, body, &resp)
	if resp.Announcement == nil || !resp.Announcement.Delivered {
		t.Fatalf("announcement = %+v", resp.Announcement)
	}
	if len(env.announcer.dests) != 1 || env.announcer.dests[0] != "g2" {
		t.Errorf("announced to %v", env.announcer.dests)
	}
	if env.announcer.msgs[0].Header != broadcast.HeaderNewChannel {
		t.Errorf("header = %q", env.announcer.msgs[0].Header)
	}

	rec, body = env.do(t, http.MethodGet, "/api/v1/destinations", master, nil)
	wantStatus(t, rec, http.StatusOK)
	var dests []*models.Destination
	decodeData(t, body, &dests)
	if len(dests) != 2 {
		t.Errorf("destinations = %d, want 2", len(dests))
	}

	rec, _ = env.do(t, http.MethodDelete, "/api/v1/destinations/g1", master, nil)
	wantStatus(t, rec, http.StatusOK)
	rec, _ = env.do(t, http.MethodDelete, "/api/v1/destinations/g1", master, nil)
	wantStatus(t, rec, http.StatusNotFound)
}

func TestAdminManagement(t *testing.T) {
	env := newTestEnv(t)
	master := env.token(t, testMaster, auth.RoleViewer)
	candidate := env.token(t, "111", auth.RoleViewer)

	rec, _ := env.do(t, http.MethodGet, "/api/v1/queue", candidate, nil)
	wantStatus(t, rec, http.StatusForbidden)

	rec, body := env.do(t, http.MethodPost, "/api/v1/admins", master, AdminRequest{UserID: "111"})
	wantStatus(t, rec, http.StatusCreated)
	var admin models.Admin
	decodeData(t, body, &admin)
	if admin.Role != models.RoleAdmin || admin.AddedBy != testMaster {
		t.Errorf("admin = %+v", admin)
	}

	rec, _ = env.do(t, http.MethodGet, "/api/v1/queue", candidate, nil)
	wantStatus(t, rec, http.StatusOK)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/admins", candidate, AdminRequest{UserID: "222"})
	wantStatus(t, rec, http.StatusForbidden)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/admins", master, AdminRequest{UserID: testMaster})
	wantStatus(t, rec, http.StatusConflict)
	rec, _ = env.do(t, http.MethodDelete, "/api/v1/admins/"+testMaster, master, nil)
	wantStatus(t, rec, http.StatusConflict)

	rec, _ = env.do(t, http.MethodDelete, "/api/v1/admins/111", master, nil)
	wantStatus(t, rec, http.StatusOK)
	rec, _ = env.do(t, http.MethodGet, "/api/v1/queue", candidate, nil)
	wantStatus(t, rec, http.StatusForbidden)

	rec, _ = env.do(t, http.MethodDelete, "/api/v1/admins/111", master, nil)
	wantStatus(t, rec, http.StatusNotFound)
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	master := env.token(t, testMaster, auth.RoleViewer)
	viewer := env.token(t, "u1", auth.RoleViewer)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/admins", master, AdminRequest{UserID: "111"})
	wantStatus(t, rec, http.StatusCreated)
	rec, _ = env.do(t, http.MethodPost, "/api/v1/rotation/force", master, nil)
	wantStatus(t, rec, http.StatusOK)
	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Username: testUsername, Password: "wrong password"})
	wantStatus(t, rec, http.StatusUnauthorized)
	env.waitAudit(t, 3)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/audit", viewer, nil)
	wantStatus(t, rec, http.StatusForbidden)

	rec, body := env.do(t, http.MethodGet, "/api/v1/audit?type=admin.role_assigned,rotation.forced", master, nil)
	wantStatus(t, rec, http.StatusOK)
	var events []audit.Event
	decodeData(t, body, &events)
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2: %+v", len(events), events)
	}
	for _, e := range events {
		if e.Actor.ID != testMaster || e.Outcome != audit.OutcomeSuccess {
			t.Errorf("event = %+v", e)
		}
	}

	rec, body = env.do(t, http.MethodGet, "/api/v1/audit?type=auth.failure", master, nil)
	wantStatus(t, rec, http.StatusOK)
	decodeData(t, body, &events)
	if len(events) != 1 || events[0].Actor.ID != testUsername || events[0].Source.IPAddress != "192.0.2.1" {
		t.Errorf("auth failures = %+v", events)
	}
}

func TestClosedStore(t *testing.T) {
	env := newTestEnv(t)
	viewer := env.token(t, "u1", auth.RoleViewer)

	if err := env.store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	rec, body := env.do(t, http.MethodGet, "/api/v1/surveys/active", viewer, nil)
	wantStatus(t, rec, http.StatusServiceUnavailable)
	if body.Error == nil || body.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("error = %+v", body.Error)
	}

	rec, _ = env.do(t, http.MethodGet, "/health", "", nil)
	wantStatus(t, rec, http.StatusServiceUnavailable)
}

func TestGetIntParam(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 5, false},
		{"limit=3", 3, false},
		{"limit=-1", -1, false},
		{"limit=three", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
			got, err := getIntParam(req, "limit", 5)
			if (err != nil) != tt.wantErr {
				t.Fatalf("getIntParam() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("getIntParam() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSanitizeLogValue(t *testing.T) {
	got := sanitizeLogValue("a\nb\x7f" + strconv.Itoa(1))
	if got != `a\x0ab\x7f1` {
		t.Errorf("sanitizeLogValue() = %q", got)
	}
}
