// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// EventType categorizes audit events.
type EventType string

const (
	// Operator authentication
	EventTypeAuthSuccess  EventType = "auth.success"
	EventTypeAuthFailure  EventType = "auth.failure"
	EventTypeTokenIssued  EventType = "auth.token_issued"
	EventTypeAuthzDenied  EventType = "authz.denied"
	EventTypeRoleAssigned EventType = "admin.role_assigned"
	EventTypeRoleRevoked  EventType = "admin.role_revoked"

	// Engine control
	EventTypeRotationForced EventType = "rotation.forced"
	EventTypeQueueChanged   EventType = "queue.changed"
	EventTypeSuggestion     EventType = "suggestion.moderated"

	// Destinations
	EventTypeDestinationRegistered EventType = "destination.registered"
	EventTypeDestinationRemoved    EventType = "destination.removed"
)

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Outcome indicates whether an action succeeded or failed.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one recorded operator action.
type Event struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Type        EventType       `json:"type"`
	Severity    Severity        `json:"severity"`
	Outcome     Outcome         `json:"outcome"`
	Actor       Actor           `json:"actor"`
	Target      *Target         `json:"target,omitempty"`
	Source      Source          `json:"source"`
	Action      string          `json:"action"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
}

// Actor is who performed an action.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

// Target is the object of an action: a survey, suggestion, queued topic,
// destination or administrator.
type Target struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Source is where the request came from.
type Source struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Store persists audit events.
type Store interface {
	Save(ctx context.Context, event *Event) error
	// Query returns matching events, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)
	// Delete removes events older than olderThan and returns the count.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// QueryFilter selects audit events.
type QueryFilter struct {
	Types     []EventType `json:"types,omitempty"`
	ActorID   string      `json:"actor_id,omitempty"`
	TargetID  string      `json:"target_id,omitempty"`
	StartTime *time.Time  `json:"start_time,omitempty"`
	Limit     int         `json:"limit,omitempty"`
	Offset    int         `json:"offset,omitempty"`
}

// DefaultQueryFilter returns the newest 100 events.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{Limit: 100}
}

func (f *QueryFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return 100
	}
	return f.Limit
}

func (f *QueryFilter) matches(e *Event) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ActorID != "" && e.Actor.ID != f.ActorID {
		return false
	}
	if f.TargetID != "" && (e.Target == nil || e.Target.ID != f.TargetID) {
		return false
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	return true
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
