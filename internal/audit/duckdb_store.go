// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// DuckDBStore implements Store on the archive database.
type DuckDBStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDuckDBStore creates a DuckDB-backed audit store. Call CreateTable
// before use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the audit_events table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	statements := []string{`
		CREATE TABLE IF NOT EXISTS audit_events (
			id          VARCHAR PRIMARY KEY,
			timestamp   TIMESTAMP NOT NULL,
			type        VARCHAR NOT NULL,
			severity    VARCHAR NOT NULL,
			outcome     VARCHAR NOT NULL,
			actor_id    VARCHAR NOT NULL,
			actor_role  VARCHAR,
			target_id   VARCHAR,
			target_type VARCHAR,
			source_ip   VARCHAR NOT NULL,
			user_agent  VARCHAR,
			action      VARCHAR NOT NULL,
			description VARCHAR NOT NULL,
			metadata    VARCHAR,
			request_id  VARCHAR
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_actor_id ON audit_events(actor_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute audit schema statement: %w", err)
		}
	}
	return nil
}

// Save implements Store.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var targetID, targetType *string
	if event.Target != nil {
		targetID, targetType = &event.Target.ID, &event.Target.Type
	}
	var metadata *string
	if len(event.Metadata) > 0 {
		m := string(event.Metadata)
		metadata = &m
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, timestamp, type, severity, outcome,
			actor_id, actor_role, target_id, target_type,
			source_ip, user_agent, action, description, metadata, request_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp.UTC(), string(event.Type), string(event.Severity), string(event.Outcome),
		event.Actor.ID, event.Actor.Role, targetID, targetType,
		event.Source.IPAddress, event.Source.UserAgent, event.Action, event.Description, metadata, event.RequestID)
	if err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}
	return nil
}

// Query implements Store.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := buildQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e                                           Event
			typ, severity, outcome                      string
			role, targetID, targetType, ua, meta, reqID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &typ, &severity, &outcome,
			&e.Actor.ID, &role, &targetID, &targetType,
			&e.Source.IPAddress, &ua, &e.Action, &e.Description, &meta, &reqID); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Type, e.Severity, e.Outcome = EventType(typ), Severity(severity), Outcome(outcome)
		e.Actor.Role = role.String
		if targetID.Valid {
			e.Target = &Target{ID: targetID.String, Type: targetType.String}
		}
		e.Source.UserAgent = ua.String
		if meta.Valid && meta.String != "" {
			e.Metadata = json.RawMessage(meta.String)
		}
		e.RequestID = reqID.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

func buildQuery(filter QueryFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		conditions = append(conditions, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ActorID != "" {
		conditions = append(conditions, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.TargetID != "" {
		conditions = append(conditions, "target_id = ?")
		args = append(args, filter.TargetID)
	}
	if filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.StartTime.UTC())
	}

	var b strings.Builder
	b.WriteString(`SELECT id, timestamp, type, severity, outcome,
		actor_id, actor_role, target_id, target_type,
		source_ip, user_agent, action, description, metadata, request_id
		FROM audit_events`)
	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	b.WriteString(" ORDER BY timestamp DESC, id LIMIT ? OFFSET ?")
	args = append(args, filter.limit(), max(filter.Offset, 0))
	return b.String(), args
}

// Delete implements Store.
func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit events: %w", err)
	}
	return result.RowsAffected()
}
