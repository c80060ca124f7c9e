// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package archive persists closed survey results in DuckDB.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/galdcup/internal/metrics"
	"github.com/tomtom215/galdcup/internal/models"
)

// ErrNotFound is returned when no record exists for a survey id.
var ErrNotFound = errors.New("archive record not found")

const schema = `
CREATE TABLE IF NOT EXISTS survey_archive (
	survey_id         BIGINT PRIMARY KEY,
	topic             VARCHAR NOT NULL,
	total_respondents INTEGER NOT NULL,
	counts            VARCHAR NOT NULL,
	summary           VARCHAR NOT NULL,
	clusters          VARCHAR NOT NULL,
	closed_at         TIMESTAMP NOT NULL
)`

// Archive is a DuckDB-backed result archive.
type Archive struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// Open opens the archive at path, creating it when missing. An empty path
// opens an in-memory database.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*Archive, error) {
	connStr := ":memory:?autoinstall_known_extensions=false&autoload_known_extensions=false"
	if path != "" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create archive directory %s: %w", dir, err)
			}
		}
		connStr = fmt.Sprintf("%s?access_mode=read_write&autoinstall_known_extensions=false&autoload_known_extensions=false", path)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("Archive opened")
	return &Archive{conn: conn, logger: logger}, nil
}

// Save writes rec, replacing any record for the same survey.
func (a *Archive) Save(ctx context.Context, rec *models.ArchiveRecord) (err error) {
	defer func() {
		result := "success"
		if err != nil {
			result = "failure"
		}
		metrics.ArchiveWrites.WithLabelValues(result).Inc()
	}()

	counts, err := json.Marshal(nonNil(rec.Counts))
	if err != nil {
		return fmt.Errorf("encode counts: %w", err)
	}
	clusters, err := json.Marshal(nonNil(rec.Clusters))
	if err != nil {
		return fmt.Errorf("encode clusters: %w", err)
	}

	_, err = a.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO survey_archive
			(survey_id, topic, total_respondents, counts, summary, clusters, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SurveyID, rec.Topic, rec.TotalRespondents, string(counts), rec.Summary, string(clusters), rec.ClosedAt.UTC())
	if err != nil {
		return fmt.Errorf("save archive record %d: %w", rec.SurveyID, err)
	}
	return nil
}

// Get returns the record for a survey.
func (a *Archive) Get(ctx context.Context, surveyID int64) (*models.ArchiveRecord, error) {
	row := a.conn.QueryRowContext(ctx, `
		SELECT survey_id, topic, total_respondents, counts, summary, clusters, closed_at
		FROM survey_archive WHERE survey_id = ?`, surveyID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// Recent returns up to limit records, most recently closed first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]*models.ArchiveRecord, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := a.conn.QueryContext(ctx, `
		SELECT survey_id, topic, total_respondents, counts, summary, clusters, closed_at
		FROM survey_archive
		ORDER BY closed_at DESC, survey_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent archive records: %w", err)
	}
	defer rows.Close()

	var out []*models.ArchiveRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Totals returns the number of archived surveys and the summed respondents.
func (a *Archive) Totals(ctx context.Context) (surveys, respondents int64, err error) {
	err = a.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total_respondents), 0) FROM survey_archive`).Scan(&surveys, &respondents)
	return surveys, respondents, err
}

// Conn returns the underlying connection for tables that share the
// archive file.
func (a *Archive) Conn() *sql.DB {
	return a.conn
}

// Ping checks the connection.
func (a *Archive) Ping(ctx context.Context) error {
	return a.conn.PingContext(ctx)
}

// Close checkpoints and closes the database.
func (a *Archive) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := a.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		a.logger.Warn().Err(err).Msg("Archive checkpoint before close failed")
	}
	return a.conn.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.ArchiveRecord, error) {
	var (
		rec      models.ArchiveRecord
		counts   string
		clusters string
	)
	if err := s.Scan(&rec.SurveyID, &rec.Topic, &rec.TotalRespondents, &counts, &rec.Summary, &clusters, &rec.ClosedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(counts), &rec.Counts); err != nil {
		return nil, fmt.Errorf("decode counts for survey %d: %w", rec.SurveyID, err)
	}
	if err := json.Unmarshal([]byte(clusters), &rec.Clusters); err != nil {
		return nil, fmt.Errorf("decode clusters for survey %d: %w", rec.SurveyID, err)
	}
	return &rec, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
