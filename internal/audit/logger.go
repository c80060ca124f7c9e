// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package audit

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/galdcup/internal/logging"
)

// Config holds configuration for the audit logger.
type Config struct {
	Enabled bool
	// RetentionDays is how long events are kept. Zero keeps them forever.
	RetentionDays   int
	CleanupInterval time.Duration
	// BufferSize is the size of the async write buffer.
	BufferSize int
	// LogToStdout also writes events to the application log.
	LogToStdout bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		RetentionDays:   90,
		CleanupInterval: 24 * time.Hour,
		BufferSize:      1000,
	}
}

// Logger records operator actions asynchronously. A nil *Logger discards
// everything.
type Logger struct {
	config    *Config
	store     Store
	logger    zerolog.Logger
	eventChan chan *Event
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewLogger creates a logger and starts its writer.
func NewLogger(store Store, config *Config, logger zerolog.Logger) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 24 * time.Hour
	}

	l := &Logger{
		config:    config,
		store:     store,
		logger:    logger.With().Str("component", "audit").Logger(),
		eventChan: make(chan *Event, config.BufferSize),
		stopChan:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.asyncWriter()
	return l
}

func (l *Logger) asyncWriter() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stopChan:
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	if l.config.LogToStdout {
		l.logger.Info().
			Str("type", string(event.Type)).
			Str("actor", event.Actor.ID).
			Str("action", event.Action).
			Str("outcome", string(event.Outcome)).
			Msg(event.Description)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.Save(ctx, event); err != nil {
		l.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to save audit event")
	}
}

// Log queues an event. Missing ids and timestamps are filled in. The event
// is dropped when the buffer is full.
func (l *Logger) Log(event *Event) {
	if l == nil || !l.config.Enabled {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}

	select {
	case <-l.stopChan:
		return
	default:
	}
	select {
	case l.eventChan <- event:
	default:
		l.logger.Warn().Str("event_id", event.ID).Msg("Audit event buffer full, dropping event")
	}
}

// LogAction records an operator action taken through an HTTP request.
func (l *Logger) LogAction(r *http.Request, actor Actor, typ EventType, outcome Outcome, target *Target, action, description string, metadata interface{}) {
	if l == nil {
		return
	}
	severity := SeverityInfo
	if outcome == OutcomeFailure {
		severity = SeverityWarning
	}
	event := &Event{
		Type:        typ,
		Severity:    severity,
		Outcome:     outcome,
		Actor:       actor,
		Target:      target,
		Source:      SourceFromRequest(r),
		Action:      action,
		Description: description,
		RequestID:   logging.RequestIDFromContext(r.Context()),
	}
	if metadata != nil {
		event.Metadata = mustJSON(metadata)
	}
	l.Log(event)
}

// Query reads events from the store.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Serve runs the retention cleanup until ctx is canceled.
func (l *Logger) Serve(ctx context.Context) error {
	if l.config.RetentionDays <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -l.config.RetentionDays)
			count, err := l.store.Delete(ctx, cutoff)
			if err != nil {
				l.logger.Error().Err(err).Msg("Audit cleanup error")
			} else if count > 0 {
				l.logger.Info().Int64("count", count).Msg("Cleaned up old audit events")
			}
		}
	}
}

// String implements fmt.Stringer for suture's event log.
func (l *Logger) String() string {
	return "audit-retention"
}

// Close flushes buffered events and stops the writer.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
	return nil
}

// SourceFromRequest extracts the client address. RemoteAddr is already
// rewritten by the RealIP middleware when behind a proxy.
func SourceFromRequest(r *http.Request) Source {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return Source{IPAddress: ip, UserAgent: r.UserAgent()}
}
