// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Rotation Metrics
	RotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_rotations_total",
			Help: "Total number of rotation attempts",
		},
		[]string{"trigger", "result"}, // trigger: "timer", "forced"; result: "success", "failure", "shared", "skipped"
	)

	RotationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "survey_rotation_duration_seconds",
			Help:    "Duration of a rotation from close to broadcast",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	TopicSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_topic_selections_total",
			Help: "Topics selected for new surveys by provenance",
		},
		[]string{"provenance"}, // "forced", "curated", "ai", "fallback"
	)

	ActiveSurveyID = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "survey_active_id",
			Help: "Identifier of the currently active survey (0 when none)",
		},
	)

	// Vote Metrics
	VotesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_votes_recorded_total",
			Help: "Total number of recorded or replaced votes",
		},
		[]string{"kind"}, // "selection", "opinion"
	)

	VotesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_votes_rejected_total",
			Help: "Votes rejected before recording",
		},
		[]string{"reason"},
	)

	// Queue Metrics
	QueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "topic_queue_length",
			Help: "Current number of queued topics",
		},
	)

	SuggestionsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "topic_suggestions_pending",
			Help: "Current number of pending suggestions",
		},
	)

	QueueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topic_queue_operations_total",
			Help: "Queue and suggestion operations",
		},
		[]string{"operation"},
	)

	// Broadcast Metrics
	BroadcastDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_deliveries_total",
			Help: "Announcement deliveries by outcome",
		},
		[]string{"result"}, // "delivered", "failed", "disabled"
	)

	BroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcast_duration_seconds",
			Help:    "Duration of a full broadcast to all destinations",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	BroadcastRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_retries_total",
			Help: "Total number of delivery retry attempts",
		},
	)

	DestinationsEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_destinations_enabled",
			Help: "Number of enabled destinations at the last broadcast",
		},
	)

	// Collaborator Metrics
	CollaboratorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collaborator_calls_total",
			Help: "Calls to optional collaborators by outcome",
		},
		[]string{"collaborator", "operation", "result"},
	)

	CollaboratorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collaborator_call_duration_seconds",
			Help:    "Duration of collaborator calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"collaborator", "operation"},
	)

	// Archive Metrics
	ArchiveWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_writes_total",
			Help: "Archive record writes by outcome",
		},
		[]string{"result"},
	)

	// Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of live store transactions",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	StoreConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_txn_conflicts_total",
			Help: "Transaction conflicts retried by the live store",
		},
		[]string{"operation"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Event Bus Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Survey lifecycle events published",
		},
		[]string{"topic"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordRotation records a rotation attempt.
func RecordRotation(trigger, result string, duration time.Duration) {
	RotationsTotal.WithLabelValues(trigger, result).Inc()
	if result != "shared" && result != "skipped" {
		RotationDuration.Observe(duration.Seconds())
	}
}

// RecordCollaboratorCall records one call to an optional collaborator.
func RecordCollaboratorCall(collaborator, operation string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	CollaboratorCalls.WithLabelValues(collaborator, operation, result).Inc()
	CollaboratorDuration.WithLabelValues(collaborator, operation).Observe(duration.Seconds())
}

// RecordStoreOp records a live store transaction.
func RecordStoreOp(operation string, duration time.Duration) {
	StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordCacheAccess records a cache hit or miss.
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cacheType).Inc()
		return
	}
	CacheMisses.WithLabelValues(cacheType).Inc()
}
