// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package ai

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/galdcup/internal/metrics"
)

// newBreaker trips after 5 consecutive failures, or a 60% failure rate over
// at least 10 requests, and probes again after 2 minutes.
func newBreaker(name string, logger zerolog.Logger) *gobreaker.CircuitBreaker[string] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 5 {
				return true
			}
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logger.Warn().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})
}

// execute runs fn through the breaker and records the outcome.
func (c *Client) execute(fn func() (string, error)) (string, error) {
	result, err := c.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(c.name, "rejected").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(c.name, "failure").Inc()
			counts := c.cb.Counts()
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(c.name).Set(float64(counts.ConsecutiveFailures))
		}
		return "", err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(c.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(c.name).Set(0)
	return result, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
