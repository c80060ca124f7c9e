// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package broadcast delivers announcements and results to every enabled
// destination.
//
// Each destination is processed independently by a bounded worker pool
// sharing one rate limiter:
//   - ErrDestinationGone and ErrPermissionDenied disable the destination
//     and notify its owner
//   - RetryableError is retried with exponential backoff, honoring the
//     remote retry-after
//   - any other error is recorded and the destination skipped
//
// No destination failure aborts the batch.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/galdcup/internal/config"
	"github.com/tomtom215/galdcup/internal/metrics"
	"github.com/tomtom215/galdcup/internal/models"
)

// Messenger is the chat platform surface used for delivery.
type Messenger interface {
	// ResolveChannel checks that the channel exists and is reachable.
	ResolveChannel(ctx context.Context, channelID string) error
	// Send posts msg and returns the platform message id.
	Send(ctx context.Context, channelID string, msg *Message) (string, error)
	Pin(ctx context.Context, channelID, messageID string) error
	Unpin(ctx context.Context, channelID, messageID string) error
	// NotifyOwner sends a direct message to a tenant owner.
	NotifyOwner(ctx context.Context, ownerID, text string) error
}

// DestinationStore is the slice of the persistence gateway the dispatcher needs.
type DestinationStore interface {
	ListDestinations(ctx context.Context, enabledOnly bool) ([]*models.Destination, error)
	SetDestinationEnabled(ctx context.Context, tenantID string, enabled bool, reason string) error
	SetPinnedMessage(ctx context.Context, tenantID, messageID string) error
}

// Composer builds the message for one destination. Returning nil skips it.
type Composer func(dest *models.Destination) *Message

// Status is the overall outcome of a broadcast.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
	StatusEmpty     Status = "empty"
)

// Result is the outcome for one destination.
type Result struct {
	TenantID  string
	ChannelID string
	Delivered bool
	MessageID string
	Pinned    bool
	// Disabled is set when the failure disabled the destination.
	Disabled bool
	Attempts int
	Err      error
}

// Report aggregates a broadcast.
type Report struct {
	Status      Status
	Total       int
	Delivered   int
	Failed      int
	Results     []Result
	StartedAt   time.Time
	CompletedAt time.Time
}

// Disabled returns the tenants disabled during the broadcast.
func (r *Report) Disabled() []string {
	var out []string
	for _, res := range r.Results {
		if res.Disabled {
			out = append(out, res.TenantID)
		}
	}
	return out
}

// Options controls one broadcast.
type Options struct {
	// Pin makes the message the destination's pinned announcement, retiring
	// the previous one.
	Pin bool
	// Kind labels log lines ("results", "announcement").
	Kind string
}

// Dispatcher fans messages out to destinations.
type Dispatcher struct {
	store        DestinationStore
	messenger    Messenger
	limiter      *rate.Limiter
	logger       zerolog.Logger
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	parallelism  int
	notifyOwners bool
}

// NewDispatcher creates a dispatcher. Zero config values get defaults.
func NewDispatcher(store DestinationStore, messenger Messenger, cfg config.BroadcastConfig, logger zerolog.Logger) *Dispatcher {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 5
	}
	limit := rate.Limit(cfg.RatePerSec)
	if cfg.RatePerSec <= 0 {
		limit = rate.Inf
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}

	return &Dispatcher{
		store:        store,
		messenger:    messenger,
		limiter:      rate.NewLimiter(limit, cfg.RateBurst),
		logger:       logger.With().Str("component", "broadcast").Logger(),
		maxRetries:   cfg.MaxRetries,
		baseDelay:    cfg.BaseDelay,
		maxDelay:     cfg.MaxDelay,
		parallelism:  cfg.Parallelism,
		notifyOwners: cfg.NotifyOwners,
	}
}

// Broadcast delivers compose(dest) to every enabled destination. The error
// is non-nil only when the destination list cannot be read.
func (d *Dispatcher) Broadcast(ctx context.Context, compose Composer, opts Options) (*Report, error) {
	dests, err := d.store.ListDestinations(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	metrics.DestinationsEnabled.Set(float64(len(dests)))
	return d.deliverAll(ctx, dests, compose, opts), nil
}

// AnnounceTo delivers a single pinned announcement to one destination, used
// right after a destination is registered.
func (d *Dispatcher) AnnounceTo(ctx context.Context, dest *models.Destination, msg *Message) Result {
	report := d.deliverAll(ctx, []*models.Destination{dest}, func(*models.Destination) *Message { return msg },
		Options{Pin: true, Kind: "announcement"})
	if len(report.Results) == 0 {
		return Result{TenantID: dest.TenantID, ChannelID: dest.ChannelID}
	}
	return report.Results[0]
}

func (d *Dispatcher) deliverAll(ctx context.Context, dests []*models.Destination, compose Composer, opts Options) *Report {
	report := &Report{StartedAt: time.Now()}
	defer func() {
		report.CompletedAt = time.Now()
		metrics.BroadcastDuration.Observe(report.CompletedAt.Sub(report.StartedAt).Seconds())
	}()

	type job struct {
		dest *models.Destination
		msg  *Message
	}
	var jobs []job
	for _, dest := range dests {
		if msg := compose(dest); msg != nil {
			jobs = append(jobs, job{dest: dest, msg: msg})
		}
	}
	report.Total = len(jobs)
	if len(jobs) == 0 {
		report.Status = StatusEmpty
		return report
	}

	d.logger.Info().Str("kind", opts.Kind).Int("destinations", len(jobs)).Msg("Starting broadcast")

	results := make(chan Result, len(jobs))
	jobChan := make(chan job, len(jobs))
	var wg sync.WaitGroup

	workerCount := min(d.parallelism, len(jobs))
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobChan {
				results <- d.deliver(ctx, j.dest, j.msg, opts)
			}
		}()
	}

	for _, j := range jobs {
		jobChan <- j
	}
	close(jobChan)
	wg.Wait()
	close(results)

	for res := range results {
		report.Results = append(report.Results, res)
		if res.Delivered {
			report.Delivered++
		} else {
			report.Failed++
		}
	}

	switch {
	case report.Failed == 0:
		report.Status = StatusDelivered
	case report.Delivered == 0:
		report.Status = StatusFailed
	default:
		report.Status = StatusPartial
	}

	d.logger.Info().
		Str("kind", opts.Kind).
		Str("status", string(report.Status)).
		Int("delivered", report.Delivered).
		Int("failed", report.Failed).
		Msg("Broadcast completed")
	return report
}

// deliver handles one destination with retries.
func (d *Dispatcher) deliver(ctx context.Context, dest *models.Destination, msg *Message, opts Options) Result {
	res := Result{TenantID: dest.TenantID, ChannelID: dest.ChannelID}
	log := d.logger.With().Str("tenant_id", dest.TenantID).Str("channel_id", dest.ChannelID).Logger()

	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			delay := d.backoff(attempt, lastErr)
			log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("Retrying delivery")
			metrics.BroadcastRetries.Inc()
			select {
			case <-ctx.Done():
				res.Err = ctx.Err()
				metrics.BroadcastDeliveries.WithLabelValues("failed").Inc()
				return res
			case <-time.After(delay):
			}
		}

		if err := d.limiter.Wait(ctx); err != nil {
			res.Err = err
			metrics.BroadcastDeliveries.WithLabelValues("failed").Inc()
			return res
		}

		res.Attempts = attempt + 1
		msgID, err := d.send(ctx, dest, msg)
		if err == nil {
			res.Delivered = true
			res.MessageID = msgID
			metrics.BroadcastDeliveries.WithLabelValues("delivered").Inc()
			if opts.Pin {
				res.Pinned = d.repin(ctx, dest, msgID, log)
			}
			return res
		}
		lastErr = err

		if errors.Is(err, ErrDestinationGone) || errors.Is(err, ErrPermissionDenied) {
			res.Err = err
			res.Disabled = d.disable(ctx, dest, err, log)
			metrics.BroadcastDeliveries.WithLabelValues("disabled").Inc()
			return res
		}

		var retryable *RetryableError
		if !errors.As(err, &retryable) {
			log.Warn().Err(err).Msg("Permanent delivery error, skipping destination")
			res.Err = err
			metrics.BroadcastDeliveries.WithLabelValues("failed").Inc()
			return res
		}
		log.Debug().Err(err).Int("attempt", attempt).Msg("Transient delivery error")
	}

	res.Err = fmt.Errorf("delivery failed after %d attempts: %w", res.Attempts, lastErr)
	log.Warn().Err(lastErr).Int("attempts", res.Attempts).Msg("Delivery retries exhausted")
	metrics.BroadcastDeliveries.WithLabelValues("failed").Inc()
	return res
}

func (d *Dispatcher) send(ctx context.Context, dest *models.Destination, msg *Message) (string, error) {
	if err := d.messenger.ResolveChannel(ctx, dest.ChannelID); err != nil {
		return "", err
	}
	return d.messenger.Send(ctx, dest.ChannelID, msg)
}

// repin unpins the destination's previous announcement and pins msgID. Both
// steps are best-effort; the stored reference follows what is actually
// pinned.
func (d *Dispatcher) repin(ctx context.Context, dest *models.Destination, msgID string, log zerolog.Logger) bool {
	current := dest.PinnedMessageID
	if current != "" && current != msgID {
		if err := d.messenger.Unpin(ctx, dest.ChannelID, current); err != nil {
			log.Debug().Err(err).Str("message_id", current).Msg("Failed to unpin previous announcement")
		} else {
			current = ""
		}
	}

	pinned := false
	if err := d.messenger.Pin(ctx, dest.ChannelID, msgID); err != nil {
		log.Debug().Err(err).Msg("Failed to pin announcement")
	} else {
		current = msgID
		pinned = true
	}

	if current != dest.PinnedMessageID {
		if err := d.store.SetPinnedMessage(ctx, dest.TenantID, current); err != nil {
			log.Warn().Err(err).Msg("Failed to record pinned announcement")
		}
	}
	return pinned
}

func (d *Dispatcher) disable(ctx context.Context, dest *models.Destination, cause error, log zerolog.Logger) bool {
	reason := "channel not found"
	if errors.Is(cause, ErrPermissionDenied) {
		reason = "missing permission to post"
	}
	log.Warn().Err(cause).Str("reason", reason).Msg("Disabling destination")

	disabled := true
	if err := d.store.SetDestinationEnabled(ctx, dest.TenantID, false, reason); err != nil {
		log.Error().Err(err).Msg("Failed to disable destination")
		disabled = false
	}

	if d.notifyOwners && dest.OwnerID != "" {
		text := fmt.Sprintf("Survey announcements for your server were turned off: %s. "+
			"Give the bot access and register the announcement channel again to resume.", reason)
		if err := d.messenger.NotifyOwner(ctx, dest.OwnerID, text); err != nil {
			log.Debug().Err(err).Msg("Failed to notify destination owner")
		}
	}
	return disabled
}

// backoff returns the delay before retry attempt n (n >= 1).
func (d *Dispatcher) backoff(attempt int, lastErr error) time.Duration {
	var retryable *RetryableError
	if errors.As(lastErr, &retryable) && retryable.RetryAfter > 0 {
		return min(retryable.RetryAfter, d.maxDelay)
	}
	delay := d.baseDelay * (1 << uint(attempt-1))
	if delay > d.maxDelay || delay <= 0 {
		delay = d.maxDelay
	}
	return delay
}
