// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package events is the in-process survey lifecycle bus. It is backed by
// watermill's Go channel pub/sub; subscribers such as the websocket relay
// receive every event published after they subscribe.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/galdcup/internal/logging"
	"github.com/tomtom215/galdcup/internal/metrics"
	"github.com/tomtom215/galdcup/internal/models"
)

// Topics.
const (
	TopicSurveyOpened = "survey.opened"
	TopicSurveyClosed = "survey.closed"
	TopicVoteRecorded = "vote.recorded"
)

// AllTopics lists every topic published by the engine.
var AllTopics = []string{TopicSurveyOpened, TopicSurveyClosed, TopicVoteRecorded}

// SurveyOpened is published after a rotation creates a survey.
type SurveyOpened struct {
	SurveyID    int64             `json:"survey_id"`
	Topic       string            `json:"topic"`
	Options     []string          `json:"options"`
	Provenance  models.Provenance `json:"provenance"`
	RequestedBy string            `json:"requested_by,omitempty"`
	StartTime   time.Time         `json:"start_time"`
	ClosesAt    time.Time         `json:"closes_at"`
}

// SurveyClosed is published after a survey is closed and tallied.
type SurveyClosed struct {
	SurveyID         int64               `json:"survey_id"`
	Topic            string              `json:"topic"`
	TotalRespondents int                 `json:"total_respondents"`
	Winner           *models.OptionCount `json:"winner,omitempty"`
	ClosedAt         time.Time           `json:"closed_at"`
}

// VoteRecorded is published for every accepted vote. The voter is not
// included.
type VoteRecorded struct {
	SurveyID int64     `json:"survey_id"`
	TenantID string    `json:"tenant_id,omitempty"`
	Replaced bool      `json:"replaced"`
	At       time.Time `json:"at"`
}

// Publisher publishes lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// Subscriber streams raw messages for a topic until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// Bus is a watermill gochannel pub/sub with JSON payloads.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates a bus. Watermill logs go through the zerolog slog bridge.
func NewBus(bufferSize int64) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	logger := watermill.NewSlogLogger(slog.New(logging.NewSlogHandler()).With("component", "event-bus"))
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: bufferSize,
		}, logger),
	}
}

// Publish encodes payload as JSON and publishes it on topic. The correlation
// id from ctx, if any, is carried in the message metadata.
func (b *Bus) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("topic", topic)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set("correlation_id", id)
	}
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	metrics.EventsPublished.WithLabelValues(topic).Inc()
	return nil
}

// Subscribe implements Subscriber. Consumers must Ack each message.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return ch, nil
}

// Close stops the bus and closes every subscription channel.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, interface{}) error { return nil }
