// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package websocket

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/galdcup/internal/events"
	"github.com/tomtom215/galdcup/internal/logging"
)

// topicMessageTypes maps bus topics to client message types.
var topicMessageTypes = map[string]string{
	events.TopicSurveyOpened: MessageTypeSurveyOpened,
	events.TopicSurveyClosed: MessageTypeSurveyClosed,
	events.TopicVoteRecorded: MessageTypeVoteRecorded,
}

// EventRelay forwards bus events to the hub.
type EventRelay struct {
	hub *Hub
	sub events.Subscriber
}

// NewEventRelay creates a relay.
func NewEventRelay(hub *Hub, sub events.Subscriber) *EventRelay {
	return &EventRelay{hub: hub, sub: sub}
}

// Serve subscribes to every lifecycle topic and forwards until ctx is done.
// A closed subscription ends Serve with an error so the supervisor restarts
// it.
func (r *EventRelay) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, topic := range events.AllTopics {
		ch, err := r.sub.Subscribe(gctx, topic)
		if err != nil {
			return fmt.Errorf("websocket relay: %w", err)
		}
		msgType := topicMessageTypes[topic]

		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case msg, ok := <-ch:
					if !ok {
						return fmt.Errorf("websocket relay: subscription for %s closed", topic)
					}
					r.hub.BroadcastRaw(msgType, msg.Payload)
					msg.Ack()
				}
			}
		})
	}
	logging.Info().Int("topics", len(events.AllTopics)).Msg("websocket event relay started")

	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// String names the service for the supervisor.
func (r *EventRelay) String() string {
	return "websocket-event-relay"
}
