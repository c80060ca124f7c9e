// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package broadcast

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogMessenger is the Messenger used when no chat platform is configured.
// Every delivery succeeds and is written to the log.
type LogMessenger struct {
	logger zerolog.Logger
}

// NewLogMessenger creates a LogMessenger.
func NewLogMessenger(logger zerolog.Logger) *LogMessenger {
	return &LogMessenger{logger: logger.With().Str("component", "log-messenger").Logger()}
}

// ResolveChannel implements Messenger.
func (m *LogMessenger) ResolveChannel(context.Context, string) error { return nil }

// Send implements Messenger.
func (m *LogMessenger) Send(_ context.Context, channelID string, msg *Message) (string, error) {
	id := uuid.NewString()
	m.logger.Info().
		Str("channel_id", channelID).
		Str("message_id", id).
		Str("title", msg.Title).
		Int("fields", len(msg.Fields)).
		Int("attachments", len(msg.Attachments)).
		Bool("vote", msg.Vote != nil).
		Msg("Message delivered")
	return id, nil
}

// Pin implements Messenger.
func (m *LogMessenger) Pin(_ context.Context, channelID, messageID string) error {
	m.logger.Debug().Str("channel_id", channelID).Str("message_id", messageID).Msg("Message pinned")
	return nil
}

// Unpin implements Messenger.
func (m *LogMessenger) Unpin(_ context.Context, channelID, messageID string) error {
	m.logger.Debug().Str("channel_id", channelID).Str("message_id", messageID).Msg("Message unpinned")
	return nil
}

// NotifyOwner implements Messenger.
func (m *LogMessenger) NotifyOwner(_ context.Context, ownerID, text string) error {
	m.logger.Info().Str("owner_id", ownerID).Str("text", text).Msg("Owner notified")
	return nil
}
