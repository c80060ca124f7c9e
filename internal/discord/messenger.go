// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package discord is the Discord side of the broadcaster: it renders
// broadcast messages as embeds with vote components, classifies REST
// failures for the dispatcher, and turns component interactions into
// votes.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/tomtom215/galdcup/internal/broadcast"
)

// restClient is the part of *discordgo.Session the messenger calls.
type restClient interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessagePin(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessageUnpin(channelID, messageID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Messenger implements broadcast.Messenger over the Discord REST API.
type Messenger struct {
	rest   restClient
	logger zerolog.Logger
}

var _ broadcast.Messenger = (*Messenger)(nil)

// NewMessenger wraps a session. The session should have rate-limit retries
// disabled so that the dispatcher sees 429s and schedules its own retries.
func NewMessenger(rest restClient, logger zerolog.Logger) *Messenger {
	return &Messenger{
		rest:   rest,
		logger: logger.With().Str("component", "discord").Logger(),
	}
}

// ResolveChannel checks that the bot can see the channel.
func (m *Messenger) ResolveChannel(ctx context.Context, channelID string) error {
	if _, err := m.rest.Channel(channelID, discordgo.WithContext(ctx)); err != nil {
		return classify(err)
	}
	return nil
}

// Send posts msg and returns the new message id.
func (m *Messenger) Send(ctx context.Context, channelID string, msg *broadcast.Message) (string, error) {
	sent, err := m.rest.ChannelMessageSendComplex(channelID, toMessageSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return sent.ID, nil
}

// Pin pins a message.
func (m *Messenger) Pin(ctx context.Context, channelID, messageID string) error {
	return classify(m.rest.ChannelMessagePin(channelID, messageID, discordgo.WithContext(ctx)))
}

// Unpin unpins a message. An already deleted message is not an error.
func (m *Messenger) Unpin(ctx context.Context, channelID, messageID string) error {
	err := m.rest.ChannelMessageUnpin(channelID, messageID, discordgo.WithContext(ctx))
	if apiCode(err) == discordgo.ErrCodeUnknownMessage {
		return nil
	}
	return classify(err)
}

// NotifyOwner sends a direct message to a server owner.
func (m *Messenger) NotifyOwner(ctx context.Context, ownerID, text string) error {
	ch, err := m.rest.UserChannelCreate(ownerID, discordgo.WithContext(ctx))
	if err != nil {
		return classify(err)
	}
	if _, err := m.rest.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx)); err != nil {
		return classify(err)
	}
	return nil
}

func apiCode(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		return restErr.Message.Code
	}
	return 0
}

// classify maps a REST failure onto the dispatcher's error kinds. Unknown
// errors are returned wrapped and count as permanent for the attempt.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		retry := &broadcast.RetryableError{Err: err}
		if rateErr.RateLimit != nil && rateErr.TooManyRequests != nil {
			retry.RetryAfter = rateErr.RetryAfter
		}
		return retry
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		switch apiCode(err) {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownGuild:
			return fmt.Errorf("%w: %v", broadcast.ErrDestinationGone, err)
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions,
			discordgo.ErrCodeCannotSendMessagesToThisUser:
			return fmt.Errorf("%w: %v", broadcast.ErrPermissionDenied, err)
		}
		if restErr.Response != nil {
			switch status := restErr.Response.StatusCode; {
			case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
				return &broadcast.RetryableError{Err: err}
			case status == http.StatusNotFound:
				return fmt.Errorf("%w: %v", broadcast.ErrDestinationGone, err)
			case status == http.StatusForbidden:
				return fmt.Errorf("%w: %v", broadcast.ErrPermissionDenied, err)
			}
		}
		return fmt.Errorf("discord request failed: %w", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &broadcast.RetryableError{Err: err}
	}
	return fmt.Errorf("discord request failed: %w", err)
}
