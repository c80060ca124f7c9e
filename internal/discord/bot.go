// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/tomtom215/galdcup/internal/config"
	"github.com/tomtom215/galdcup/internal/models"
	"github.com/tomtom215/galdcup/internal/store"
	"github.com/tomtom215/galdcup/internal/validation"
	"github.com/tomtom215/galdcup/internal/voting"
)

const (
	interactionTimeout = 5 * time.Second
	// welcomeWindow separates a fresh join from the guild replay on connect.
	welcomeWindow = 2 * time.Minute

	welcomeText = "Thanks for adding the survey bot! An administrator can register a channel " +
		"for this server and it will receive every new topic and its results."
)

// VoteRecorder records votes coming from interactions.
type VoteRecorder interface {
	SubmitVote(ctx context.Context, req voting.VoteRequest) (bool, error)
	AddOpinion(ctx context.Context, surveyID int64, userID, tenantID, opinion string) error
}

// Lookup reads the surveys and destinations the bot needs.
type Lookup interface {
	GetSurvey(ctx context.Context, id int64) (*models.Survey, error)
	GetDestination(ctx context.Context, tenantID string) (*models.Destination, error)
}

// Bot owns the gateway session.
type Bot struct {
	session   *discordgo.Session
	messenger *Messenger
	votes     VoteRecorder
	lookup    Lookup
	welcome   bool
	now       func() time.Time
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a bot from configuration. The gateway is not opened until
// Start.
func New(cfg config.DiscordConfig, votes VoteRecorder, lookup Lookup, logger zerolog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds
	session.ShouldRetryOnRateLimit = false

	b := &Bot{
		session:   session,
		messenger: NewMessenger(session, logger),
		votes:     votes,
		lookup:    lookup,
		welcome:   cfg.WelcomeEnabled,
		now:       time.Now,
		logger:    logger.With().Str("component", "discord").Logger(),
	}
	session.AddHandler(b.onInteraction)
	session.AddHandler(b.onGuildCreate)
	return b, nil
}

// Messenger returns the REST messenger used for broadcasts.
func (b *Bot) Messenger() *Messenger {
	return b.messenger
}

// Start opens the gateway connection.
func (b *Bot) Start(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	b.running = true
	b.logger.Info().Msg("Discord gateway connected")
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil
	}
	b.running = false
	return b.session.Close()
}

func (b *Bot) onInteraction(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	resp := b.handleInteraction(ctx, ic)
	if resp == nil {
		return
	}
	if err := s.InteractionRespond(ic.Interaction, resp, discordgo.WithContext(ctx)); err != nil {
		b.logger.Warn().Err(err).Str("guild_id", ic.GuildID).Msg("Failed to respond to interaction")
	}
}

// handleInteraction returns the response for a component or modal
// interaction, or nil when the interaction is not ours.
func (b *Bot) handleInteraction(ctx context.Context, ic *discordgo.InteractionCreate) *discordgo.InteractionResponse {
	userID := interactionUser(ic)
	if userID == "" {
		return nil
	}

	switch ic.Type {
	case discordgo.InteractionMessageComponent:
		data := ic.MessageComponentData()
		action, surveyID, ok := parseCustomID(data.CustomID)
		if !ok {
			return nil
		}
		switch action {
		case actionVote:
			_, err := b.votes.SubmitVote(ctx, voting.VoteRequest{
				SurveyID: surveyID,
				UserID:   userID,
				TenantID: ic.GuildID,
				Selected: data.Values,
			})
			if err != nil {
				return ephemeral(b.userMessage(err, surveyID))
			}
			return ephemeral("Your vote was recorded. You can change it until the survey closes.")
		case actionOpinion:
			survey, err := b.lookup.GetSurvey(ctx, surveyID)
			if err != nil {
				return ephemeral(b.userMessage(err, surveyID))
			}
			if !survey.Active {
				return ephemeral(b.userMessage(voting.ErrSurveyClosed, surveyID))
			}
			return opinionModal(surveyID, survey.AllowShortAnswer)
		}
		return nil

	case discordgo.InteractionModalSubmit:
		data := ic.ModalSubmitData()
		action, surveyID, ok := parseCustomID(data.CustomID)
		if !ok || action != actionModal {
			return nil
		}
		values := modalValues(data.Components)
		var err error
		if answer := values[inputAnswer]; answer != "" {
			_, err = b.votes.SubmitVote(ctx, voting.VoteRequest{
				SurveyID: surveyID,
				UserID:   userID,
				TenantID: ic.GuildID,
				Selected: []string{answer},
				Opinion:  values[inputOpinion],
			})
		} else {
			err = b.votes.AddOpinion(ctx, surveyID, userID, ic.GuildID, values[inputOpinion])
		}
		if err != nil {
			return ephemeral(b.userMessage(err, surveyID))
		}
		return ephemeral("Thanks, your opinion was saved.")
	}
	return nil
}

func interactionUser(ic *discordgo.InteractionCreate) string {
	if ic.Interaction == nil {
		return ""
	}
	if ic.Member != nil && ic.Member.User != nil {
		return ic.Member.User.ID
	}
	if ic.User != nil {
		return ic.User.ID
	}
	return ""
}

func (b *Bot) userMessage(err error, surveyID int64) string {
	var verr *validation.RequestValidationError
	switch {
	case errors.Is(err, voting.ErrSurveyClosed), errors.Is(err, store.ErrNotFound):
		return "This survey has already closed. Watch for the next topic!"
	case errors.Is(err, voting.ErrEmptySelection):
		return "Pick an option first, then share your opinion."
	case errors.Is(err, voting.ErrMultipleSelection):
		return "This survey accepts a single option."
	case errors.Is(err, voting.ErrUnknownOption):
		return "That answer is not one of the options."
	case errors.As(err, &verr):
		return "Your answer is too long."
	}
	b.logger.Error().Err(err).Int64("survey_id", surveyID).Msg("Failed to record interaction vote")
	return "Something went wrong, please try again later."
}

func (b *Bot) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()
	if !b.shouldWelcome(ctx, g.Guild) {
		return
	}
	if err := b.messenger.NotifyOwner(ctx, g.OwnerID, welcomeText); err != nil {
		b.logger.Warn().Err(err).Str("guild_id", g.ID).Msg("Failed to send welcome message")
		return
	}
	b.logger.Info().Str("guild_id", g.ID).Msg("Welcome message sent")
}

// shouldWelcome reports whether g was joined just now and has no
// registered destination.
func (b *Bot) shouldWelcome(ctx context.Context, g *discordgo.Guild) bool {
	if !b.welcome || g.OwnerID == "" || g.Unavailable {
		return false
	}
	if g.JoinedAt.IsZero() || b.now().Sub(g.JoinedAt) > welcomeWindow {
		return false
	}
	_, err := b.lookup.GetDestination(ctx, g.ID)
	return errors.Is(err, store.ErrNotFound)
}
