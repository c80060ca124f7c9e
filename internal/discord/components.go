// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package discord

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tomtom215/galdcup/internal/broadcast"
)

// Custom ids carry the survey id so that interactions on an old
// announcement are checked against the survey they were posted for.
const (
	customIDPrefix   = "galdcup"
	actionVote       = "vote"
	actionOpinion    = "opinion"
	actionModal      = "opinion_modal"
	inputAnswer      = "answer"
	inputOpinion     = "opinion"
	maxAnswerLength  = 100
	maxOpinionLength = 1000
)

func customID(action string, surveyID int64) string {
	return fmt.Sprintf("%s:%s:%d", customIDPrefix, action, surveyID)
}

// parseCustomID splits "galdcup:<action>:<survey id>".
func parseCustomID(id string) (action string, surveyID int64, ok bool) {
	prefix, rest, found := strings.Cut(id, ":")
	if !found || prefix != customIDPrefix {
		return "", 0, false
	}
	action, num, found := strings.Cut(rest, ":")
	if !found || action == "" {
		return "", 0, false
	}
	surveyID, err := strconv.ParseInt(num, 10, 64)
	if err != nil || surveyID <= 0 {
		return "", 0, false
	}
	return action, surveyID, true
}

func toMessageSend(msg *broadcast.Message) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       msg.Color,
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if msg.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: msg.ImageURL}
	}
	if msg.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: msg.Footer}
	}
	if !msg.Timestamp.IsZero() {
		embed.Timestamp = msg.Timestamp.UTC().Format(time.RFC3339)
	}

	send := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
	for _, a := range msg.Attachments {
		send.Files = append(send.Files, &discordgo.File{
			Name:        a.Name,
			ContentType: a.ContentType,
			Reader:      bytes.NewReader(a.Data),
		})
	}
	if msg.Vote != nil {
		send.Components = voteComponents(msg.Vote)
	}
	return send
}

func voteComponents(v *broadcast.VotePrompt) []discordgo.MessageComponent {
	options := make([]discordgo.SelectMenuOption, 0, len(v.Options))
	for _, name := range v.Options {
		options = append(options, discordgo.SelectMenuOption{Label: name, Value: name})
	}
	minValues := 1
	maxValues := 1
	placeholder := "Pick your side"
	if v.AllowMultiple {
		maxValues = len(options)
		placeholder = "Pick one or more options"
	}

	opinionLabel := "Share an opinion"
	if v.AllowShortAnswer {
		opinionLabel = "Write your own answer"
	}

	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    customID(actionVote, v.SurveyID),
				Placeholder: placeholder,
				MinValues:   &minValues,
				MaxValues:   maxValues,
				Options:     options,
			},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    opinionLabel,
				Style:    discordgo.SecondaryButton,
				CustomID: customID(actionOpinion, v.SurveyID),
			},
		}},
	}
}

// opinionModal asks for an opinion, plus a free answer when the survey
// allows short answers.
func opinionModal(surveyID int64, shortAnswer bool) *discordgo.InteractionResponse {
	var rows []discordgo.MessageComponent
	if shortAnswer {
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    inputAnswer,
				Label:       "Your answer (optional)",
				Style:       discordgo.TextInputShort,
				Placeholder: "Leave empty to keep your selection",
				Required:    false,
				MaxLength:   maxAnswerLength,
			},
		}})
	}
	rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.TextInput{
			CustomID:  inputOpinion,
			Label:     "Your opinion",
			Style:     discordgo.TextInputParagraph,
			Required:  !shortAnswer,
			MaxLength: maxOpinionLength,
		},
	}})

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   customID(actionModal, surveyID),
			Title:      "Tell us what you think",
			Components: rows,
		},
	}
}

// modalValues collects text input values by custom id.
func modalValues(components []discordgo.MessageComponent) map[string]string {
	out := make(map[string]string)
	var walk func([]discordgo.MessageComponent)
	walk = func(cs []discordgo.MessageComponent) {
		for _, c := range cs {
			switch v := c.(type) {
			case *discordgo.ActionsRow:
				walk(v.Components)
			case discordgo.ActionsRow:
				walk(v.Components)
			case *discordgo.TextInput:
				out[v.CustomID] = strings.TrimSpace(v.Value)
			case discordgo.TextInput:
				out[v.CustomID] = strings.TrimSpace(v.Value)
			}
		}
	}
	walk(components)
	return out
}

func ephemeral(text string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: text,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}
