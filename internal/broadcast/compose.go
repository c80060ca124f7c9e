// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package broadcast

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/galdcup/internal/models"
	"github.com/tomtom215/galdcup/internal/tally"
)

// Announcement header variants.
const (
	HeaderNewChannel = "Here is the topic currently running."
	HeaderCurated    = "This week's topic was picked from the community suggestions!"
	HeaderAI         = "The AI master brought a fresh topic!"
	HeaderFallback   = "A new topic has begun!"
)

// AnnouncementOptions controls the header of an announcement.
type AnnouncementOptions struct {
	Provenance  models.Provenance
	RequestedBy string
	NewChannel  bool
	Period      time.Duration
}

// Announcement builds the "new topic" message for survey.
func Announcement(survey *models.Survey, opts AnnouncementOptions) *Message {
	header := HeaderFallback
	color := ColorOpen
	switch {
	case opts.NewChannel:
		header = HeaderNewChannel
	case opts.Provenance == models.ProvenanceForced:
		who := opts.RequestedBy
		if who == "" {
			who = "an operator"
		}
		header = fmt.Sprintf("The topic was changed early by %s!", who)
		color = ColorForced
	case opts.Provenance == models.ProvenanceCurated:
		header = HeaderCurated
	case opts.Provenance == models.ProvenanceAI:
		header = HeaderAI
	}

	closes := survey.ClosesAt(opts.Period)
	msg := &Message{
		Title: clamp("New topic: "+survey.Topic, MaxTitleLength),
		Description: fmt.Sprintf("%s\n\nPick your side below and leave an opinion!\nVoting closes <t:%d:R>.",
			header, closes.Unix()),
		Color:     color,
		Timestamp: survey.StartTime,
		Footer:    fmt.Sprintf("Survey #%d", survey.ID),
	}

	var b strings.Builder
	for i, o := range survey.Options {
		fmt.Fprintf(&b, "**%d. %s**\n", i+1, o.Name)
		if o.Description != "" {
			fmt.Fprintf(&b, "- %s\n", o.Description)
		}
	}
	msg.AddField("Options", b.String(), false)

	if survey.ImageURL != "" {
		if isImageURL(survey.ImageURL) {
			msg.ImageURL = survey.ImageURL
		} else {
			msg.AddField("Reference", survey.ImageURL, false)
		}
	}

	msg.Vote = &VotePrompt{
		SurveyID:         survey.ID,
		Options:          survey.OptionNames(),
		AllowMultiple:    survey.AllowMultiple,
		AllowShortAnswer: survey.AllowShortAnswer,
	}
	return msg
}

func isImageURL(u string) bool {
	lower := strings.ToLower(u)
	if strings.Contains(lower, "pollinations.ai") {
		return true
	}
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// ResultsContent is the tenant-independent part of a results message.
type ResultsContent struct {
	Record *models.ArchiveRecord
	// ChartURLs are uploaded charts; the first one becomes the embed image.
	ChartURLs []string
	// Charts are attached to every copy. The first is the embed image when
	// no chart was uploaded.
	Charts []Attachment
}

// Results builds the results message for one destination with its opinion
// samples.
func Results(content ResultsContent, samples tally.Samples) *Message {
	rec := content.Record
	msg := &Message{
		Title:       clamp("Results: "+rec.Topic, MaxTitleLength),
		Description: clamp(tally.Result{TotalRespondents: rec.TotalRespondents, Counts: rec.Counts}.Summary(), MaxDescriptionLength),
		Color:       ColorResults,
		Timestamp:   rec.ClosedAt,
		Footer:      fmt.Sprintf("Survey #%d", rec.SurveyID),
	}

	msg.AddField("Reactions from this server", bullets(samples.Local), false)
	if len(samples.Other) > 0 {
		msg.AddField("Anonymous reactions from another server", bullets(samples.Other), false)
	} else {
		msg.AddField("Reactions from other servers", "Not enough opinions were shared on other servers.", false)
	}

	if len(rec.Clusters) > 0 {
		var b strings.Builder
		for i, c := range rec.Clusters {
			fmt.Fprintf(&b, "**%d. %s** (%d)\n*%s*\n\n", i+1, c.Name, c.Count, c.Summary)
		}
		msg.AddField("AI opinion analysis", b.String(), false)
	}

	msg.Attachments = append(msg.Attachments, content.Charts...)
	switch {
	case len(content.ChartURLs) > 0:
		msg.ImageURL = content.ChartURLs[0]
		msg.AddField("Charts", strings.Join(content.ChartURLs[1:], "\n"), false)
	case len(content.Charts) > 0:
		msg.ImageURL = "attachment://" + content.Charts[0].Name
	}
	return msg
}

func bullets(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}
