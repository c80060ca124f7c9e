// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Option is one selectable answer of a survey. Order inside a survey is
// meaningful: it is the display order and the tie-break for ranking.
type Option struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitempty" validate:"max=300"`
}

// UnmarshalJSON accepts both the record form and a bare string.
// Older rows stored options as plain strings.
func (o *Option) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*o = Option{Name: strings.TrimSpace(name)}
		return nil
	}

	type plain Option
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = Option(p)
	return nil
}

// Topic is the content of a poll before it becomes a Survey.
type Topic struct {
	Topic            string   `json:"topic" validate:"required,max=200"`
	Options          []Option `json:"options" validate:"required,min=2,max=10,dive"`
	AllowMultiple    bool     `json:"allow_multiple"`
	AllowShortAnswer bool     `json:"allow_short_answer"`
	ImageURL         string   `json:"image_url,omitempty" validate:"omitempty,url"`
	ImagePrompt      string   `json:"image_prompt,omitempty"`
}

// OptionNames returns the option names in declared order.
func (t *Topic) OptionNames() []string {
	names := make([]string, len(t.Options))
	for i, o := range t.Options {
		names[i] = o.Name
	}
	return names
}

// imageURLFormat renders an illustration for an image prompt.
const imageURLFormat = "https://image.pollinations.ai/prompt/%s?width=800&height=400&nologo=true"

// FillImageURL derives ImageURL from ImagePrompt when only the prompt is set.
func (t *Topic) FillImageURL() {
	if t.ImageURL != "" || strings.TrimSpace(t.ImagePrompt) == "" {
		return
	}
	t.ImageURL = fmt.Sprintf(imageURLFormat, url.PathEscape(strings.TrimSpace(t.ImagePrompt)))
}

// Valid reports whether the topic can open a survey.
func (t *Topic) Valid() bool {
	if t == nil || strings.TrimSpace(t.Topic) == "" || len(t.Options) < 2 {
		return false
	}
	for _, o := range t.Options {
		if strings.TrimSpace(o.Name) == "" {
			return false
		}
	}
	return true
}

// Survey is one rotation's poll.
type Survey struct {
	ID               int64      `json:"id"`
	Topic            string     `json:"topic"`
	Options          []Option   `json:"options"`
	AllowMultiple    bool       `json:"allow_multiple"`
	AllowShortAnswer bool       `json:"allow_short_answer"`
	ImageURL         string     `json:"image_url,omitempty"`
	Active           bool       `json:"active"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
}

// NewSurvey builds an active survey from a topic, starting at start.
func NewSurvey(t *Topic, start time.Time) *Survey {
	options := make([]Option, len(t.Options))
	copy(options, t.Options)
	return &Survey{
		Topic:            t.Topic,
		Options:          options,
		AllowMultiple:    t.AllowMultiple,
		AllowShortAnswer: t.AllowShortAnswer,
		ImageURL:         t.ImageURL,
		Active:           true,
		StartTime:        start,
	}
}

// OptionNames returns the option names in display order.
func (s *Survey) OptionNames() []string {
	names := make([]string, len(s.Options))
	for i, o := range s.Options {
		names[i] = o.Name
	}
	return names
}

// HasOption reports whether name is one of the declared options.
func (s *Survey) HasOption(name string) bool {
	for _, o := range s.Options {
		if o.Name == name {
			return true
		}
	}
	return false
}

// ClosesAt is the scheduled close time for a rotation period.
func (s *Survey) ClosesAt(period time.Duration) time.Time {
	return s.StartTime.Add(period)
}

// Due reports whether the survey has been open for at least period.
func (s *Survey) Due(now time.Time, period time.Duration) bool {
	return now.Sub(s.StartTime) >= period
}

// Provenance records which topic source supplied a survey.
type Provenance string

const (
	ProvenanceForced   Provenance = "forced"
	ProvenanceCurated  Provenance = "curated"
	ProvenanceAI       Provenance = "ai"
	ProvenanceFallback Provenance = "fallback"
)
