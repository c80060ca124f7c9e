// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package broadcast

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Destination errors. Messengers wrap their platform errors with these so
// the dispatcher can classify failures.
var (
	// ErrDestinationGone means the channel no longer exists or is unreachable.
	ErrDestinationGone = errors.New("destination gone")

	// ErrPermissionDenied means the bot may not post to the channel.
	ErrPermissionDenied = errors.New("permission denied")
)

// RetryableError marks a transient failure. RetryAfter, when set, is the
// delay the remote side asked for.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %v)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error { return e.Err }

// Embed limits enforced by the common chat platforms.
const (
	MaxTitleLength       = 256
	MaxDescriptionLength = 4096
	MaxFieldValueLength  = 1024
	MaxFields            = 25
)

// Colors used for embeds.
const (
	ColorResults  = 0xED4245
	ColorOpen     = 0x57F287
	ColorForced   = 0xE01E5A
	ColorNeutral  = 0x5865F2
	ColorDisabled = 0x99AAB5
)

// Field is one titled block of an embed.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Attachment is a file sent with a message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// VotePrompt asks the messenger to attach voting controls.
type VotePrompt struct {
	SurveyID         int64
	Options          []string
	AllowMultiple    bool
	AllowShortAnswer bool
}

// Message is a platform-neutral rich message.
type Message struct {
	Title       string
	Description string
	Color       int
	Fields      []Field
	// ImageURL may reference an attachment as "attachment://name".
	ImageURL    string
	Footer      string
	Timestamp   time.Time
	Attachments []Attachment
	Vote        *VotePrompt
}

// AddField appends a field, clamping the value and dropping empty ones.
func (m *Message) AddField(name, value string, inline bool) {
	value = strings.TrimSpace(value)
	if value == "" || len(m.Fields) >= MaxFields {
		return
	}
	m.Fields = append(m.Fields, Field{Name: clamp(name, MaxTitleLength), Value: clamp(value, MaxFieldValueLength), Inline: inline})
}

// Clone returns a copy that can be modified per destination. Attachment
// data is shared.
func (m *Message) Clone() *Message {
	c := *m
	c.Fields = append([]Field(nil), m.Fields...)
	c.Attachments = append([]Attachment(nil), m.Attachments...)
	if m.Vote != nil {
		v := *m.Vote
		v.Options = append([]string(nil), m.Vote.Options...)
		c.Vote = &v
	}
	return &c
}

func clamp(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
