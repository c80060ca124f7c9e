// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package ai is the Gemini-backed collaborator that generates, evaluates and
// refines poll topics and clusters free-text opinions. Every call goes
// through a circuit breaker; callers bound it with a context deadline and
// treat any error as "no result".
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/galdcup/internal/config"
	"github.com/tomtom215/galdcup/internal/metrics"
	"github.com/tomtom215/galdcup/internal/models"
)

// MaxChargeTopics bounds GenerateTopics.
const MaxChargeTopics = 5

// ErrInvalidOutput is returned when the model reply cannot be used.
var ErrInvalidOutput = errors.New("ai returned unusable output")

type generator interface {
	generate(ctx context.Context, prompt string, wantJSON bool) (string, error)
}

// Client is the AI collaborator.
type Client struct {
	gen         generator
	prompts     *Prompts
	cb          *gobreaker.CircuitBreaker[string]
	name        string
	maxOpinions int
	logger      zerolog.Logger
}

// New builds a Client from configuration.
func New(cfg config.AIConfig, logger zerolog.Logger) (*Client, error) {
	prompts, err := LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return nil, err
	}
	return newClient(newGeminiClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout), prompts, cfg.MaxOpinions, logger), nil
}

func newClient(gen generator, prompts *Prompts, maxOpinions int, logger zerolog.Logger) *Client {
	const name = "gemini"
	logger = logger.With().Str("component", "ai").Logger()
	return &Client{
		gen:         gen,
		prompts:     prompts,
		cb:          newBreaker(name, logger),
		name:        name,
		maxOpinions: maxOpinions,
		logger:      logger,
	}
}

// GenerateTopic asks for one new topic. The result is valid or an error.
func (c *Client) GenerateTopic(ctx context.Context) (*models.Topic, error) {
	var raw aiTopic
	if err := c.callJSON(ctx, "generate_topic", nil, &raw); err != nil {
		return nil, err
	}
	t := raw.toTopic()
	if !t.Valid() {
		return nil, fmt.Errorf("%w: generated topic lacks a title or two options", ErrInvalidOutput)
	}
	return t, nil
}

// GenerateTopics asks for n topics (1 to MaxChargeTopics) and returns the
// valid ones.
func (c *Client) GenerateTopics(ctx context.Context, n int) ([]*models.Topic, error) {
	if n < 1 || n > MaxChargeTopics {
		return nil, fmt.Errorf("topic count must be between 1 and %d, got %d", MaxChargeTopics, n)
	}
	var raw []aiTopic
	if err := c.callJSON(ctx, "generate_topics", map[string]int{"Count": n}, &raw); err != nil {
		return nil, err
	}
	out := make([]*models.Topic, 0, n)
	for _, r := range raw {
		if t := r.toTopic(); t.Valid() {
			out = append(out, t)
		}
		if len(out) == n {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no valid topics in reply", ErrInvalidOutput)
	}
	return out, nil
}

// EvaluateTopic reports whether the model approves the topic.
func (c *Client) EvaluateTopic(ctx context.Context, topic *models.Topic) (bool, error) {
	text, err := c.call(ctx, "evaluate_topic", topicPromptData(topic), false)
	if err != nil {
		return false, err
	}
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "APPROVE"):
		return true, nil
	case strings.Contains(upper, "REJECT"):
		return false, nil
	default:
		return false, fmt.Errorf("%w: evaluation reply %q", ErrInvalidOutput, truncate(text, 80))
	}
}

// RefineTopic returns a polished version of topic. Flags the model does not
// echo back are carried over from the input.
func (c *Client) RefineTopic(ctx context.Context, topic *models.Topic) (*models.Topic, error) {
	var raw aiTopic
	if err := c.callJSON(ctx, "refine_topic", topicPromptData(topic), &raw); err != nil {
		return nil, err
	}
	t := raw.toTopic()
	if !t.Valid() {
		return nil, fmt.Errorf("%w: refined topic lacks a title or two options", ErrInvalidOutput)
	}
	if raw.AllowMultiple == nil {
		t.AllowMultiple = topic.AllowMultiple
	}
	if raw.AllowShortAnswer == nil {
		t.AllowShortAnswer = topic.AllowShortAnswer
	}
	return t, nil
}

// ClusterOpinions groups opinions into themes.
func (c *Client) ClusterOpinions(ctx context.Context, topic string, opinions []string) ([]models.Cluster, error) {
	if len(opinions) == 0 {
		return []models.Cluster{}, nil
	}
	if c.maxOpinions > 0 && len(opinions) > c.maxOpinions {
		c.logger.Warn().
			Int("opinions", len(opinions)).
			Int("dropped", len(opinions)-c.maxOpinions).
			Int("max_opinions", c.maxOpinions).
			Msg("Too many opinions to cluster, clustering the first batch only")
		opinions = opinions[:c.maxOpinions]
	}
	var clusters []models.Cluster
	data := map[string]any{"Topic": topic, "Opinions": opinions}
	if err := c.callJSON(ctx, "cluster_opinions", data, &clusters); err != nil {
		return nil, err
	}
	return clusters, nil
}

func (c *Client) call(ctx context.Context, prompt string, data any, wantJSON bool) (string, error) {
	rendered, err := c.prompts.Render(prompt, data)
	if err != nil {
		return "", err
	}

	start := time.Now()
	text, err := c.execute(func() (string, error) {
		return c.gen.generate(ctx, rendered, wantJSON)
	})
	metrics.RecordCollaboratorCall(c.name, prompt, time.Since(start), err)
	if err != nil {
		c.logger.Warn().Err(err).Str("prompt", prompt).Dur("elapsed", time.Since(start)).Msg("AI call failed")
		return "", err
	}
	return text, nil
}

func (c *Client) callJSON(ctx context.Context, prompt string, data, out any) error {
	text, err := c.call(ctx, prompt, data, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripCodeFence(text)), out); err != nil {
		return fmt.Errorf("%w: %s reply is not valid JSON: %v", ErrInvalidOutput, prompt, err)
	}
	return nil
}

func topicPromptData(t *models.Topic) map[string]any {
	return map[string]any{"Topic": t.Topic, "Options": t.OptionNames()}
}

// aiOption accepts "name" or {"name", "desc"|"description"}.
type aiOption struct {
	Name        string
	Description string
}

func (o *aiOption) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		o.Name = s
		return nil
	}
	var obj struct {
		Name        string `json:"name"`
		Desc        string `json:"desc"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	o.Name = obj.Name
	o.Description = obj.Description
	if o.Description == "" {
		o.Description = obj.Desc
	}
	return nil
}

type aiTopic struct {
	Topic            string     `json:"topic"`
	Options          []aiOption `json:"options"`
	AllowMultiple    *bool      `json:"allow_multiple"`
	AllowShortAnswer *bool      `json:"allow_short_answer"`
	ImagePrompt      string     `json:"image_prompt"`
}

func (a aiTopic) toTopic() *models.Topic {
	t := &models.Topic{
		Topic:       strings.TrimSpace(a.Topic),
		ImagePrompt: strings.TrimSpace(a.ImagePrompt),
	}
	for _, o := range a.Options {
		if name := strings.TrimSpace(o.Name); name != "" {
			t.Options = append(t.Options, models.Option{Name: name, Description: strings.TrimSpace(o.Description)})
		}
	}
	if a.AllowMultiple != nil {
		t.AllowMultiple = *a.AllowMultiple
	}
	if a.AllowShortAnswer != nil {
		t.AllowShortAnswer = *a.AllowShortAnswer
	}
	return t
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}
