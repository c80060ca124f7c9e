// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package ai

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Prompts holds the prompt templates. Each is a text/template rendered with
// the call's data and prefixed with System.
type Prompts struct {
	System          string `yaml:"system"`
	GenerateTopic   string `yaml:"generate_topic"`
	GenerateTopics  string `yaml:"generate_topics"`
	EvaluateTopic   string `yaml:"evaluate_topic"`
	RefineTopic     string `yaml:"refine_topic"`
	ClusterOpinions string `yaml:"cluster_opinions"`

	compiled map[string]*template.Template
}

// LoadPrompts returns the embedded prompts, overlaid with the YAML file at
// path when path is non-empty. Keys missing from the file keep their default.
func LoadPrompts(path string) (*Prompts, error) {
	p := &Prompts{}
	if err := yaml.Unmarshal(defaultPrompts, p); err != nil {
		return nil, fmt.Errorf("parse embedded prompts: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompts file: %w", err)
		}
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("parse prompts file %s: %w", path, err)
		}
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return p, nil
}

var templateFuncs = template.FuncMap{"join": strings.Join}

func (p *Prompts) compile() error {
	p.compiled = make(map[string]*template.Template)
	for name, text := range map[string]string{
		"generate_topic":   p.GenerateTopic,
		"generate_topics":  p.GenerateTopics,
		"evaluate_topic":   p.EvaluateTopic,
		"refine_topic":     p.RefineTopic,
		"cluster_opinions": p.ClusterOpinions,
	} {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("prompt %q is empty", name)
		}
		tmpl, err := template.New(name).Funcs(templateFuncs).Parse(text)
		if err != nil {
			return fmt.Errorf("parse prompt %q: %w", name, err)
		}
		p.compiled[name] = tmpl
	}
	return nil
}

// Render executes the named prompt with data and prefixes the system prompt.
func (p *Prompts) Render(name string, data any) (string, error) {
	tmpl, ok := p.compiled[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	var b bytes.Buffer
	if s := strings.TrimSpace(p.System); s != "" {
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", name, err)
	}
	return b.String(), nil
}
