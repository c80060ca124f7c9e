// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestGenerateCorrelationID(t *testing.T) {
	a := GenerateCorrelationID()
	b := GenerateCorrelationID()

	if len(a) != 8 {
		t.Errorf("len = %d, want 8", len(a))
	}
	if a == b {
		t.Error("correlation ids should differ")
	}
}

func TestContextIDs(t *testing.T) {
	ctx := context.Background()
	if got := CorrelationIDFromContext(ctx); got != "" {
		t.Errorf("CorrelationIDFromContext(empty) = %q", got)
	}

	ctx = ContextWithCorrelationID(ctx, "abc12345")
	ctx = ContextWithRequestID(ctx, "req-1")

	if got := CorrelationIDFromContext(ctx); got != "abc12345" {
		t.Errorf("CorrelationIDFromContext() = %q", got)
	}
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("RequestIDFromContext() = %q", got)
	}
}

func TestCtxAddsFields(t *testing.T) {
	var buf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), zerolog.New(&buf))
	ctx = ContextWithCorrelationID(ctx, "corr0001")
	ctx = ContextWithRequestID(ctx, "req-9")

	Ctx(ctx).Info().Msg("with ids")

	out := buf.String()
	if !strings.Contains(out, `"correlation_id":"corr0001"`) {
		t.Errorf("missing correlation_id: %s", out)
	}
	if !strings.Contains(out, `"request_id":"req-9"`) {
		t.Errorf("missing request_id: %s", out)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer Init(DefaultConfig())

	logger := WithComponent("rotation")
	logger.Info().Msg("tick")

	if !strings.Contains(buf.String(), `"component":"rotation"`) {
		t.Errorf("missing component: %s", buf.String())
	}
}
