// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tomtom215/galdcup/internal/logging"
)

func serveWithID(t *testing.T, upstream string) (header, ctxID, corrID string) {
	t.Helper()
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = logging.RequestIDFromContext(r.Context())
		corrID = logging.CorrelationIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/votes", nil)
	if upstream != "" {
		req.Header.Set(RequestIDHeader, upstream)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Header().Get(RequestIDHeader), ctxID, corrID
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		upstream string
		keep     bool
	}{
		{"generated when absent", "", false},
		{"upstream kept", "edge-7f3a.12_b", true},
		{"oversized replaced", strings.Repeat("x", 500), false},
		{"log injection replaced", "abc\n{\"level\":\"error\"}", false},
		{"spaces replaced", "two words", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, ctxID, corrID := serveWithID(t, tt.upstream)
			if header != ctxID {
				t.Errorf("header id %q != context id %q", header, ctxID)
			}
			if corrID == "" {
				t.Error("correlation id not set")
			}
			if tt.keep {
				if header != tt.upstream {
					t.Errorf("id = %q, want upstream %q", header, tt.upstream)
				}
				return
			}
			if _, err := uuid.Parse(header); err != nil {
				t.Errorf("id %q is not a generated uuid", header)
			}
		})
	}
}
