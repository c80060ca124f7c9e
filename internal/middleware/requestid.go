// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package middleware

import (
	"net/http"

	"github.com/tomtom215/galdcup/internal/logging"
)

// RequestIDHeader carries the id in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds ids accepted from upstream proxies.
const maxRequestIDLength = 64

// RequestID tags each request with an id, echoed in the response header and
// stored in the logging context together with a fresh correlation id. An
// upstream id is kept when it is short and made of [A-Za-z0-9._-] only.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = logging.GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		ctx = logging.ContextWithNewCorrelationID(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
