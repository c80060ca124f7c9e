// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPServer is satisfied by *http.Server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService serves the operator API until ctx ends, then drains
// in-flight requests for at most shutdownTimeout.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPServerService wraps server. A non-positive timeout means 10s.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- h.server.ListenAndServe() }()

	select {
	case err := <-done:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()
	if err := h.server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	<-done
	return ctx.Err()
}

// String implements fmt.Stringer for suture's event log.
func (h *HTTPServerService) String() string {
	return "http-server"
}
