// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package services

import (
	"context"

	"github.com/tomtom215/galdcup/internal/events"
)

// ContextHub is satisfied by *websocket.Hub.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// RotationWatcher is satisfied by *voting.Service.
type RotationWatcher interface {
	WatchRotations(ctx context.Context, sub events.Subscriber) error
}

// RunService supervises a blocking run function that already honors ctx.
type RunService struct {
	name string
	run  func(ctx context.Context) error
}

// NewRunService wraps run under name.
func NewRunService(name string, run func(ctx context.Context) error) *RunService {
	return &RunService{name: name, run: run}
}

// NewWebSocketHubService runs the live feed hub. The hub closes its clients
// when ctx ends.
func NewWebSocketHubService(hub ContextHub) *RunService {
	return NewRunService("websocket-hub", hub.RunWithContext)
}

// NewStatusWatcherService drops the cached live status whenever a new survey
// opens. A closed subscription returns nil and suture resubscribes.
func NewStatusWatcherService(watcher RotationWatcher, sub events.Subscriber) *RunService {
	return NewRunService("status-watcher", func(ctx context.Context) error {
		return watcher.WatchRotations(ctx, sub)
	})
}

// Serve implements suture.Service.
func (s *RunService) Serve(ctx context.Context) error {
	return s.run(ctx)
}

// String implements fmt.Stringer for suture's event log.
func (s *RunService) String() string {
	return s.name
}
