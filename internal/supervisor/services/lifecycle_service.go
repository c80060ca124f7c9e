// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package services

import (
	"context"
	"fmt"
)

// LifecycleManager is a component with its own background loop.
//
// Satisfied by *rotation.Scheduler and *discord.Bot.
type LifecycleManager interface {
	Start(ctx context.Context) error
	Stop() error
}

// LifecycleService adapts Start/Stop to suture's Serve pattern:
//  1. Start(ctx) spawns the component's loop
//  2. Serve blocks until ctx is canceled
//  3. Stop() tears the loop down
type LifecycleService struct {
	manager LifecycleManager
	name    string
}

// NewLifecycleService wraps manager under name.
func NewLifecycleService(name string, manager LifecycleManager) *LifecycleService {
	return &LifecycleService{manager: manager, name: name}
}

// NewRotationSchedulerService supervises the rotation timer.
func NewRotationSchedulerService(scheduler LifecycleManager) *LifecycleService {
	return NewLifecycleService("rotation-scheduler", scheduler)
}

// NewDiscordSessionService supervises the Discord gateway session.
func NewDiscordSessionService(bot LifecycleManager) *LifecycleService {
	return NewLifecycleService("discord-session", bot)
}

// Serve implements suture.Service.
func (s *LifecycleService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()

	if err := s.manager.Stop(); err != nil {
		return fmt.Errorf("%s stop failed: %w", s.name, err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for suture's event log.
func (s *LifecycleService) String() string {
	return s.name
}
