// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// Layer names a child supervisor of the root.
type Layer string

const (
	// LayerEngine holds the rotation scheduler and the status watcher.
	LayerEngine Layer = "engine-layer"
	// LayerMessaging holds the websocket hub, event relay and chat session.
	LayerMessaging Layer = "messaging-layer"
	// LayerAPI holds the HTTP server.
	LayerAPI Layer = "api-layer"
)

// Layers lists the layers in start order.
var Layers = []Layer{LayerEngine, LayerMessaging, LayerAPI}

// TreeConfig holds supervisor tree configuration. Zero fields take the
// values of DefaultTreeConfig.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time each service gets to stop.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

func (c TreeConfig) spec() suture.Spec {
	return suture.Spec{
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// SupervisorTree is the process supervision hierarchy. A crash loop in the
// messaging layer never stops rotations or the API.
type SupervisorTree struct {
	root   *suture.Supervisor
	layers map[Layer]*suture.Supervisor
	logger *slog.Logger
	config TreeConfig
}

// NewSupervisorTree builds the root supervisor "galdcup" with one child per
// Layer.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	config = config.withDefaults()

	// MustHook has a pointer receiver.
	handler := &sutureslog.Handler{Logger: logger}
	rootSpec := config.spec()
	rootSpec.EventHook = handler.MustHook()

	t := &SupervisorTree{
		root:   suture.New("galdcup", rootSpec),
		layers: make(map[Layer]*suture.Supervisor, len(Layers)),
		logger: logger,
		config: config,
	}
	// Children inherit the EventHook when added to the root.
	for _, l := range Layers {
		sup := suture.New(string(l), config.spec())
		t.root.Add(sup)
		t.layers[l] = sup
	}
	return t, nil
}

// Root returns the root supervisor.
func (t *SupervisorTree) Root() *suture.Supervisor {
	return t.root
}

// Add places svc under layer.
func (t *SupervisorTree) Add(layer Layer, svc suture.Service) (suture.ServiceToken, error) {
	sup, ok := t.layers[layer]
	if !ok {
		return suture.ServiceToken{}, fmt.Errorf("unknown supervisor layer %q", layer)
	}
	return sup.Add(svc), nil
}

// AddEngineService adds a service to the engine layer.
func (t *SupervisorTree) AddEngineService(svc suture.Service) suture.ServiceToken {
	return t.layers[LayerEngine].Add(svc)
}

// AddMessagingService adds a service to the messaging layer.
func (t *SupervisorTree) AddMessagingService(svc suture.Service) suture.ServiceToken {
	return t.layers[LayerMessaging].Add(svc)
}

// AddAPIService adds a service to the API layer.
func (t *SupervisorTree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.layers[LayerAPI].Add(svc)
}

// Serve runs the tree until ctx is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine. The channel receives the
// result when the tree stops.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that missed the shutdown timeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
