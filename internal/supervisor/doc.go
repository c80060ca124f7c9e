// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

/*
Package supervisor runs the engine's long-lived services under suture v4.

# Tree

	RootSupervisor ("galdcup")
	├── EngineSupervisor ("engine-layer")
	│   ├── rotation-scheduler
	│   ├── status-watcher
	│   └── audit-retention (if audit.enabled)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── websocket-hub
	│   ├── event-relay
	│   └── discord-session (if DISCORD_ENABLED)
	└── APISupervisor ("api-layer")
	    └── http-server

Each layer counts failures on its own, so a flapping Discord gateway backs
off inside the messaging layer while rotations and the API keep running.

# Usage

	logger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddEngineService(services.NewRotationSchedulerService(scheduler))
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    return err
	}

Services that miss the shutdown timeout are listed by
UnstoppedServiceReport.

Supervisor events (start, stop, panic, backoff) go through sutureslog into
the slog handler bridged to zerolog.
*/
package supervisor
