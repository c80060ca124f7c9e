// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

/*
Package services adapts engine components to suture's Serve pattern.

Each wrapper implements suture.Service and fmt.Stringer:

	type Service interface {
	    Serve(ctx context.Context) error
	}

# Available Services

HTTPServerService wraps *http.Server. ListenAndServe runs in a goroutine and
context cancellation triggers Shutdown with a bounded timeout.

RunService wraps a blocking function that already honors ctx.
NewWebSocketHubService runs websocket.Hub.RunWithContext and
NewStatusWatcherService runs voting.Service.WatchRotations against the event
bus so the live status cache follows rotations.

LifecycleService adapts Start(ctx)/Stop() components. The rotation scheduler
and the Discord session use it through NewRotationSchedulerService and
NewDiscordSessionService.

websocket.EventRelay and audit.Logger already implement suture.Service and
are added to the tree directly.

# Return Values

Serve returns ctx.Err() on a requested shutdown and a wrapped error on
failure. Suture restarts failed services with backoff; a Start error is
returned at once so the restart policy applies.
*/
package services
