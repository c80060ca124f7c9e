// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

/*
Package api provides the HTTP surface of the survey engine.

The router is built on chi with production middleware from the chi
ecosystem (httprate, cors). Every /api/v1 route except login requires a JWT
and is authorized by the casbin enforcer in internal/authz.

Route groups:

  - /health, /metrics, /ws: probes, Prometheus exposition, live feed
  - /api/v1/auth: operator login and token minting
  - /api/v1/surveys, /api/v1/archive: live status and past results
  - /api/v1/votes: votes relayed from the chat surface
  - /api/v1/suggestions, /api/v1/queue: moderation workflow
  - /api/v1/rotation: forced rotation
  - /api/v1/destinations, /api/v1/admins: server registration and bot admins

All responses use the models.APIResponse envelope. Service errors are mapped
to status codes in errors.go.
*/
package api
