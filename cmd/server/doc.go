// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

/*
Package main is the entry point for the Galdcup server.

Galdcup runs one community survey at a time across every registered chat
channel. When the survey period ends it tallies the votes, archives the
results, broadcasts them, and opens the next survey picked from the curated
queue, the AI collaborator, or the built-in fallback list.

# Application Architecture

The server runs under Suture v4 process supervision:

	RootSupervisor ("galdcup")
	├── EngineSupervisor ("engine-layer")
	│   ├── Rotation scheduler
	│   ├── Status watcher (live status cache)
	│   └── Audit retention (optional)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocket hub
	│   ├── Event relay (bus -> websocket)
	│   └── Discord session (optional)
	└── APISupervisor ("api-layer")
	    └── HTTP server

Component initialization order:

 1. Configuration: Koanf v2 with environment variables and config files
 2. Logging: zerolog with JSON/console output modes
 3. Store: BadgerDB for live surveys, votes, queue, destinations, admins
 4. Archive: DuckDB for closed survey results and the audit trail
 5. Event bus: Watermill gochannel
 6. Collaborators: Gemini, chart renderer, S3 uploads (each optional)
 7. Messaging: Discord bot, or a log messenger when Discord is disabled
 8. Engine: broadcast dispatcher, topic cascade, rotation scheduler, queue
 9. Authorization: Casbin policy with administrators synced from the store
 10. HTTP server: Chi router with middleware stack

# Configuration

Configuration is loaded via Koanf v2 (highest priority wins):

	Priority: Environment variables > Config file > Defaults

Core environment variables:

	JWT_SECRET=...                  # 32+ characters
	ADMIN_USERNAME=admin
	ADMIN_PASSWORD_HASH=...         # output of -hash-password
	MASTER_USER_ID=123456789        # chat user id holding the master role
	STORE_PATH=/data/galdcup/store
	DUCKDB_PATH=/data/galdcup/archive.duckdb
	ROTATION_PERIOD=72h
	DISCORD_ENABLED=true
	DISCORD_TOKEN=...
	AI_ENABLED=true
	GEMINI_API_KEY=...

# Flags

	-hash-password <password>   print a bcrypt hash and exit

# Signal Handling

SIGINT and SIGTERM cancel the root context. The supervisor stops every
service, waiting up to 10s each; a rotation in flight runs to completion.
*/
package main
