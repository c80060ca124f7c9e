// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

/*
Package audit records operator actions for later review.

Events cover operator logins, token minting, forced rotations, queue and
suggestion moderation, destination registration and administrator changes.
They are written asynchronously through a buffered channel so a slow
database never blocks a request.

# Storage

DuckDBStore keeps events in the audit_events table of the archive database.
MemoryStore is used in tests.

# Usage

	store := audit.NewDuckDBStore(archive.Conn())
	if err := store.CreateTable(ctx); err != nil {
		return err
	}
	auditLog := audit.NewLogger(store, audit.DefaultConfig(), logger)
	defer auditLog.Close()

	auditLog.LogAction(r, audit.Actor{ID: userID, Role: role},
		audit.EventTypeRotationForced, audit.OutcomeSuccess,
		&audit.Target{ID: "42", Type: "survey"}, "force", "Forced rotation", nil)

The Logger is also a suture service: Serve deletes events older than the
retention period once per CleanupInterval.
*/
package audit
