// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

/*
Package models defines the data types shared across Galdcup.

The persisted entities are Survey, Vote, SuggestedTopic, QueuedTopic,
Destination and Admin. ArchiveRecord is the post-rotation summary of a closed
survey. Topic is the payload exchanged between the topic sources, the queue
and the rotation scheduler.

API envelope types (APIResponse, APIError, Metadata) live here so that the
HTTP layer and its tests share one response shape.
*/
package models
