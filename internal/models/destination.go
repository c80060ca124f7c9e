// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package models

import "time"

// Destination is one tenant's broadcast target.
type Destination struct {
	TenantID        string    `json:"tenant_id"`
	ChannelID       string    `json:"channel_id"`
	OwnerID         string    `json:"owner_id,omitempty"`
	Enabled         bool      `json:"enabled"`
	PinnedMessageID string    `json:"pinned_message_id,omitempty"`
	DisabledReason  string    `json:"disabled_reason,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AdminRole is the privilege level of a bot administrator.
type AdminRole string

const (
	RoleMaster AdminRole = "master"
	RoleAdmin  AdminRole = "admin"
)

// Admin is an operator allowed to curate the queue and force rotations.
type Admin struct {
	UserID  string    `json:"user_id"`
	Role    AdminRole `json:"role"`
	AddedBy string    `json:"added_by,omitempty"`
	AddedAt time.Time `json:"added_at"`
}
