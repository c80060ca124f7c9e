// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package store

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/galdcup/internal/models"
)

// UpsertDestination registers or replaces the destination for a tenant.
// The pinned message reference of an existing record is kept.
func (s *Store) UpsertDestination(ctx context.Context, d *models.Destination) error {
	d.UpdatedAt = s.now()
	return s.update(ctx, "upsert_destination", func(txn *badger.Txn) error {
		existing := &models.Destination{}
		if err := getJSON(txn, destKey(d.TenantID), existing); err == nil {
			if d.PinnedMessageID == "" && existing.ChannelID == d.ChannelID {
				d.PinnedMessageID = existing.PinnedMessageID
			}
		}
		return setJSON(txn, destKey(d.TenantID), d)
	})
}

// GetDestination returns a tenant's destination.
func (s *Store) GetDestination(ctx context.Context, tenantID string) (*models.Destination, error) {
	d := &models.Destination{}
	err := s.view(ctx, "get_destination", func(txn *badger.Txn) error {
		return getJSON(txn, destKey(tenantID), d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDestinations returns destinations ordered by tenant id. With
// enabledOnly set, disabled destinations are skipped.
func (s *Store) ListDestinations(ctx context.Context, enabledOnly bool) ([]*models.Destination, error) {
	var out []*models.Destination
	err := s.view(ctx, "list_destinations", func(txn *badger.Txn) error {
		return scanJSON(txn, []byte(destPrefix), false, func(d *models.Destination) bool {
			if !enabledOnly || d.Enabled {
				out = append(out, d)
			}
			return true
		})
	})
	return out, err
}

// DeleteDestination removes a tenant's destination.
func (s *Store) DeleteDestination(ctx context.Context, tenantID string) error {
	return s.update(ctx, "delete_destination", func(txn *badger.Txn) error {
		if _, err := txn.Get(destKey(tenantID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete(destKey(tenantID))
	})
}

// SetDestinationEnabled toggles a destination. reason is kept when disabling
// and cleared when enabling.
func (s *Store) SetDestinationEnabled(ctx context.Context, tenantID string, enabled bool, reason string) error {
	return s.modifyDestination(ctx, "set_destination_enabled", tenantID, func(d *models.Destination) {
		d.Enabled = enabled
		if enabled {
			d.DisabledReason = ""
		} else {
			d.DisabledReason = reason
		}
	})
}

// SetPinnedMessage records the currently pinned announcement.
func (s *Store) SetPinnedMessage(ctx context.Context, tenantID, messageID string) error {
	return s.modifyDestination(ctx, "set_pinned_message", tenantID, func(d *models.Destination) {
		d.PinnedMessageID = messageID
	})
}

func (s *Store) modifyDestination(ctx context.Context, op, tenantID string, fn func(*models.Destination)) error {
	return s.update(ctx, op, func(txn *badger.Txn) error {
		d := &models.Destination{}
		if err := getJSON(txn, destKey(tenantID), d); err != nil {
			return err
		}
		fn(d)
		d.UpdatedAt = s.now()
		return setJSON(txn, destKey(tenantID), d)
	})
}
