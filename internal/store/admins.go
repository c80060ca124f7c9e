// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package store

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/galdcup/internal/models"
)

// PutAdmin adds or replaces an admin record.
func (s *Store) PutAdmin(ctx context.Context, a *models.Admin) error {
	if a.AddedAt.IsZero() {
		a.AddedAt = s.now()
	}
	return s.update(ctx, "put_admin", func(txn *badger.Txn) error {
		return setJSON(txn, adminKey(a.UserID), a)
	})
}

// GetAdmin returns an admin by user id.
func (s *Store) GetAdmin(ctx context.Context, userID string) (*models.Admin, error) {
	a := &models.Admin{}
	err := s.view(ctx, "get_admin", func(txn *badger.Txn) error {
		return getJSON(txn, adminKey(userID), a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAdmins returns every stored admin.
func (s *Store) ListAdmins(ctx context.Context) ([]*models.Admin, error) {
	var out []*models.Admin
	err := s.view(ctx, "list_admins", func(txn *badger.Txn) error {
		return scanJSON(txn, []byte(adminPrefix), false, func(a *models.Admin) bool {
			out = append(out, a)
			return true
		})
	})
	return out, err
}

// DeleteAdmin removes an admin.
func (s *Store) DeleteAdmin(ctx context.Context, userID string) error {
	return s.update(ctx, "delete_admin", func(txn *badger.Txn) error {
		a := &models.Admin{}
		if err := getJSON(txn, adminKey(userID), a); err != nil {
			return err
		}
		return txn.Delete(adminKey(userID))
	})
}
