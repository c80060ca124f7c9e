// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package authz authorizes operator API requests with Casbin RBAC.
//
// Roles form a hierarchy (master > admin > bridge > viewer) and policies
// match request paths with keyMatch2. The master and bridge roles are taken
// from the token; the admin role is granted per user id through grouping
// policies kept in sync with the stored administrators, so removing an
// administrator revokes access before their token expires.
package authz

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"

	"github.com/tomtom215/galdcup/internal/cache"
	"github.com/tomtom215/galdcup/internal/models"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// EnforcerConfig holds configuration for the Casbin enforcer.
type EnforcerConfig struct {
	// ModelPath overrides the embedded model when the file exists.
	ModelPath string

	// PolicyPath overrides the embedded policy when the file exists.
	PolicyPath string

	// DefaultRole is checked for subjects whose token asserts no role.
	DefaultRole string

	// CacheTTL is how long to cache decisions. Zero disables the cache.
	CacheTTL time.Duration
}

// DefaultEnforcerConfig returns default configuration.
func DefaultEnforcerConfig() *EnforcerConfig {
	return &EnforcerConfig{
		DefaultRole: "viewer",
		CacheTTL:    time.Minute,
	}
}

// Enforcer wraps the Casbin enforcer with a decision cache. Every grouping
// change clears the cache.
type Enforcer struct {
	config   *EnforcerConfig
	enforcer *casbin.SyncedEnforcer
	cache    *cache.Cache[bool]
}

// NewEnforcer loads the model and policy, from files when configured and
// present, otherwise from the embedded defaults.
func NewEnforcer(_ context.Context, config *EnforcerConfig) (*Enforcer, error) {
	if config == nil {
		config = DefaultEnforcerConfig()
	}

	m, err := loadModel(config.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var adapter persist.Adapter = stringadapter.NewAdapter(embeddedPolicy)
	if fileExists(config.PolicyPath) {
		adapter = fileadapter.NewAdapter(config.PolicyPath)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	e := &Enforcer{config: config, enforcer: enforcer}
	if config.CacheTTL > 0 {
		e.cache = cache.New[bool]("authz", config.CacheTTL)
	}
	return e, nil
}

func loadModel(path string) (model.Model, error) {
	if fileExists(path) {
		return model.NewModelFromFile(path)
	}
	return model.NewModelFromString(embeddedModel)
}

// Enforce checks if the subject can perform the action on the object.
func (e *Enforcer) Enforce(subject, object, action string) (bool, error) {
	key := strings.Join([]string{subject, object, action}, "\x00")
	if e.cache != nil {
		if allowed, ok := e.cache.Get(key); ok {
			return allowed, nil
		}
	}

	allowed, err := e.enforcer.Enforce(subject, object, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	if e.cache != nil {
		e.cache.Set(key, allowed)
	}
	return allowed, nil
}

// EnforceWithRoles allows the request when the user id, any of the token
// roles, or the default role (only when roles is empty) is allowed.
func (e *Enforcer) EnforceWithRoles(subject string, roles []string, object, action string) (bool, error) {
	subjects := append([]string{subject}, roles...)
	if len(roles) == 0 && e.config.DefaultRole != "" {
		subjects = append(subjects, e.config.DefaultRole)
	}
	for _, sub := range subjects {
		allowed, err := e.Enforce(sub, object, action)
		if err != nil || allowed {
			return allowed, err
		}
	}
	return false, nil
}

// AddRoleForUser assigns a role to a user.
func (e *Enforcer) AddRoleForUser(user, role string) (bool, error) {
	added, err := e.enforcer.AddGroupingPolicy(user, role)
	if err != nil {
		return false, fmt.Errorf("failed to add role: %w", err)
	}
	e.clearCache()
	return added, nil
}

// DeleteRoleForUser removes a role from a user.
func (e *Enforcer) DeleteRoleForUser(user, role string) (bool, error) {
	removed, err := e.enforcer.RemoveGroupingPolicy(user, role)
	if err != nil {
		return false, fmt.Errorf("failed to remove role: %w", err)
	}
	e.clearCache()
	return removed, nil
}

// SyncAdmins grants each stored administrator its role and revokes the admin
// role from users no longer stored. The master user id from config always
// holds the master role.
func (e *Enforcer) SyncAdmins(admins []*models.Admin, masterUserID string) error {
	if masterUserID != "" {
		if _, err := e.AddRoleForUser(masterUserID, string(models.RoleMaster)); err != nil {
			return err
		}
	}
	keep := make(map[string]bool, len(admins))
	for _, a := range admins {
		if a.Role == models.RoleAdmin {
			keep[a.UserID] = true
		}
		if _, err := e.AddRoleForUser(a.UserID, string(a.Role)); err != nil {
			return err
		}
	}

	current, err := e.enforcer.GetUsersForRole(string(models.RoleAdmin))
	if err != nil {
		return fmt.Errorf("failed to list administrators: %w", err)
	}
	for _, user := range current {
		// Role inheritance lines (g, master, admin) list roles as users.
		if user == string(models.RoleMaster) || keep[user] {
			continue
		}
		if _, err := e.DeleteRoleForUser(user, string(models.RoleAdmin)); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the enforcer.
func (e *Enforcer) Close() {
	e.enforcer.StopAutoLoadPolicy()
	e.clearCache()
}

func (e *Enforcer) clearCache() {
	if e.cache != nil {
		e.cache.Clear()
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
