// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package api

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/galdcup/internal/audit"
	"github.com/tomtom215/galdcup/internal/auth"
	"github.com/tomtom215/galdcup/internal/broadcast"
	"github.com/tomtom215/galdcup/internal/config"
	"github.com/tomtom215/galdcup/internal/models"
	"github.com/tomtom215/galdcup/internal/queue"
	"github.com/tomtom215/galdcup/internal/rotation"
	"github.com/tomtom215/galdcup/internal/voting"
	ws "github.com/tomtom215/galdcup/internal/websocket"
)

// Store is the slice of the persistence gateway the handlers read and
// write directly.
type Store interface {
	Ping(ctx context.Context) error
	ActiveSurvey(ctx context.Context) (*models.Survey, error)

	ListDestinations(ctx context.Context, enabledOnly bool) ([]*models.Destination, error)
	GetDestination(ctx context.Context, tenantID string) (*models.Destination, error)
	UpsertDestination(ctx context.Context, d *models.Destination) error
	DeleteDestination(ctx context.Context, tenantID string) error

	PutAdmin(ctx context.Context, a *models.Admin) error
	ListAdmins(ctx context.Context) ([]*models.Admin, error)
	DeleteAdmin(ctx context.Context, userID string) error
}

// ArchiveReader reads closed survey records.
type ArchiveReader interface {
	Get(ctx context.Context, surveyID int64) (*models.ArchiveRecord, error)
	Ping(ctx context.Context) error
}

// Rotator starts forced rotations.
type Rotator interface {
	Rotate(ctx context.Context, req rotation.RotateRequest) (*rotation.Outcome, error)
	Period() time.Duration
}

// Announcer posts the current survey to a newly registered destination.
type Announcer interface {
	AnnounceTo(ctx context.Context, dest *models.Destination, msg *broadcast.Message) broadcast.Result
}

// AdminSyncer mirrors stored administrators into the role enforcer.
type AdminSyncer interface {
	SyncAdmins(admins []*models.Admin, masterUserID string) error
}

// Deps are the collaborators of the handlers. Archive, Announcer, Admins,
// Audit and Hub are optional.
type Deps struct {
	Store     Store
	Archive   ArchiveReader
	Voting    *voting.Service
	Queue     *queue.Manager
	Rotator   Rotator
	Announcer Announcer
	Admins    AdminSyncer
	JWT       *auth.JWTManager
	Password  *auth.PasswordAuthenticator
	Hub       *ws.Hub
	Audit     *audit.Logger
}

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers_health.go: health probe
//   - handlers_auth.go: login and token minting
//   - handlers_surveys.go: active survey, status, archive, votes
//   - handlers_queue.go: suggestions and queue
//   - handlers_admin.go: rotation, destinations, administrators
//   - handlers_audit.go: operator audit trail
type Handler struct {
	deps      Deps
	config    *config.Config
	startTime time.Time
	logger    zerolog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		deps:      deps,
		config:    cfg,
		startTime: time.Now(),
		logger:    logger.With().Str("component", "api").Logger(),
	}
}
