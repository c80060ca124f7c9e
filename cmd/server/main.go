// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/galdcup/internal/ai"
	"github.com/tomtom215/galdcup/internal/api"
	"github.com/tomtom215/galdcup/internal/archive"
	"github.com/tomtom215/galdcup/internal/audit"
	"github.com/tomtom215/galdcup/internal/auth"
	"github.com/tomtom215/galdcup/internal/authz"
	"github.com/tomtom215/galdcup/internal/broadcast"
	"github.com/tomtom215/galdcup/internal/cascade"
	"github.com/tomtom215/galdcup/internal/chart"
	"github.com/tomtom215/galdcup/internal/config"
	"github.com/tomtom215/galdcup/internal/discord"
	"github.com/tomtom215/galdcup/internal/events"
	"github.com/tomtom215/galdcup/internal/logging"
	"github.com/tomtom215/galdcup/internal/objectstore"
	"github.com/tomtom215/galdcup/internal/queue"
	"github.com/tomtom215/galdcup/internal/rotation"
	"github.com/tomtom215/galdcup/internal/store"
	"github.com/tomtom215/galdcup/internal/supervisor"
	"github.com/tomtom215/galdcup/internal/supervisor/services"
	"github.com/tomtom215/galdcup/internal/tally"
	"github.com/tomtom215/galdcup/internal/voting"
	ws "github.com/tomtom215/galdcup/internal/websocket"
)

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash of a password for security.admin_password_hash and exit")
	flag.Parse()
	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("store_path", cfg.Store.Path).
		Str("archive_path", cfg.Archive.Path).
		Dur("period", cfg.Rotation.Period).
		Bool("ai", cfg.AI.Enabled).
		Bool("charts", cfg.Chart.Enabled).
		Bool("objectstore", cfg.ObjectStore.Enabled).
		Bool("discord", cfg.Discord.Enabled).
		Msg("Starting Galdcup")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// === PERSISTENCE ===
	st, err := store.Open(store.Config{
		Path:       cfg.Store.Path,
		InMemory:   cfg.Store.InMemory,
		SyncWrites: cfg.Store.SyncWrites,
	}, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	arch, err := archive.Open(ctx, cfg.Archive.Path, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open archive")
	}
	defer func() {
		if err := arch.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing archive")
		}
	}()

	var auditLog *audit.Logger
	if cfg.Audit.Enabled {
		auditStore := audit.NewDuckDBStore(arch.Conn())
		if err := auditStore.CreateTable(ctx); err != nil {
			logging.Fatal().Err(err).Msg("Failed to create audit table")
		}
		auditLog = audit.NewLogger(auditStore, &audit.Config{
			Enabled:         true,
			RetentionDays:   cfg.Audit.RetentionDays,
			CleanupInterval: 24 * time.Hour,
			BufferSize:      cfg.Audit.BufferSize,
			LogToStdout:     cfg.Audit.LogToStdout,
		}, logger)
		defer func() {
			if err := auditLog.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing audit logger")
			}
		}()
		logging.Info().Int("retention_days", cfg.Audit.RetentionDays).Msg("Audit logging initialized with DuckDB persistence")
	}

	bus := events.NewBus(0)
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	// === COLLABORATORS ===
	// Optional collaborators stay nil interfaces when disabled.
	var (
		generator cascade.TopicGenerator
		clusterer tally.Clusterer
		assistant queue.Assistant
	)
	if cfg.AI.Enabled {
		client, err := ai.New(cfg.AI, logger)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize AI client")
		}
		generator, clusterer, assistant = client, client, client
		logging.Info().Str("model", cfg.AI.Model).Msg("AI collaborator enabled")
	}

	var charts rotation.ChartRenderer
	if cfg.Chart.Enabled {
		charts = chart.New(cfg.Chart)
	}

	var uploader rotation.ChartUploader
	if cfg.ObjectStore.Enabled {
		client, err := objectstore.New(ctx, cfg.ObjectStore, logger)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize object store")
		}
		uploader = client
		logging.Info().Str("bucket", cfg.ObjectStore.Bucket).Msg("Chart uploads enabled")
	}

	votes := voting.NewService(st, arch, bus, cfg.Rotation.Period, logger)

	var (
		bot       *discord.Bot
		messenger broadcast.Messenger
	)
	if cfg.Discord.Enabled {
		bot, err = discord.New(cfg.Discord, votes, st, logger)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize Discord bot")
		}
		messenger = bot.Messenger()
	} else {
		logging.Warn().Msg("Discord disabled, broadcasts are written to the log")
		messenger = broadcast.NewLogMessenger(logger)
	}

	dispatcher := broadcast.NewDispatcher(st, messenger, cfg.Broadcast, logger)

	strategies := []cascade.Strategy{cascade.QueueStrategy{Queue: st}}
	if generator != nil {
		strategies = append(strategies, cascade.AIStrategy{Generator: generator, Timeout: cfg.AI.Timeout})
	}
	strategies = append(strategies, cascade.FallbackStrategy{})

	scheduler := rotation.New(rotation.Deps{
		Store:      st,
		Archive:    arch,
		Cascade:    cascade.New(logger, strategies...),
		Tally:      tally.NewAdapter(clusterer, cfg.Rotation.CollaboratorTimeout, logger),
		Charts:     charts,
		Uploader:   uploader,
		Dispatcher: dispatcher,
		Events:     bus,
	}, cfg.Rotation, logger)

	queueManager := queue.New(st, assistant, scheduler, cfg.Queue, cfg.Rotation.CollaboratorTimeout, logger)

	// === AUTHENTICATION AND AUTHORIZATION ===
	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}

	enforcerCfg := authz.DefaultEnforcerConfig()
	enforcerCfg.ModelPath = cfg.Security.CasbinModelPath
	enforcerCfg.PolicyPath = cfg.Security.CasbinPolicyPath
	enforcer, err := authz.NewEnforcer(ctx, enforcerCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization enforcer")
	}
	defer enforcer.Close()

	admins, err := st.ListAdmins(ctx)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load administrators")
	}
	if err := enforcer.SyncAdmins(admins, cfg.Security.MasterUserID); err != nil {
		logging.Fatal().Err(err).Msg("Failed to sync administrators")
	}
	logging.Info().Int("admins", len(admins)).Msg("Authorization policy loaded")

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (rate_limit_disabled=true)")
	}

	// === HTTP ===
	wsHub := ws.NewHub()

	handler := api.NewHandler(api.Deps{
		Store:     st,
		Archive:   arch,
		Voting:    votes,
		Queue:     queueManager,
		Rotator:   scheduler,
		Announcer: dispatcher,
		Admins:    enforcer,
		JWT:       jwtManager,
		Password:  auth.NewPasswordAuthenticator(cfg.Security.AdminUsername, cfg.Security.AdminPasswordHash),
		Hub:       wsHub,
		Audit:     auditLog,
	}, cfg, logger)

	router := api.NewRouter(handler,
		api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(cfg.Security)),
		auth.NewMiddleware(jwtManager),
		authz.NewMiddleware(enforcer))

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.Timeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	// === SUPERVISOR TREE ===
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Engine layer
	tree.AddEngineService(services.NewRotationSchedulerService(scheduler))
	tree.AddEngineService(services.NewStatusWatcherService(votes, bus))
	if auditLog != nil {
		tree.AddEngineService(auditLog)
	}

	// Messaging layer
	tree.AddMessagingService(services.NewWebSocketHubService(wsHub))
	tree.AddMessagingService(ws.NewEventRelay(wsHub, bus))
	if bot != nil {
		tree.AddMessagingService(services.NewDiscordSessionService(bot))
	}

	// API layer
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	run(ctx, tree, logger)
}

// run serves the tree until ctx ends and reports services that outlived
// the shutdown timeout.
func run(ctx context.Context, tree *supervisor.SupervisorTree, logger zerolog.Logger) {
	logger.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logger.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logger.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logger.Info().Msg("Application stopped gracefully")
}
