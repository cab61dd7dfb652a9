package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kitchenops/backoffice/internal/app"
	"github.com/kitchenops/backoffice/internal/auth"
	"github.com/kitchenops/backoffice/internal/observability"
	"github.com/kitchenops/backoffice/internal/permissions"
	"github.com/kitchenops/backoffice/internal/platform/cache"
	"github.com/kitchenops/backoffice/internal/platform/db"
	"github.com/kitchenops/backoffice/internal/rbac"
	"github.com/kitchenops/backoffice/internal/roles"
	"github.com/kitchenops/backoffice/internal/shared"
	"github.com/kitchenops/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, HealthCheckPeriod: time.Minute})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if applied, err := db.Migrate(ctx, dbpool); err != nil {
		logger.Error("migrate database", slog.Any("error", err))
		os.Exit(1)
	} else if applied > 0 {
		logger.Info("database migrated", slog.Int("applied", applied))
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	metrics := observability.NewMetrics()

	permissionRepo := permissions.NewRepository(dbpool)
	rbacService := rbac.NewService(rbac.NewRepository(dbpool))

	resolver := rbac.NewResolver(rbac.ResolverConfig{
		SuperTags:         cfg.AuthzSuperTags,
		OwnerEmails:       cfg.AuthzOwnerEmails,
		ProtectedPrefixes: cfg.AuthzProtectedPrefixes,
	})
	gate, err := rbac.NewMiddleware(resolver, logger, metrics, cfg.AuthzPathCacheSize)
	if err != nil {
		logger.Error("init authorization gate", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	roleConfig := roles.ServiceConfig{Logger: logger, Observer: metrics}
	if cfg.SessionRefreshOnCommit {
		jobClient, err := jobs.NewClient(redisOpts, logger)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		roleConfig.Notifier = jobClient
	}
	roleService := roles.NewService(roles.NewRepository(dbpool), permissionRepo, roleConfig)

	authService := auth.NewService(auth.NewRepository(dbpool), rbacService)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("job inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:                    logger,
		Config:                    cfg,
		SessionManager:            sessionManager,
		Gate:                      gate,
		AuthHandler:               auth.NewHandler(logger, authService, sessionManager, cfg.AuthTrustedHeader),
		AdminRolesHandler:         roles.NewHandler(logger, roleService, roles.ScopeAdmin),
		PartnerRolesHandler:       roles.NewHandler(logger, roleService, roles.ScopePartner),
		AdminPermissionsHandler:   rbac.NewPermissionsHandler(logger, permissionRepo, ""),
		PartnerPermissionsHandler: rbac.NewPermissionsHandler(logger, permissionRepo, permissions.CategoryPartner),
		JobHandler:                jobs.NewHandler(inspector, logger),
		Metrics:                   metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
