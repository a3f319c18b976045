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
	"github.com/redis/go-redis/v9"

	"github.com/meridian-hr/meridian-hr/internal/app"
	"github.com/meridian-hr/meridian-hr/internal/audit"
	"github.com/meridian-hr/meridian-hr/internal/auth"
	"github.com/meridian-hr/meridian-hr/internal/observability"
	"github.com/meridian-hr/meridian-hr/internal/platform/db"
	"github.com/meridian-hr/meridian-hr/internal/rbac"
	"github.com/meridian-hr/meridian-hr/internal/roles"
	"github.com/meridian-hr/meridian-hr/internal/users"
	"github.com/meridian-hr/meridian-hr/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, []byte(cfg.JWTSecret), cfg.TokenTTL)
	authHandler := auth.NewHandler(logger, authService)
	authMiddleware := auth.Middleware{Service: authService, Logger: logger}

	cache := rbac.NewPermissionCache(cfg.PermissionCacheTTL)
	fanout := rbac.NewFanout(redisClient, cache, logger)
	go func() {
		if err := fanout.Listen(ctx); err != nil && err != context.Canceled {
			logger.Warn("cache fanout listener stopped", slog.Any("error", err))
		}
	}()

	engine := rbac.NewEngine(authRepo, cache, logger, metrics, rbac.Options{
		AdminRole:     cfg.AdminRole,
		ElevatedRoles: cfg.ElevatedRoleNames(),
	})
	rbacMiddleware := rbac.Middleware{Engine: engine, Logger: logger}

	recorder := audit.NewRecorder(dbpool, logger, metrics)
	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo)

	rolesRepo := roles.NewRepository(dbpool)
	rolesService := roles.NewService(rolesRepo, recorder, fanout, logger)
	rolesHandler := roles.NewHandler(logger, rolesService, rbacMiddleware)

	reverter := audit.NewReverter(auditRepo, rolesRepo, recorder, fanout, logger)
	auditHandler := audit.NewHandler(logger, auditService, reverter, rbacMiddleware)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	// Warmup tasks run in this process so they populate the same cache the
	// engine consults. The standalone worker only schedules them.
	warmupJob := jobs.NewPermissionCacheWarmupJob(authRepo, cache, dbpool, logger)
	warmupWorker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Queues:    map[string]int{jobs.QueueWarmup: 1},
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPermissionCacheWarmup, Handler: warmupJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init warmup worker", slog.Any("error", err))
		os.Exit(1)
	}
	go func() {
		if err := warmupWorker.Run(ctx); err != nil && err != context.Canceled {
			logger.Warn("warmup worker stopped", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		AuthHandler:    authHandler,
		AuthMiddleware: authMiddleware,
		RolesHandler:   rolesHandler,
		UsersHandler:   usersHandler,
		AuditHandler:   auditHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
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
