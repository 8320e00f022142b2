package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/opencertify/diploma-engine/internal/archive"
	"github.com/opencertify/diploma-engine/internal/config"
	"github.com/opencertify/diploma-engine/internal/document"
	"github.com/opencertify/diploma-engine/internal/handler"
	"github.com/opencertify/diploma-engine/internal/infra/postgresql"
	"github.com/opencertify/diploma-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/opencertify/diploma-engine/internal/infra/redis"
	"github.com/opencertify/diploma-engine/internal/marker"
	"github.com/opencertify/diploma-engine/internal/observability"
	"github.com/opencertify/diploma-engine/internal/ratelimit"
	"github.com/opencertify/diploma-engine/internal/registry"
	"github.com/opencertify/diploma-engine/internal/repository"
	"github.com/opencertify/diploma-engine/internal/service"
	"github.com/opencertify/diploma-engine/internal/session"
	"github.com/opencertify/diploma-engine/internal/transport"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("diploma-engine api exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	store, err := session.NewStore(cfg.WorkDir, cfg.SessionTimeout(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	store.SetMetrics(metrics)
	defer store.RemoveAll()

	sweeper, err := session.NewSweeper(store, cfg.SessionSweepInterval(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize session sweeper: %w", err)
	}

	registryClient, err := registry.NewClient(cfg.RegistryURL, cfg.RegistryToken)
	if err != nil {
		return fmt.Errorf("failed to initialize registry client: %w", err)
	}

	var limiter ratelimit.RateLimiter = ratelimit.NopLimiter{}
	var rdb *goredis.Client
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		defer rdb.Close()

		limiter, err = infraredis.NewRedisRateLimiter(rdb, cfg.LookupRateLimitPerSec)
		if err != nil {
			return fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
	}

	batchService, err := service.NewBatchService(
		store,
		archive.New(),
		document.NewReader(),
		marker.NewGenerator(),
		document.NewStamper(),
		registryClient,
		limiter,
		cfg.VerificationBaseURL,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize batch service: %w", err)
	}
	batchService.SetMetrics(metrics)

	var sqlDB *sql.DB
	if cfg.DatabaseDSN != "" {
		db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("failed to initialize postgres: %w", err)
		}

		if err := migrations.Migrate(db); err != nil {
			return fmt.Errorf("database migrations failed: %w", err)
		}

		sqlDB, err = db.DB()
		if err != nil {
			return fmt.Errorf("failed to access underlying sql.DB: %w", err)
		}
		defer sqlDB.Close()

		batchService.SetIssuanceRepo(repository.NewGormIssuanceRepo(db))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
		BodyLimit:    int(cfg.MaxUploadBytes),
	})
	app.Use(metrics.HTTPMiddleware())

	if err := handler.RegisterSessionRoutes(app, batchService, cfg.MaxUploadBytes); err != nil {
		return fmt.Errorf("failed to register session routes: %w", err)
	}
	if err := handler.RegisterVerificationRoutes(app, batchService); err != nil {
		return fmt.Errorf("failed to register verification routes: %w", err)
	}
	handler.RegisterHealthRoutes(app, registryClient, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("diploma-engine api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sweeper.Start(groupCtx)
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.Shutdown()
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}
