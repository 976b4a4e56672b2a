package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ats-auth/internal/api/http"
	"github.com/spec-kit/ats-auth/internal/api/http/handlers"
	"github.com/spec-kit/ats-auth/internal/auth"
	"github.com/spec-kit/ats-auth/internal/config"
	"github.com/spec-kit/ats-auth/internal/events"
	"github.com/spec-kit/ats-auth/internal/observability"
	"github.com/spec-kit/ats-auth/internal/persistence"
	"github.com/spec-kit/ats-auth/internal/repository"
	"github.com/spec-kit/ats-auth/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Name)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.App.IsDevelopment() {
		logger.Warn("development mode: unset signing secrets fall back to built-in values")
	}

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var userRepo repository.UserRepository
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		userRepo = repository.NewUserRepository(pg.PoolHandle())
	} else {
		userRepo = repository.NewMemoryUserRepository()
	}

	// Redis is only needed for refresh token revocation.
	var (
		redis    *persistence.Redis
		denylist auth.Denylist
	)
	if cfg.Auth.RevocationEnabled {
		redis, err = persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("revocation enabled but redis unavailable", zap.Error(err))
		}
		defer redis.Close()
		denylist = auth.NewRedisDenylist(redis.Handle())
	}

	publisher := newPublisher(cfg, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("closing event publisher", zap.Error(err))
		}
	}()

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:  userRepo,
		Publisher: publisher,
		Denylist:  denylist,
		Logger:    logger,
		Metrics:   metrics,
	})
	verifier := auth.NewLocalVerifier(authService.TokenManager())
	if cfg.Auth.UseCookie {
		logger.Info("user routes read the access token from a cookie", zap.String("cookie", cfg.Auth.CookieName))
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:   handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:     handlers.NewAuthHandler(authService),
		Metrics:  metrics,
		UserAuth: auth.NewMiddleware(verifier, userGate(cfg.Auth)),
		ServiceAuth: auth.NewMiddleware(verifier, auth.MiddlewareConfig{
			ServiceAuth: true,
		}),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.Shutdown(); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
}

// userGate reads the access token from the session cookie when cookie mode is
// on and from the Authorization header otherwise.
func userGate(cfg config.AuthConfig) auth.MiddlewareConfig {
	if !cfg.UseCookie {
		return auth.MiddlewareConfig{}
	}
	return auth.MiddlewareConfig{Source: auth.TokenFromCookie, CookieName: cfg.CookieName}
}

// newPublisher selects Kafka when brokers are configured and the in-process
// dispatcher otherwise.
func newPublisher(cfg *config.Config, logger *zap.Logger) events.Publisher {
	if len(cfg.Kafka.Brokers) > 0 {
		logger.Info("publishing user events to kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.UserEventsTopic))
		return events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.UserEventsTopic,
			ClientID:     cfg.Kafka.ClientID,
			WriteTimeout: cfg.Kafka.PublishTimeout(),
		}, logger)
	}

	logger.Warn("KAFKA_BROKERS not provided; user events stay in-process")
	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, logger).RegisterHandlers()
	return dispatcher
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
