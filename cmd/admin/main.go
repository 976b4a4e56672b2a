package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ats-auth/internal/api/http"
	"github.com/spec-kit/ats-auth/internal/api/http/handlers"
	"github.com/spec-kit/ats-auth/internal/auth"
	"github.com/spec-kit/ats-auth/internal/authclient"
	"github.com/spec-kit/ats-auth/internal/config"
	"github.com/spec-kit/ats-auth/internal/domain"
	"github.com/spec-kit/ats-auth/internal/observability"
)

const serviceName = "admin-service"

// The admin gateway holds no signing secret. Every request is verified by
// the auth service through the remote client.
func main() {
	cfg, err := config.LoadDelegated()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, serviceName)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	name := cfg.Remote.ServiceName
	if name == "" {
		name = serviceName
	}
	client := authclient.New(authclient.Config{
		BaseURL:      cfg.Remote.BaseURL,
		Timeout:      cfg.Remote.Timeout(),
		ServiceToken: cfg.Remote.ServiceToken,
		ServiceName:  name,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Remote.ServiceToken != "" && cfg.Remote.RenewInterval() > 0 {
		go renewServiceToken(ctx, client, name, cfg.Remote.RenewInterval(), logger)
	}

	gate := auth.MiddlewareConfig{AllowedRoles: []string{string(domain.RoleAdmin)}}
	if cfg.Admin.UseCookie {
		gate.Source = auth.TokenFromCookie
		gate.CookieName = cfg.Admin.CookieName
	}

	app := fiber.New(fiber.Config{
		AppName:      serviceName,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterAdminRoutes(app, httptransport.AdminRouteConfig{
		Health:    handlers.NewHealthHandler(serviceName, cfg.App.Version, nil, nil),
		Admin:     handlers.NewAdminHandler(),
		Metrics:   metrics,
		AdminAuth: auth.NewMiddleware(client, gate),
	})

	logger.Info("admin gateway delegating auth",
		zap.String("auth_service", cfg.Remote.BaseURL),
		zap.Bool("cookie_mode", cfg.Admin.UseCookie))

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	cancel()
	if err := app.Shutdown(); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
}

// renewServiceToken swaps the gateway's service token for a fresh one on
// every tick so it never outlives its lifetime. A failed renewal keeps the
// current token and is retried on the next tick.
func renewServiceToken(ctx context.Context, client *authclient.Client, name string, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := client.RenewServiceToken(ctx, name, string(domain.RoleAdmin)); err != nil {
				logger.Warn("service token renewal failed", zap.Error(err))
				continue
			}
			logger.Info("service token renewed", zap.String("service", name))
		}
	}
}
