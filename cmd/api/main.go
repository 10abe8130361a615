package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medbook-agent/cmd/mainconfig"
	"github.com/wolfman30/medbook-agent/internal/api/router"
	"github.com/wolfman30/medbook-agent/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medbook-agent/internal/config"
	"github.com/wolfman30/medbook-agent/internal/conversation"
	httpmiddleware "github.com/wolfman30/medbook-agent/internal/http/middleware"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting medbook API server", "env", cfg.Env, "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	awsCfg := loadAWS(ctx, cfg, logger)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := bootstrap.BuildApp(ctx, cfg, bootstrap.Overrides{AWS: awsCfg, Registerer: reg}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("shutdown cleanup failed", "error", err)
		}
	}()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      buildHandler(cfg, app, redisClient, reg, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildHandler(cfg *appconfig.Config, app *bootstrap.App, redisClient *redis.Client, reg *prometheus.Registry, logger *logging.Logger) http.Handler {
	checks := map[string]router.HealthCheck{}
	if app.Pool != nil {
		checks["database"] = func(ctx context.Context) error { return app.Pool.Ping(ctx) }
	}
	var quota *httpmiddleware.ChatQuota
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		quota = httpmiddleware.NewChatQuota(redisClient, cfg.ChatRateLimit, cfg.ChatRateWindow, logger)
	}

	return router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        conversation.NewHandler(app.Agent, logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		JWTSecret:          cfg.JWTSecret,
		Users:              app.Store,
		RateLimiter:        httpmiddleware.NewRateLimiter(cfg.HTTPRateLimitRPS, cfg.HTTPRateLimitBurst),
		ChatQuota:          quota,
		HealthChecks:       checks,
		ChatTimeout:        90 * time.Second,
	})
}

// loadAWS returns nil when no AWS-backed provider is configured.
func loadAWS(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *aws.Config {
	if cfg.BedrockModelID == "" && cfg.EmailProvider != "ses" {
		return nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config; bedrock and ses disabled", "error", err)
		return nil
	}
	return &awsCfg
}
