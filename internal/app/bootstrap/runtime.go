package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medbook-agent/internal/appointments"
	"github.com/wolfman30/medbook-agent/internal/clinic"
	appconfig "github.com/wolfman30/medbook-agent/internal/config"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available; chat quota disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildHours converts the clinic settings into the scheduling calendar.
func BuildHours(cfg *appconfig.Config) (clinic.Hours, error) {
	return clinic.NewHours(cfg.ClinicTimezone, cfg.ClinicOpenHour, cfg.ClinicCloseHour, time.Duration(cfg.SlotMinutes)*time.Minute)
}

// BuildPool opens the Postgres pool, or returns nil when DATABASE_URL is unset.
func BuildPool(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping database: %w", err)
	}
	logger.Info("connected to postgres")
	return pool, nil
}

// BuildStore picks the Postgres store when a pool exists and the in-memory
// store otherwise.
func BuildStore(pool *pgxpool.Pool, logger *logging.Logger) appointments.Store {
	if pool == nil {
		logger.Warn("DATABASE_URL not set; using in-memory appointment store")
		return appointments.NewMemoryStore()
	}
	return appointments.NewPostgresStore(pool)
}

// BuildLedgerDB exposes the pool through database/sql for the audit ledger.
func BuildLedgerDB(pool *pgxpool.Pool) *sql.DB {
	if pool == nil {
		return nil
	}
	return stdlib.OpenDBFromPool(pool)
}
