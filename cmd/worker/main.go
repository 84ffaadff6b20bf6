package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/scs-studio/backend-atelier/internal/config"
	"github.com/scs-studio/backend-atelier/internal/db"
	"github.com/scs-studio/backend-atelier/internal/events"
	"github.com/scs-studio/backend-atelier/internal/lock"
	"github.com/scs-studio/backend-atelier/internal/notify"
	"github.com/scs-studio/backend-atelier/internal/obs"
	"github.com/scs-studio/backend-atelier/internal/resilience"
)

const dispatchLockKey = "atelier:webhook-dispatch"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	dispatcher := &notify.Dispatcher{
		Store:          &notify.PGStore{Pool: pool},
		Events:         &events.PGStore{Pool: pool},
		Client: &resilience.HTTPClient{
			Client:      notify.HTTPClient(int(cfg.WebhookTimeout/time.Millisecond), false),
			Breaker:     resilience.NewBreaker(10, 0.5, 30*time.Second).WithTarget("webhook-delivery"),
			MaxAttempts: 1,
			Timeout:     cfg.WebhookTimeout,
		},
		BackoffBaseSec: int(cfg.WebhookBackoff / time.Second),
		MaxAttempts:    cfg.WebhookAttempts,
		Enabled:        cfg.WebhookEnabled,
		Replay:         lock.Guard{R: redisClient, Prefix: "replay:"},
		ReplayTTL:      cfg.WebhookTimeout * 2,
	}
	locker := lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff}

	interval := envDuration("WEBHOOK_DISPATCH_INTERVAL", 2*time.Second)
	batch := envInt("WEBHOOK_DISPATCH_BATCH", 50)

	logger.Info().Dur("interval", interval).Int("batch", batch).Msg("worker starting")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker shutdown complete")
			return
		case <-ticker.C:
			err := locker.WithLock(ctx, dispatchLockKey, cfg.LockTTL, func(lockCtx context.Context) error {
				return dispatcher.WorkOnce(lockCtx, batch)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("dispatch webhooks")
			}
		}
	}
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(val)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
