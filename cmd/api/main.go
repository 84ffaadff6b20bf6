package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/scs-studio/backend-atelier/internal/analytics"
	"github.com/scs-studio/backend-atelier/internal/audit"
	"github.com/scs-studio/backend-atelier/internal/catalog"
	"github.com/scs-studio/backend-atelier/internal/common"
	"github.com/scs-studio/backend-atelier/internal/config"
	"github.com/scs-studio/backend-atelier/internal/db"
	"github.com/scs-studio/backend-atelier/internal/events"
	"github.com/scs-studio/backend-atelier/internal/expenses"
	"github.com/scs-studio/backend-atelier/internal/health"
	"github.com/scs-studio/backend-atelier/internal/lock"
	"github.com/scs-studio/backend-atelier/internal/notify"
	"github.com/scs-studio/backend-atelier/internal/obs"
	"github.com/scs-studio/backend-atelier/internal/promotion"
	"github.com/scs-studio/backend-atelier/internal/ratelimit"
	"github.com/scs-studio/backend-atelier/internal/sales"
	"github.com/scs-studio/backend-atelier/internal/security"
	"github.com/scs-studio/backend-atelier/internal/shipping"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "atelier")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "atelier-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	eventStore := &events.PGStore{Pool: pool}
	notifyStore := &notify.PGStore{Pool: pool}
	dispatcher := &notify.Dispatcher{
		Store:          notifyStore,
		Events:         eventStore,
		Client:         notify.HTTPClient(int(cfg.WebhookTimeout/time.Millisecond), false),
		BackoffBaseSec: int(cfg.WebhookBackoff / time.Second),
		MaxAttempts:    cfg.WebhookAttempts,
		Enabled:        cfg.WebhookEnabled,
		Replay:         lock.Guard{R: redisClient, Prefix: "replay:"},
		ReplayTTL:      cfg.WebhookTimeout * 2,
	}
	bus := &events.Bus{Store: eventStore, Scheduler: dispatcher}

	catalogSvc := &catalog.Service{
		Repo:           &catalog.Repo{Pool: pool},
		Cache:          catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		DefaultPerPage: cfg.DefaultPageSize,
		MaxPerPage:     cfg.MaxPageSize,
	}
	catalogHandler := &catalog.Handler{Svc: catalogSvc}

	promotionSvc := &promotion.Service{Repo: &promotion.Repo{Pool: pool}, Bus: bus}
	promotionHandler := &promotion.Handler{Svc: promotionSvc}

	salesSvc := &sales.Service{
		Repo:           &sales.Repo{Pool: pool},
		Catalog:        catalogSvc,
		Rules:          promotionSvc,
		Bus:            bus,
		DefaultPerPage: cfg.DefaultPageSize,
		MaxPerPage:     cfg.MaxPageSize,
	}
	salesHandler := &sales.Handler{Svc: salesSvc}

	shippingSvc := &shipping.Service{Repo: &shipping.Repo{Pool: pool}, GlobalBase: cfg.ShippingBase}
	shippingHandler := &shipping.Handler{Svc: shippingSvc}

	expensesSvc := &expenses.Service{
		Repo:           &expenses.Repo{Pool: pool},
		DefaultPerPage: cfg.DefaultPageSize,
		MaxPerPage:     cfg.MaxPageSize,
	}
	expensesHandler := &expenses.Handler{Svc: expensesSvc}

	analyticsSvc := &analytics.Service{
		Q:            &analytics.PGQuerier{Pool: pool},
		R:            redisClient,
		TTL:          cfg.AnalyticsTTL,
		DefaultRange: int(cfg.AnalyticsRange.Hours() / 24),
	}
	analyticsHandler := &analytics.Handler{Svc: analyticsSvc}

	notifyAdmin := &notify.AdminHandler{Store: notifyStore, Disp: dispatcher}

	auditStore := &audit.PGStore{Pool: pool}
	auditRecorder := audit.HTTPRecorder{
		Service: audit.Service{Store: auditStore, Enabled: cfg.AuditEnabled, SamplingRate: cfg.AuditSampling},
		OnError: func(err error) { logger.Error().Err(err).Msg("record audit entry") },
	}
	auditHandler := &audit.Handler{Store: auditStore}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	writeLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "ratelimit:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("write"),
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:      health.Deps{Pool: pool, Redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(auditRecorder.Middleware)

		v.Route("/products", func(p chi.Router) {
			p.Get("/", catalogHandler.List)
			p.With(writeLimit.Middleware).Post("/", catalogHandler.Create)
			p.Route("/{id}", func(child chi.Router) {
				child.Get("/", catalogHandler.Get)
				child.Patch("/", catalogHandler.Update)
				child.Delete("/", catalogHandler.Delete)
				child.With(writeLimit.Middleware).Post("/variants/{variantId}/stock", catalogHandler.AdjustStock)
			})
		})

		v.Route("/promotions", func(p chi.Router) {
			p.Get("/", promotionHandler.List)
			p.Post("/", promotionHandler.Create)
			p.Post("/preview", promotionHandler.Preview)
			p.Patch("/{id}", promotionHandler.Update)
			p.Delete("/{id}", promotionHandler.Delete)
			p.Post("/{id}/toggle", promotionHandler.Toggle)
		})

		v.Route("/sales", func(s chi.Router) {
			s.Get("/", salesHandler.List)
			s.Get("/{id}", salesHandler.Get)
			s.With(writeLimit.Middleware, idem.Middleware).Post("/", salesHandler.Create)
			s.Patch("/{id}/status", salesHandler.UpdateStatus)
		})

		v.Route("/shipping", func(s chi.Router) {
			s.Get("/districts", shippingHandler.Districts)
			s.Patch("/districts/{name}", shippingHandler.UpdateDistrict)
			s.Get("/quote", shippingHandler.Quote)
		})

		v.Route("/expenses", func(e chi.Router) {
			e.Get("/", expensesHandler.List)
			e.Post("/", expensesHandler.Create)
			e.Patch("/{id}", expensesHandler.Update)
			e.Delete("/{id}", expensesHandler.Delete)
		})

		v.Route("/analytics", func(an chi.Router) {
			an.Get("/overview", analyticsHandler.Overview)
			an.Get("/top-products", analyticsHandler.TopProducts)
		})

		v.Route("/webhooks", func(wh chi.Router) {
			wh.Get("/", notifyAdmin.ListEndpoints)
			wh.Post("/", notifyAdmin.CreateEndpoint)
			wh.Put("/{id}", notifyAdmin.UpdateEndpoint)
			wh.Delete("/{id}", notifyAdmin.DeleteEndpoint)
		})
		v.Get("/webhook-deliveries", notifyAdmin.ListDeliveries)
		v.Post("/webhook-deliveries/{id}/replay", notifyAdmin.ReplayDelivery)

		v.Get("/audit-logs", auditHandler.List)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	health.SetReady(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
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

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
