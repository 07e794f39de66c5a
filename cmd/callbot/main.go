package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/colin330smith/callbot-ai/internal/actions"
	"github.com/colin330smith/callbot-ai/internal/api"
	"github.com/colin330smith/callbot-ai/internal/clock"
	"github.com/colin330smith/callbot-ai/internal/delivery"
	"github.com/colin330smith/callbot-ai/internal/dispatch"
	"github.com/colin330smith/callbot-ai/internal/ingest"
	"github.com/colin330smith/callbot-ai/internal/observability"
	"github.com/colin330smith/callbot-ai/internal/registry"
	pgregistry "github.com/colin330smith/callbot-ai/internal/registry/postgres"
	"github.com/colin330smith/callbot-ai/internal/resilience"
	"github.com/colin330smith/callbot-ai/internal/retry"
	"github.com/colin330smith/callbot-ai/internal/rules"
)

func stateValue(s resilience.CircuitBreakerState) float64 {
	switch s {
	case resilience.CircuitBreakerStateHalfOpen:
		return 1
	case resilience.CircuitBreakerStateOpen:
		return 2
	default:
		return 0
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthHandler := observability.NewHealthHandler()

	// Endpoint and rule storage: Postgres when DATABASE_URL is set,
	// otherwise in-memory (registrations lost on restart).
	var endpoints registry.EndpointStore
	var ruleStore registry.RuleStore
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database")

		endpoints = pgregistry.NewEndpointStore(pool)
		ruleStore = pgregistry.NewRuleStore(pool)
		healthHandler.AddCheck("postgres", pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory registry")
		endpoints = registry.NewMemoryEndpointStore()
		ruleStore = registry.NewMemoryRuleStore()
	}

	metrics := observability.NewMetrics("callbot")

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	// Resilience: Redis-backed when REDIS_URL is set so the limits hold
	// across instances, in-memory otherwise.
	var rateLimiter resilience.RateLimiter
	var circuitBreaker resilience.CircuitBreaker
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opt)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to ping redis", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to redis")

		rateLimiter = resilience.NewRedisRateLimiter(redisClient, resilience.DefaultRedisRateLimiterConfig(), logger)
		circuitBreaker = resilience.NewRedisCircuitBreaker(redisClient, resilience.DefaultRedisCircuitBreakerConfig(), logger)
	} else {
		rateLimiter = resilience.NewInMemoryRateLimiter(resilience.DefaultRateLimiterConfig())
		cb := resilience.NewInMemoryCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
		cb.OnStateChange(func(endpointID string, from, to resilience.CircuitBreakerState) {
			logger.Warn("circuit breaker state change",
				"endpoint_id", endpointID,
				"from", from,
				"to", to,
			)
			metrics.CircuitBreakerState.WithLabelValues(endpointID).Set(stateValue(to))
			if to == resilience.CircuitBreakerStateOpen {
				metrics.CircuitBreakerTrips.WithLabelValues(endpointID).Inc()
			}
		})
		circuitBreaker = cb
	}

	executor := delivery.NewExecutor(httpClient, clock.RealClock{}, retry.Default(), endpoints, logger).
		WithMetrics(metrics).
		WithResilience(rateLimiter, circuitBreaker)

	engine := rules.NewEngine(actions.DefaultRegistry(httpClient), logger).WithMetrics(metrics)
	dispatcher := dispatch.NewDispatcher(endpoints, ruleStore, executor, engine, logger).WithMetrics(metrics)

	handler := api.NewHandler(endpoints, ruleStore, dispatcher, logger)

	// PROVIDER_SECRETS has the form "voiceai:secret1,payments:secret2".
	for _, pair := range strings.Split(os.Getenv("PROVIDER_SECRETS"), ",") {
		if name, secret, ok := strings.Cut(pair, ":"); ok {
			handler.WithProviderSecret(name, secret)
		}
	}

	router := api.NewRouter(api.RouterConfig{
		Handler:       handler,
		HealthHandler: healthHandler,
		Metrics:       metrics,
		Logger:        logger,
	})

	// Kafka ingestion is optional; HTTP POST /events always works.
	var consumer *ingest.Consumer
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg := ingest.DefaultConsumerConfig()
		cfg.Brokers = strings.Split(brokers, ",")
		if topic := os.Getenv("KAFKA_TOPIC"); topic != "" {
			cfg.Topic = topic
		}
		consumer = ingest.NewConsumer(cfg, dispatcher, logger)
		consumer.Start(ctx)
	}

	healthHandler.SetReady(true)

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if consumer != nil {
		consumer.Stop()
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
}
