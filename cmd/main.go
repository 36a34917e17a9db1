/**
 * @description
 * This is the main entry point for the member-portal service.
 * It initializes and wires together all the components of the application:
 * configuration, database and Redis connections, the RabbitMQ producer, the
 * external API clients, the application services, the HTTP router and the
 * reconciliation scheduler. Finally, it starts the HTTP server.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/stormwellnessclub/member-portal/internal/api"
	"github.com/stormwellnessclub/member-portal/internal/app"
	"github.com/stormwellnessclub/member-portal/internal/config"
	"github.com/stormwellnessclub/member-portal/internal/store"
	"github.com/stormwellnessclub/member-portal/pkg/authclient"
	"github.com/stormwellnessclub/member-portal/pkg/edgeclient"
	"github.com/stormwellnessclub/member-portal/pkg/rabbitmq"
	"github.com/stormwellnessclub/member-portal/pkg/stripeclient"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env for local development; the deployed environment sets real vars
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Establish connection to the backend's PostgreSQL database
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statements to work with PgBouncer transaction pooling
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Redis backs the session-scoped draft store and the session cache
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("unable to parse Redis URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	// RabbitMQ producer, with a logging fallback so the portal still starts
	// when the broker is down
	var producer rabbitmq.Publisher
	if p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
		logger.Warn("rabbitmq unavailable, using fallback publisher", "error", err)
		producer = &rabbitmq.NoopPublisher{}
	} else {
		producer = p
	}
	defer producer.Close()

	// External API clients
	auth := authclient.NewClient(cfg.AuthBaseURL, cfg.AuthAPIKey)
	edge := edgeclient.NewClient(cfg.FunctionsBaseURL, cfg.FunctionsAPIKey)
	payments := stripeclient.NewClient(cfg.StripeAPIBaseURL, cfg.StripeSecretKey)

	// Data layer
	repository := store.NewRepository(dbpool)
	draftRepo := store.NewDraftRepository(dbpool)
	reconciliationRepo := store.NewReconciliationRepository(dbpool)
	sessionCache := store.NewRedisSessionCache(redisClient)
	sessionDrafts := store.NewRedisDraftStore(redisClient)

	// Application layer
	validator := app.NewSessionValidator(auth, sessionCache)
	resolver := app.NewStatusResolver(repository)
	gate := app.NewRouteGate(validator, resolver)
	activation := app.NewActivationService(repository, edge, payments, reconciliationRepo, producer)
	drafts := app.NewDraftService(sessionDrafts, draftRepo)

	// Reconciliation scheduler
	jobs := app.NewJobs(reconciliationRepo, edge, repository, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg.ReconciliationSchedule)
	scheduler.Start()

	// HTTP layer
	handler := api.NewHandler(gate, validator, activation, drafts, repository)
	webhooks := api.NewWebhookHandler(producer, reconciliationRepo, cfg.StripeWebhookSecret)
	router := api.NewRouter(handler, webhooks)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	<-scheduler.Stop().Done()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
