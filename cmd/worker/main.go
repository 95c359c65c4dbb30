package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-desk/internal/config"
	"github.com/jwalitptl/clinic-desk/internal/handler/health"
	"github.com/jwalitptl/clinic-desk/internal/repository/postgres"
	"github.com/jwalitptl/clinic-desk/internal/worker"
	"github.com/jwalitptl/clinic-desk/pkg/logger"
	"github.com/jwalitptl/clinic-desk/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-desk/pkg/metrics"
	outbox "github.com/jwalitptl/clinic-desk/pkg/worker"
)

const healthPort = 8081

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	log.Logger = *appLog.Zerolog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	repos := postgres.NewStore(db).Repos()

	broker, err := redis.NewRedisBroker(ctx, redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, appLog.Zerolog())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create redis broker")
	}
	defer broker.Close()

	m := metrics.New(cfg.Server.MetricsPrefix + "_worker")

	processor, err := outbox.NewOutboxProcessor(repos.Outbox, broker, outbox.OutboxProcessorConfig{
		Channel:        cfg.Redis.Channel,
		BatchSize:      cfg.Outbox.BatchSize,
		PollInterval:   cfg.Outbox.PollInterval,
		RetryAttempts:  cfg.Outbox.RetryAttempts,
		RetryDelay:     cfg.Outbox.RetryDelay,
		PublishBackoff: cfg.Redis.RetryBackoff,
	}, appLog, m)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid outbox processor configuration")
	}

	cleanup := worker.NewAuditCleanupWorker(
		repos.Audit,
		repos.Outbox,
		cfg.Audit.RetentionDays,
		cfg.Outbox.Retention,
		cfg.Audit.CleanupInterval,
		appLog,
	)

	srv := healthServer(health.NewHandler(map[string]health.Check{
		"database": db.PingContext,
	}, m.Handler()))
	go func() {
		log.Info().Int("port", healthPort).Msg("starting worker health server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}
	wg.Wait()
	log.Info().Msg("worker exited properly")
}

func healthServer(h *health.Handler) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	h.RegisterRoutes(engine.Group(""))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", healthPort),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
