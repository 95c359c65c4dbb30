package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-desk/internal/config"
	"github.com/jwalitptl/clinic-desk/internal/email"
	consultationHandler "github.com/jwalitptl/clinic-desk/internal/handler/consultation"
	dispensaryHandler "github.com/jwalitptl/clinic-desk/internal/handler/dispensary"
	"github.com/jwalitptl/clinic-desk/internal/handler/health"
	patientHandler "github.com/jwalitptl/clinic-desk/internal/handler/patient"
	pricingHandler "github.com/jwalitptl/clinic-desk/internal/handler/pricing"
	"github.com/jwalitptl/clinic-desk/internal/handler/prometheus"
	queueHandler "github.com/jwalitptl/clinic-desk/internal/handler/queue"
	"github.com/jwalitptl/clinic-desk/internal/middleware"
	"github.com/jwalitptl/clinic-desk/internal/repository/postgres"
	"github.com/jwalitptl/clinic-desk/internal/router"
	"github.com/jwalitptl/clinic-desk/internal/service"
	consultationService "github.com/jwalitptl/clinic-desk/internal/service/consultation"
	dispensaryService "github.com/jwalitptl/clinic-desk/internal/service/dispensary"
	pricingService "github.com/jwalitptl/clinic-desk/internal/service/pricing"
	queueService "github.com/jwalitptl/clinic-desk/internal/service/queue"
	registrationService "github.com/jwalitptl/clinic-desk/internal/service/registration"
	"github.com/jwalitptl/clinic-desk/pkg/auth"
	"github.com/jwalitptl/clinic-desk/pkg/logger"
	"github.com/jwalitptl/clinic-desk/pkg/messaging"
	"github.com/jwalitptl/clinic-desk/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-desk/pkg/metrics"
	"github.com/jwalitptl/clinic-desk/pkg/security"
	"github.com/jwalitptl/clinic-desk/pkg/validator"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	log.Logger = *appLog.Zerolog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.Queue.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid queue timezone")
	}
	clock := service.NewClock(loc)

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	store := postgres.NewStore(db)

	m := metrics.New(cfg.Server.MetricsPrefix)

	ids, err := security.NewIDProtector(cfg.Security.NRICKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid NRIC key")
	}

	// The live feed is optional; the queue screens fall back to polling.
	var broker messaging.Broker
	if b, err := redis.NewRedisBroker(ctx, redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, appLog.Zerolog()); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, live queue feed disabled")
	} else {
		broker = b
		defer b.Close()
	}

	var mailer email.Service = email.Disabled{}
	if cfg.SMTP.Enabled() {
		mailer = email.NewSMTPService(email.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}

	// Initialize services
	queueSvc := queueService.NewService(store, clock, queueService.Config{
		NumberPrefix:    cfg.Queue.NumberPrefix,
		RefreshInterval: cfg.Queue.RefreshInterval,
		ViewTTL:         cfg.Queue.ViewTTL,
		SnapshotTTL:     cfg.Queue.SnapshotTTL,
		Channel:         cfg.Redis.Channel,
	}, broker, m, appLog)
	pricingSvc := pricingService.NewService(store, cache.New(cfg.Pricing.CacheTTL, 2*cfg.Pricing.CacheTTL), m)
	registrationSvc := registrationService.NewService(store, queueSvc, ids, clock, m)
	consultationSvc := consultationService.NewService(store, queueSvc, pricingSvc, clock)
	dispensarySvc := dispensaryService.NewService(store, queueSvc, consultationSvc, mailer, clock,
		dispensaryService.Config{ClinicName: cfg.Clinic.Name}, m, appLog)

	if broker != nil {
		go func() {
			if err := queueSvc.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("queue feed watcher stopped")
			}
		}()
	}

	// Setup router
	validator.InstallGin()
	gin.SetMode(gin.ReleaseMode)

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	}
	routerConfig := router.RouterConfig{
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSConfig:     corsConfig,
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerConfig.RateBurst = cfg.RateLimit.Burst
	}

	prom := prometheus.New(m)
	r := router.NewRouter(
		middleware.NewAuthMiddleware(auth.NewJWTService(auth.Config{
			Secret:   cfg.Auth.Secret,
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
		}), cfg.Auth.Enabled),
		health.NewHandler(map[string]health.Check{"database": db.PingContext}, prom.Handler()),
		prom,
		routerConfig,
		patientHandler.NewHandler(registrationSvc),
		queueHandler.NewHandler(queueSvc),
		pricingHandler.NewHandler(pricingSvc),
		consultationHandler.NewHandler(consultationSvc),
		dispensaryHandler.NewHandler(dispensarySvc),
	)
	r.Setup()

	// WriteTimeout stays zero by default so the event stream is not cut.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server exited properly")
}
