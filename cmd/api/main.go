package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/esante/rdv-service/internal/config"
	appointmenthandler "github.com/esante/rdv-service/internal/handler/appointment"
	availabilityhandler "github.com/esante/rdv-service/internal/handler/availability"
	healthhandler "github.com/esante/rdv-service/internal/handler/health"
	reviewhandler "github.com/esante/rdv-service/internal/handler/review"
	"github.com/esante/rdv-service/internal/middleware"
	"github.com/esante/rdv-service/internal/repository/postgres"
	"github.com/esante/rdv-service/internal/router"
	appointmentservice "github.com/esante/rdv-service/internal/service/appointment"
	calendarservice "github.com/esante/rdv-service/internal/service/calendar"
	eventservice "github.com/esante/rdv-service/internal/service/event"
	reservationservice "github.com/esante/rdv-service/internal/service/reservation"
	reviewservice "github.com/esante/rdv-service/internal/service/review"
	"github.com/esante/rdv-service/pkg/logger"
	"github.com/esante/rdv-service/pkg/metrics"
	"github.com/esante/rdv-service/pkg/validator"
)

func main() {
	appLogger := logger.NewLogger(nil)

	cfg, err := config.LoadConfig()
	if err != nil {
		appLogger.Fatal(err, "failed to load configuration")
	}

	if err := validator.RegisterBindings(); err != nil {
		appLogger.Fatal(err, "failed to register request validators")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		appLogger.Fatal(err, "failed to connect to redis")
	}
	defer redisClient.Close()

	m := metrics.NewMetrics("rdv", "scheduler")

	calendarRepo := postgres.NewCalendarRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)
	reviewRepo := postgres.NewReviewRepository(db)

	cache := calendarservice.NewCache(redisClient, appLogger, m)
	eventSvc := eventservice.NewService(outboxRepo, appLogger)
	calendarSvc := calendarservice.NewService(calendarRepo, cache, eventSvc, appLogger)
	coordinator := reservationservice.NewCoordinator(calendarRepo, cache, appLogger, m)
	appointmentSvc := appointmentservice.NewService(
		appointmentRepo,
		calendarSvc,
		cache,
		coordinator,
		eventSvc,
		appLogger,
		m,
	)
	reviewSvc := reviewservice.NewService(reviewRepo, appointmentRepo, eventSvc, appLogger)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	appointmentHandler := appointmenthandler.NewHandler(appointmentSvc)
	availabilityHandler := availabilityhandler.NewHandler(calendarSvc)
	reviewHandler := reviewhandler.NewHandler(reviewSvc)
	healthHandler := healthhandler.NewHandler(db, redisClient)

	r := router.NewRouter(
		authMiddleware,
		appointmentHandler,
		availabilityHandler,
		reviewHandler,
		healthHandler,
		router.Config{
			RateLimit:     rate.Limit(cfg.Server.RateLimit),
			RateBurst:     cfg.Server.RateBurst,
			CORSConfig:    middleware.DefaultCORSConfig(),
			MetricsPrefix: "rdv_http",
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		appLogger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(err, "failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal(err, "server forced to shutdown")
	}

	appLogger.Info("server exited properly")
}
