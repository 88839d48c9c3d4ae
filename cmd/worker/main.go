package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kelseyhightower/envconfig"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/esante/rdv-service/internal/email"
	"github.com/esante/rdv-service/internal/repository/postgres"
	internalworker "github.com/esante/rdv-service/internal/worker"
	"github.com/esante/rdv-service/pkg/logger"
	"github.com/esante/rdv-service/pkg/messaging/redis"
	"github.com/esante/rdv-service/pkg/metrics"
	"github.com/esante/rdv-service/pkg/worker"
)

type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	RedisURL    string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	HealthAddr  string `envconfig:"HEALTH_ADDR" default:":8081"`

	BatchSize     int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	PollInterval  time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"2s"`
	RetryAttempts int           `envconfig:"OUTBOX_RETRY_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `envconfig:"OUTBOX_RETRY_DELAY" default:"500ms"`
	RetentionDays int           `envconfig:"OUTBOX_RETENTION_DAYS" default:"7"`

	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"noreply@esante.local"`
	NotifyInbox  string `envconfig:"NOTIFY_INBOX"`
}

func main() {
	appLogger := logger.NewLogger(nil)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		appLogger.Fatal(err, "failed to load configuration")
	}

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		appLogger.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{URL: cfg.RedisURL}, &log.Logger)
	if err != nil {
		appLogger.Fatal(err, "failed to connect to redis")
	}
	defer broker.Close()

	m := metrics.NewMetrics("rdv", "worker")
	outboxRepo := postgres.NewOutboxRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor := worker.NewOutboxProcessor(outboxRepo, broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.BatchSize,
		PollInterval:  cfg.PollInterval,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	}, appLogger, m)
	go processor.Start(ctx)

	cleanup := internalworker.NewOutboxCleanupWorker(outboxRepo, cfg.RetentionDays, time.Hour, appLogger)
	go cleanup.Start(ctx)

	if cfg.SMTPHost != "" && cfg.NotifyInbox != "" {
		mailer := email.NewMailer(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		notifier := internalworker.NewNotifier(broker, mailer, cfg.NotifyInbox, appLogger)
		go func() {
			if err := notifier.Start(ctx); err != nil {
				appLogger.Error(err, "notifier stopped")
			}
		}()
	} else {
		appLogger.Info("smtp not configured, email notifications disabled")
	}

	go serveHealth(cfg.HealthAddr, appLogger)

	appLogger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down worker")
	cancel()
}

func serveHealth(addr string, appLogger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	if err := http.ListenAndServe(addr, mux); err != nil {
		appLogger.Fatal(err, "health server failed")
	}
}
