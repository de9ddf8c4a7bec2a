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

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/regulacao-api/internal/config"
	"github.com/jwalitptl/regulacao-api/internal/email"
	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository/postgres"
	"github.com/jwalitptl/regulacao-api/internal/service/notify"
	"github.com/jwalitptl/regulacao-api/pkg/logger"
	"github.com/jwalitptl/regulacao-api/pkg/messaging"
	"github.com/jwalitptl/regulacao-api/pkg/messaging/rabbitmq"
	"github.com/jwalitptl/regulacao-api/pkg/messaging/redis"
	"github.com/jwalitptl/regulacao-api/pkg/metrics"
	"github.com/jwalitptl/regulacao-api/pkg/worker"
)

const healthAddr = ":8081"

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	appLogger := logger.NewLogger(&cfg.Log).WithFields(map[string]interface{}{"worker_id": workerID()})

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker, err := newBroker(ctx, cfg.Broker, appLogger)
	if err != nil {
		appLogger.Fatal(err, "failed to connect to message broker", "driver", cfg.Broker.Driver)
	}
	defer broker.Close()

	// WhatsApp is delivered by an external sender subscribed to the broker.
	// Email goes over SMTP when it is configured and through the broker otherwise.
	brokerDispatcher := notify.NewBrokerDispatcher(broker)
	dispatchers := notify.NewRouter().
		Register(model.ChannelWhatsApp.EventType(), brokerDispatcher).
		Register(model.ChannelEmail.EventType(), brokerDispatcher)
	if cfg.SMTP.Enabled {
		dispatchers.Register(model.ChannelEmail.EventType(), notify.NewEmailDispatcher(email.NewSMTPService(cfg.SMTP)))
	}

	outboxRepo := postgres.NewOutboxRepository(db)
	processor := worker.NewOutboxProcessor(
		outboxRepo,
		dispatchers,
		worker.OutboxProcessorConfig{
			BatchSize:     cfg.Outbox.BatchSize,
			PollInterval:  cfg.Outbox.PollInterval,
			RetryAttempts: cfg.Outbox.RetryAttempts,
			RetryDelay:    cfg.Outbox.RetryDelay,
			MaxRetries:    cfg.Outbox.MaxRetries,
		},
		appLogger,
		metrics.NewMetrics("regulacao", "worker", nil),
	)
	cleanup := worker.NewOutboxCleanupWorker(outboxRepo, cfg.Outbox.Retention, cfg.Outbox.CleanupInterval, appLogger)

	srv := healthServer(db)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		processor.Start(gctx)
		return nil
	})
	g.Go(func() error {
		cleanup.Start(gctx)
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	appLogger.Info("worker started", "broker", cfg.Broker.Driver, "smtp", cfg.SMTP.Enabled)
	if err := g.Wait(); err != nil {
		appLogger.Error(err, "worker stopped with error")
		os.Exit(1)
	}
	appLogger.Info("worker stopped")
}

func newBroker(ctx context.Context, cfg config.BrokerConfig, appLogger *logger.Logger) (messaging.Broker, error) {
	switch cfg.Driver {
	case "rabbitmq":
		return rabbitmq.NewBroker(rabbitmq.Config{
			URL:      cfg.AMQP.URL,
			Exchange: cfg.AMQP.Exchange,
		}, appLogger.ZL)
	case "redis":
		return redis.NewRedisBroker(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, appLogger.ZL)
	}
	return nil, fmt.Errorf("unknown broker driver %q", cfg.Driver)
}

func healthServer(db *sqlx.DB) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/health/metrics", promhttp.Handler())
	return &http.Server{Addr: healthAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func workerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}
