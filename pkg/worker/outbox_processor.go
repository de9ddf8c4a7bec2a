package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository"
	"github.com/jwalitptl/regulacao-api/pkg/logger"
	"github.com/jwalitptl/regulacao-api/pkg/metrics"
)

// Handler delivers one outbox event.
type Handler interface {
	Handle(ctx context.Context, event *model.OutboxEvent) error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// MaxRetries is how many polls may fail before the event is marked failed.
	MaxRetries int
}

type OutboxProcessor struct {
	repo    repository.OutboxRepository
	handler Handler
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	handler Handler,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	// Config validation instead of defaults
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		panic("MaxRetries must be greater than 0")
	}

	return &OutboxProcessor{
		repo:    repo,
		handler: handler,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch handles one batch of due events and returns how many it saw.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	seen := 0
	err := p.repo.LockPending(ctx, p.config.BatchSize, func(ctx context.Context, batch repository.OutboxBatch) error {
		for _, event := range batch.Events() {
			seen++
			if err := p.processEvent(ctx, batch, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("process_outbox", "error").Inc()
		return seen, fmt.Errorf("failed to process pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("process_outbox", "success").Inc()
	return seen, nil
}

// processEvent only returns errors from marking; delivery failures are
// recorded on the event.
func (p *OutboxProcessor) processEvent(ctx context.Context, batch repository.OutboxBatch, event *model.OutboxEvent) error {
	err := retry(ctx, p.config.RetryAttempts, p.config.RetryDelay, func() error {
		return p.handler.Handle(ctx, event)
	})
	if err == nil {
		p.metrics.OutboxEventsProcessed.Inc()
		return batch.MarkProcessed(ctx, event.ID)
	}

	if IsPermanent(err) || event.RetryCount+1 >= p.config.MaxRetries {
		p.metrics.OutboxEventsFailed.Inc()
		p.logger.Error(err, "Outbox event failed",
			"event_id", event.ID.String(),
			"event_type", event.EventType,
			"retry_count", event.RetryCount)
		return batch.MarkFailed(ctx, event.ID, err.Error())
	}

	p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	retryAt := p.now().Add(p.backoff(event.RetryCount))
	p.logger.Warn("Outbox event scheduled for retry",
		"event_id", event.ID.String(),
		"event_type", event.EventType,
		"retry_at", retryAt,
		"error", err.Error())
	return batch.MarkRetry(ctx, event.ID, err.Error(), retryAt)
}

// backoff doubles the poll interval per failed poll, capped at one hour.
func (p *OutboxProcessor) backoff(retryCount int) time.Duration {
	d := p.config.PollInterval
	for i := 0; i < retryCount && d < time.Hour; i++ {
		d *= 2
	}
	if d > time.Hour {
		d = time.Hour
	}
	return d
}

// Helper retry function
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || IsPermanent(err) {
			return err
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
