package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
	"github.com/jwalitptl/clinic-desk/pkg/logger"
	"github.com/jwalitptl/clinic-desk/pkg/messaging"
	"github.com/jwalitptl/clinic-desk/pkg/metrics"
)

type OutboxProcessorConfig struct {
	Channel       string
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	// RetryDelay schedules the next attempt of an event whose publish
	// failed in this round.
	RetryDelay time.Duration
	// PublishBackoff separates attempts within one round.
	PublishBackoff time.Duration
}

// OutboxProcessor relays outbox rows to the broker.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		return nil, fmt.Errorf("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		return nil, fmt.Errorf("RetryDelay must be greater than 0")
	}
	if config.Channel == "" {
		return nil, fmt.Errorf("Channel is required")
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger.With("outbox"),
		metrics: metrics,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor", "channel", p.config.Channel)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessOnce relays one batch and returns how many events were published.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	processed, failed, err := p.repo.ProcessPending(ctx, p.config.BatchSize, p.config.RetryDelay,
		func(evt *model.OutboxEvent) error {
			return p.publish(ctx, evt)
		})
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("process_outbox", "error").Inc()
		return processed, fmt.Errorf("failed to process pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("process_outbox", "success").Inc()

	p.metrics.OutboxEventsProcessed.Add(float64(processed))
	p.metrics.OutboxEventsFailed.Add(float64(failed))
	if processed+failed > 0 {
		p.logger.Debug("Outbox batch relayed", "processed", processed, "failed", failed)
	}
	return processed, nil
}

func (p *OutboxProcessor) publish(ctx context.Context, evt *model.OutboxEvent) error {
	msg, err := json.Marshal(model.Envelope{
		ID:      evt.ID,
		Type:    evt.EventType,
		Payload: evt.Payload,
		At:      evt.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	attempt := 0
	err = retry(p.config.RetryAttempts, p.config.PublishBackoff, func() error {
		if attempt > 0 {
			p.metrics.OutboxRetries.WithLabelValues(evt.EventType).Inc()
		}
		attempt++
		return p.broker.Publish(ctx, p.config.Channel, msg)
	})
	if err != nil {
		p.logger.Error(err, "Failed to publish event",
			"event_id", evt.ID.String(),
			"event_type", evt.EventType)
	}
	return err
}

// Helper retry function
func retry(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 && delay > 0 {
			time.Sleep(delay)
		}
	}
	return err
}
