package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
)

// maxOutboxRetries is how many failed publishes an event gets before it is
// parked as failed.
const maxOutboxRetries = 5

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	query := `
		INSERT INTO outbox_events (
			id, event_type, payload, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`
	event.ID = uuid.New()
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	event.Status = model.OutboxStatusPending

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		[]byte(event.Payload),
		event.Status,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

func (r *outboxRepository) ProcessPending(
	ctx context.Context,
	limit int,
	retryDelay time.Duration,
	handle func(*model.OutboxEvent) error,
) (processed, failed int, err error) {
	err = r.inTx(ctx, func(tx sqlx.ExtContext) error {
		query := `
			SELECT id, event_type, payload, status, error_message, retry_count,
				retry_at, created_at, processed_at, updated_at
			FROM outbox_events
			WHERE status IN ('pending', 'retry')
			AND (retry_at IS NULL OR retry_at <= NOW())
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`
		var events []*model.OutboxEvent
		if err := sqlx.SelectContext(ctx, tx, &events, query, limit); err != nil {
			return fmt.Errorf("failed to lock pending events: %w", err)
		}

		for _, evt := range events {
			if handleErr := handle(evt); handleErr != nil {
				failed++
				if err := r.markFailed(ctx, tx, evt, handleErr, retryDelay); err != nil {
					return err
				}
				continue
			}
			if err := r.markProcessed(ctx, tx, evt.ID); err != nil {
				return err
			}
			processed++
		}
		return nil
	})
	return processed, failed, err
}

func (r *outboxRepository) markProcessed(ctx context.Context, tx sqlx.ExtContext, id uuid.UUID) error {
	query := `
		UPDATE outbox_events
		SET status = 'processed', error_message = NULL, retry_at = NULL,
			processed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

func (r *outboxRepository) markFailed(ctx context.Context, tx sqlx.ExtContext, evt *model.OutboxEvent, cause error, retryDelay time.Duration) error {
	status := model.OutboxStatusRetry
	retryAt := time.Now().Add(retryDelay * time.Duration(evt.RetryCount+1))
	if evt.RetryCount+1 >= maxOutboxRetries {
		status = model.OutboxStatusFailed
	}

	query := `
		UPDATE outbox_events
		SET status = $1, error_message = $2, retry_count = retry_count + 1,
			retry_at = $3, updated_at = NOW()
		WHERE id = $4
	`
	if _, err := tx.ExecContext(ctx, query, status, cause.Error(), retryAt, evt.ID); err != nil {
		return fmt.Errorf("failed to mark event for retry: %w", err)
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = 'processed'
		AND processed_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return result.RowsAffected()
}
