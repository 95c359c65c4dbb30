package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
)

// Emit queues a domain event in the outbox. Pass the transaction-bound
// repository so the event commits with the change it describes.
func Emit(ctx context.Context, repo repository.OutboxRepository, eventType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	if err := repo.Create(ctx, &model.OutboxEvent{
		EventType: eventType,
		Payload:   payloadJSON,
	}); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}
