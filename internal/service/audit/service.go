package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
)

// Actor identifies who is making a request.
type Actor struct {
	StaffID   *uuid.UUID
	IPAddress string
	UserAgent string
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}

// Record writes an activity record through repo, which is normally bound
// to the same transaction as the change being recorded.
func Record(ctx context.Context, repo repository.AuditRepository, action, entityType string, entityID uuid.UUID, changes interface{}) error {
	var raw json.RawMessage
	if changes != nil {
		b, err := json.Marshal(changes)
		if err != nil {
			return fmt.Errorf("failed to encode audit changes: %w", err)
		}
		raw = b
	}

	actor := ActorFrom(ctx)
	return repo.Create(ctx, &model.AuditLog{
		ID:         uuid.New(),
		StaffID:    actor.StaffID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    raw,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		CreatedAt:  time.Now(),
	})
}
