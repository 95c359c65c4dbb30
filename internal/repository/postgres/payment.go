package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
)

type paymentRepository struct {
	BaseRepository
}

func NewPaymentRepository(base BaseRepository) repository.PaymentRepository {
	return &paymentRepository{base}
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	query := `
		INSERT INTO payments (id, session_id, amount, method, reference, received_by, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}

	_, err := r.db.ExecContext(ctx, query,
		payment.ID,
		payment.SessionID,
		payment.Amount,
		payment.Method,
		payment.Reference,
		payment.ReceivedBy,
		payment.PaidAt,
	)
	return mapError(err, "record payment")
}

func (r *paymentRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*model.Payment, error) {
	query := `
		SELECT id, session_id, amount, method, reference, received_by, paid_at
		FROM payments
		WHERE session_id = $1
		ORDER BY paid_at ASC
	`
	var payments []*model.Payment
	if err := sqlx.SelectContext(ctx, r.db, &payments, query, sessionID); err != nil {
		return nil, mapError(err, "list payments")
	}
	return payments, nil
}
