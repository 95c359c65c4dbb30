package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
)

const sessionColumns = `
	id, patient_id, queue_entry_id, doctor_id, notes, diagnosis, status,
	started_at, completed_at, updated_at`

const itemColumns = `
	id, session_id, item_type, item_id, name, quantity, rate, total_amount,
	price_source, dosage, frequency, duration, instructions, created_at, updated_at`

type consultationRepository struct {
	BaseRepository
}

func NewConsultationRepository(base BaseRepository) repository.ConsultationRepository {
	return &consultationRepository{base}
}

func (r *consultationRepository) CreateSession(ctx context.Context, session *model.ConsultationSession) error {
	query := `
		INSERT INTO consultation_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.PatientID,
		session.QueueEntryID,
		session.DoctorID,
		session.Notes,
		session.Diagnosis,
		session.Status,
		session.StartedAt,
		session.CompletedAt,
		session.UpdatedAt,
	)
	return mapError(err, "create consultation session")
}

func (r *consultationRepository) GetSession(ctx context.Context, id uuid.UUID) (*model.ConsultationSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM consultation_sessions WHERE id = $1`

	var session model.ConsultationSession
	if err := sqlx.GetContext(ctx, r.db, &session, query, id); err != nil {
		return nil, mapError(err, "get consultation session")
	}
	return &session, nil
}

func (r *consultationRepository) GetSessionByQueueEntry(ctx context.Context, queueEntryID uuid.UUID) (*model.ConsultationSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM consultation_sessions WHERE queue_entry_id = $1`

	var session model.ConsultationSession
	if err := sqlx.GetContext(ctx, r.db, &session, query, queueEntryID); err != nil {
		return nil, mapError(err, "get consultation session by queue entry")
	}
	return &session, nil
}

func (r *consultationRepository) UpdateSession(ctx context.Context, session *model.ConsultationSession) error {
	query := `
		UPDATE consultation_sessions
		SET notes = $1, diagnosis = $2, status = $3, completed_at = $4, updated_at = $5
		WHERE id = $6
	`
	session.UpdatedAt = time.Now()

	res, err := r.db.ExecContext(ctx, query,
		session.Notes,
		session.Diagnosis,
		session.Status,
		session.CompletedAt,
		session.UpdatedAt,
		session.ID,
	)
	if err != nil {
		return mapError(err, "update consultation session")
	}
	return affected(res, "consultation session")
}

func (r *consultationRepository) AddItem(ctx context.Context, item *model.TreatmentItem) error {
	query := `
		INSERT INTO treatment_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	item.Recompute()

	_, err := r.db.ExecContext(ctx, query,
		item.ID,
		item.SessionID,
		item.ItemType,
		item.ItemID,
		item.Name,
		item.Quantity,
		item.Rate,
		item.TotalAmount,
		item.PriceSource,
		item.Dosage,
		item.Frequency,
		item.Duration,
		item.Instructions,
		item.CreatedAt,
		item.UpdatedAt,
	)
	return mapError(err, "add treatment item")
}

func (r *consultationRepository) GetItem(ctx context.Context, id uuid.UUID) (*model.TreatmentItem, error) {
	query := `SELECT ` + itemColumns + ` FROM treatment_items WHERE id = $1`

	var item model.TreatmentItem
	if err := sqlx.GetContext(ctx, r.db, &item, query, id); err != nil {
		return nil, mapError(err, "get treatment item")
	}
	return &item, nil
}

func (r *consultationRepository) UpdateItem(ctx context.Context, item *model.TreatmentItem) error {
	query := `
		UPDATE treatment_items
		SET quantity = $1, rate = $2, total_amount = $3, price_source = $4,
			dosage = $5, frequency = $6, duration = $7, instructions = $8, updated_at = $9
		WHERE id = $10
	`
	item.UpdatedAt = time.Now()
	item.Recompute()

	res, err := r.db.ExecContext(ctx, query,
		item.Quantity,
		item.Rate,
		item.TotalAmount,
		item.PriceSource,
		item.Dosage,
		item.Frequency,
		item.Duration,
		item.Instructions,
		item.UpdatedAt,
		item.ID,
	)
	if err != nil {
		return mapError(err, "update treatment item")
	}
	return affected(res, "treatment item")
}

func (r *consultationRepository) DeleteItem(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM treatment_items WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "delete treatment item")
	}
	return affected(res, "treatment item")
}

func (r *consultationRepository) ListItems(ctx context.Context, sessionID uuid.UUID) ([]*model.TreatmentItem, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM treatment_items
		WHERE session_id = $1
		ORDER BY created_at ASC
	`
	var items []*model.TreatmentItem
	if err := sqlx.SelectContext(ctx, r.db, &items, query, sessionID); err != nil {
		return nil, mapError(err, "list treatment items")
	}
	return items, nil
}
