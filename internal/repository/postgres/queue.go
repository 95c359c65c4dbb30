package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
)

const queueColumns = `
	id, patient_id, queue_date, queue_number, status, visit_reason,
	payment_method, assigned_doctor_id, checked_in_at, version, updated_at`

const dayLayout = "2006-01-02"

type queueRepository struct {
	BaseRepository
}

func NewQueueRepository(base BaseRepository) repository.QueueRepository {
	return &queueRepository{base}
}

func (r *queueRepository) Create(ctx context.Context, entry *model.QueueEntry) error {
	query := `
		INSERT INTO queue_entries (` + queueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Version == 0 {
		entry.Version = 1
	}
	entry.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.PatientID,
		entry.QueueDate.Format(dayLayout),
		entry.QueueNumber,
		entry.Status,
		entry.VisitReason,
		entry.PaymentMethod,
		entry.AssignedDoctorID,
		entry.CheckedInAt,
		entry.Version,
		entry.UpdatedAt,
	)
	return mapError(err, "create queue entry")
}

func (r *queueRepository) Get(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_entries WHERE id = $1`

	var entry model.QueueEntry
	if err := sqlx.GetContext(ctx, r.db, &entry, query, id); err != nil {
		return nil, mapError(err, "get queue entry")
	}
	return &entry, nil
}

func (r *queueRepository) NextQueueNumber(ctx context.Context, date time.Time) (int, error) {
	query := `
		INSERT INTO queue_sequences (queue_date, last_value)
		VALUES ($1, 1)
		ON CONFLICT (queue_date) DO UPDATE
		SET last_value = queue_sequences.last_value + 1
		RETURNING last_value
	`
	var seq int
	if err := sqlx.GetContext(ctx, r.db, &seq, query, date.Format(dayLayout)); err != nil {
		return 0, mapError(err, "allocate queue number")
	}
	return seq, nil
}

func (r *queueRepository) ActiveForPatient(ctx context.Context, patientID uuid.UUID, date time.Time) (*model.QueueEntry, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM queue_entries
		WHERE patient_id = $1 AND queue_date = $2
		AND status NOT IN ('completed', 'cancelled')
		LIMIT 1
	`
	var entry model.QueueEntry
	if err := sqlx.GetContext(ctx, r.db, &entry, query, patientID, date.Format(dayLayout)); err != nil {
		return nil, mapError(err, "get active queue entry")
	}
	return &entry, nil
}

// List returns the day's entries, urgent first, then by check-in time.
func (r *queueRepository) List(ctx context.Context, filter *model.QueueFilter) ([]*model.QueueEntryView, error) {
	query := `
		SELECT q.id, q.patient_id, q.queue_date, q.queue_number, q.status,
			q.visit_reason, q.payment_method, q.assigned_doctor_id,
			q.checked_in_at, q.version, q.updated_at,
			p.patient_code, p.name AS patient_name
		FROM queue_entries q
		JOIN patients p ON p.id = q.patient_id
		WHERE q.queue_date = $1
	`
	args := []interface{}{filter.Date.Format(dayLayout)}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND q.status = $%d", len(args))
	}
	if filter.DoctorID != nil {
		args = append(args, *filter.DoctorID)
		query += fmt.Sprintf(" AND q.assigned_doctor_id = $%d", len(args))
	}
	query += " ORDER BY (q.status = 'urgent') DESC, q.checked_in_at ASC"

	var entries []*model.QueueEntryView
	if err := sqlx.SelectContext(ctx, r.db, &entries, query, args...); err != nil {
		return nil, mapError(err, "list queue")
	}
	return entries, nil
}

func (r *queueRepository) CompareAndSetStatus(ctx context.Context, change model.StatusChange) (*model.QueueEntry, error) {
	query := `
		UPDATE queue_entries
		SET status = $3,
			assigned_doctor_id = COALESCE($5, assigned_doctor_id),
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		AND ($4::int IS NULL OR version = $4)
		RETURNING ` + queueColumns

	var entry model.QueueEntry
	err := sqlx.GetContext(ctx, r.db, &entry, query,
		change.ID, change.From, change.To, change.ExpectedVersion, change.DoctorID)
	if err == nil {
		return &entry, nil
	}

	err = mapError(err, "update queue status")
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if _, getErr := r.Get(ctx, change.ID); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("queue entry %s: %w", change.ID, repository.ErrStale)
}

// ClaimNext moves the oldest urgent, else oldest waiting, entry of the day
// into consultation in one statement. Rows locked by a concurrent claim are
// skipped, so two callers never receive the same entry. When doctorID is
// set the claim only succeeds if that doctor has nobody in consultation.
func (r *queueRepository) ClaimNext(ctx context.Context, date time.Time, doctorID *uuid.UUID) (*model.QueueEntry, error) {
	query := `
		UPDATE queue_entries
		SET status = 'in_consultation',
			assigned_doctor_id = COALESCE($2, assigned_doctor_id),
			version = version + 1,
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM queue_entries
			WHERE queue_date = $1
			AND status IN ('waiting', 'urgent')
			AND ($2::uuid IS NULL OR assigned_doctor_id IS NULL OR assigned_doctor_id = $2)
			ORDER BY (status = 'urgent') DESC, checked_in_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND ($2::uuid IS NULL OR NOT EXISTS (
			SELECT 1 FROM queue_entries busy
			WHERE busy.assigned_doctor_id = $2
			AND busy.queue_date = $1
			AND busy.status = 'in_consultation'
		))
		RETURNING ` + queueColumns

	var entry model.QueueEntry
	if err := sqlx.GetContext(ctx, r.db, &entry, query, date.Format(dayLayout), doctorID); err != nil {
		return nil, mapError(err, "claim next queue entry")
	}
	return &entry, nil
}

func (r *queueRepository) DoctorBusy(ctx context.Context, doctorID uuid.UUID, date time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM queue_entries
			WHERE assigned_doctor_id = $1 AND queue_date = $2
			AND status = 'in_consultation'
		)
	`
	var busy bool
	if err := sqlx.GetContext(ctx, r.db, &busy, query, doctorID, date.Format(dayLayout)); err != nil {
		return false, mapError(err, "check doctor availability")
	}
	return busy, nil
}
