package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-desk/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrStale is returned when a conditional write matched no row because
	// the row changed since it was read.
	ErrStale = errors.New("record changed concurrently")
	// ErrDuplicate is returned on unique constraint violations.
	ErrDuplicate = errors.New("duplicate record")
)

// All repository interfaces in one file
type (
	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetByNRICDigest(ctx context.Context, digest string) (*model.Patient, error)
		FindMatches(ctx context.Context, name, phone string, limit int) ([]*model.Patient, error)
		Search(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
		SetTier(ctx context.Context, id uuid.UUID, tierID *uuid.UUID) error
		NextPatientCode(ctx context.Context, year int) (string, error)
	}

	QueueRepository interface {
		Create(ctx context.Context, entry *model.QueueEntry) error
		Get(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error)
		// NextQueueNumber allocates the next sequence value of the day.
		NextQueueNumber(ctx context.Context, date time.Time) (int, error)
		ActiveForPatient(ctx context.Context, patientID uuid.UUID, date time.Time) (*model.QueueEntry, error)
		List(ctx context.Context, filter *model.QueueFilter) ([]*model.QueueEntryView, error)
		// CompareAndSetStatus applies change only if the entry is still in
		// change.From (and at change.ExpectedVersion when given). It returns
		// ErrStale when the entry moved on.
		CompareAndSetStatus(ctx context.Context, change model.StatusChange) (*model.QueueEntry, error)
		// ClaimNext atomically moves the oldest urgent, else oldest waiting,
		// entry of the day into consultation.
		ClaimNext(ctx context.Context, date time.Time, doctorID *uuid.UUID) (*model.QueueEntry, error)
		DoctorBusy(ctx context.Context, doctorID uuid.UUID, date time.Time) (bool, error)
	}

	ConsultationRepository interface {
		CreateSession(ctx context.Context, session *model.ConsultationSession) error
		GetSession(ctx context.Context, id uuid.UUID) (*model.ConsultationSession, error)
		GetSessionByQueueEntry(ctx context.Context, queueEntryID uuid.UUID) (*model.ConsultationSession, error)
		UpdateSession(ctx context.Context, session *model.ConsultationSession) error
		AddItem(ctx context.Context, item *model.TreatmentItem) error
		GetItem(ctx context.Context, id uuid.UUID) (*model.TreatmentItem, error)
		UpdateItem(ctx context.Context, item *model.TreatmentItem) error
		DeleteItem(ctx context.Context, id uuid.UUID) error
		ListItems(ctx context.Context, sessionID uuid.UUID) ([]*model.TreatmentItem, error)
	}

	PricingRepository interface {
		ListTiers(ctx context.Context) ([]*model.PriceTier, error)
		GetTier(ctx context.Context, id uuid.UUID) (*model.PriceTier, error)
		GetCatalogItem(ctx context.Context, itemType model.ItemType, id uuid.UUID) (*model.CatalogItem, error)
		GetOverride(ctx context.Context, itemType model.ItemType, itemID, tierID uuid.UUID) (model.Money, error)
		UpsertOverride(ctx context.Context, itemType model.ItemType, itemID, tierID uuid.UUID, price model.Money) error
		DeleteOverride(ctx context.Context, itemType model.ItemType, itemID, tierID uuid.UUID) error
	}

	PaymentRepository interface {
		Create(ctx context.Context, payment *model.Payment) error
		ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*model.Payment, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ProcessPending locks up to limit due events, hands each to handle
		// and records the outcome in the same transaction.
		ProcessPending(ctx context.Context, limit int, retryDelay time.Duration, handle func(*model.OutboxEvent) error) (processed, failed int, err error)
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)

// Repositories groups repositories bound to one connection or transaction.
type Repositories struct {
	Patients      PatientRepository
	Queue         QueueRepository
	Consultations ConsultationRepository
	Pricing       PricingRepository
	Payments      PaymentRepository
	Audit         AuditRepository
	Outbox        OutboxRepository
}

// Store hands out repositories and runs units of work atomically.
type Store interface {
	Repos() Repositories
	WithTx(ctx context.Context, fn func(Repositories) error) error
}
