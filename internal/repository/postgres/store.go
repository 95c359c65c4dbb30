package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-desk/internal/repository"
)

type store struct {
	db *sqlx.DB
}

// NewStore returns a repository.Store backed by PostgreSQL.
func NewStore(db *sqlx.DB) repository.Store {
	return &store{db: db}
}

func (s *store) Repos() repository.Repositories {
	return newRepositories(NewBaseRepository(s.db))
}

func (s *store) WithTx(ctx context.Context, fn func(repository.Repositories) error) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(newRepositories(NewBaseRepository(tx)))
	})
}

func newRepositories(base BaseRepository) repository.Repositories {
	return repository.Repositories{
		Patients:      NewPatientRepository(base),
		Queue:         NewQueueRepository(base),
		Consultations: NewConsultationRepository(base),
		Pricing:       NewPricingRepository(base),
		Payments:      NewPaymentRepository(base),
		Audit:         NewAuditRepository(base),
		Outbox:        NewOutboxRepository(base),
	}
}
