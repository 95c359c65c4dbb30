// Package memory is an in-process repository.Store used by service and
// handler tests. Transactions run against a private copy of the state that
// replaces the shared state on success.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
)

type overrideKey struct {
	itemType model.ItemType
	itemID   uuid.UUID
	tierID   uuid.UUID
}

type state struct {
	patients   map[uuid.UUID]model.Patient
	patientSeq map[int]int
	queue      map[uuid.UUID]model.QueueEntry
	queueSeq   map[string]int
	sessions   map[uuid.UUID]model.ConsultationSession
	items      map[uuid.UUID]model.TreatmentItem
	tiers      map[uuid.UUID]model.PriceTier
	catalog    map[uuid.UUID]model.CatalogItem
	overrides  map[overrideKey]model.Money
	payments   map[uuid.UUID]model.Payment
	audits     []model.AuditLog
	outbox     []model.OutboxEvent
}

func newState() *state {
	return &state{
		patients:   map[uuid.UUID]model.Patient{},
		patientSeq: map[int]int{},
		queue:      map[uuid.UUID]model.QueueEntry{},
		queueSeq:   map[string]int{},
		sessions:   map[uuid.UUID]model.ConsultationSession{},
		items:      map[uuid.UUID]model.TreatmentItem{},
		tiers:      map[uuid.UUID]model.PriceTier{},
		catalog:    map[uuid.UUID]model.CatalogItem{},
		overrides:  map[overrideKey]model.Money{},
		payments:   map[uuid.UUID]model.Payment{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		patients:   cloneMap(s.patients),
		patientSeq: cloneMap(s.patientSeq),
		queue:      cloneMap(s.queue),
		queueSeq:   cloneMap(s.queueSeq),
		sessions:   cloneMap(s.sessions),
		items:      cloneMap(s.items),
		tiers:      cloneMap(s.tiers),
		catalog:    cloneMap(s.catalog),
		overrides:  cloneMap(s.overrides),
		payments:   cloneMap(s.payments),
		audits:     append([]model.AuditLog(nil), s.audits...),
		outbox:     append([]model.OutboxEvent(nil), s.outbox...),
	}
}

// Store implements repository.Store in memory.
type Store struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	st    *state
	fails map[string]error
}

func NewStore() *Store {
	return &Store{st: newState(), fails: map[string]error{}}
}

// FailOn makes the named operation (e.g. "queue.create") return err until
// cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fails, op)
		return
	}
	s.fails[op] = err
}

func (s *Store) Repos() repository.Repositories {
	return s.bind(&db{store: s})
}

func (s *Store) WithTx(ctx context.Context, fn func(repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	tx := s.st.clone()
	s.mu.Unlock()

	if err := fn(s.bind(&db{store: s, tx: tx})); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = tx
	s.mu.Unlock()
	return nil
}

func (s *Store) bind(d *db) repository.Repositories {
	return repository.Repositories{
		Patients:      &patientRepo{d},
		Queue:         &queueRepo{d},
		Consultations: &consultationRepo{d},
		Pricing:       &pricingRepo{d},
		Payments:      &paymentRepo{d},
		Audit:         &auditRepo{d},
		Outbox:        &outboxRepo{d},
	}
}

// db runs operations against either the shared state or a transaction's
// private copy.
type db struct {
	store *Store
	tx    *state
}

func (d *db) with(op string, fn func(*state) error) error {
	d.store.mu.Lock()
	failErr := d.store.fails[op]
	if d.tx == nil {
		defer d.store.mu.Unlock()
		if failErr != nil {
			return failErr
		}
		return fn(d.store.st)
	}
	d.store.mu.Unlock()
	if failErr != nil {
		return failErr
	}
	return fn(d.tx)
}

// Seeding helpers for tests.

func (s *Store) AddTier(name string) model.PriceTier {
	t := model.PriceTier{ID: uuid.New(), Name: name, Active: true}
	s.mu.Lock()
	s.st.tiers[t.ID] = t
	s.mu.Unlock()
	return t
}

func (s *Store) AddCatalogItem(itemType model.ItemType, name string, base *model.Money) model.CatalogItem {
	item := model.CatalogItem{ID: uuid.New(), ItemType: itemType, Name: name, BasePrice: base}
	s.mu.Lock()
	s.st.catalog[item.ID] = item
	s.mu.Unlock()
	return item
}

func (s *Store) AuditLogs() []model.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuditLog(nil), s.st.audits...)
}

func (s *Store) OutboxEvents() []model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OutboxEvent(nil), s.st.outbox...)
}

func (s *Store) PatientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.patients)
}
