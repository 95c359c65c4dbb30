package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
	"github.com/jwalitptl/clinic-desk/internal/repository/memory"
	"github.com/jwalitptl/clinic-desk/internal/service"
	"github.com/jwalitptl/clinic-desk/internal/service/pricing"
	"github.com/jwalitptl/clinic-desk/internal/service/queue"
)

type fixture struct {
	svc     *Service
	queue   *queue.Service
	pricing *pricing.Service
	store   *memory.Store
	doctor  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	clock := service.FixedClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	q := queue.NewService(store, clock, queue.Config{}, nil, nil, nil)
	p := pricing.NewService(store, cache.New(time.Minute, time.Minute), nil)
	return &fixture{
		svc:     NewService(store, q, p, clock),
		queue:   q,
		pricing: p,
		store:   store,
		doctor:  uuid.New(),
	}
}

// checkIn registers a patient and queues them; tierID may be nil.
func (f *fixture) checkIn(t *testing.T, name string, tierID *uuid.UUID) (*model.Patient, *model.QueueEntry) {
	t.Helper()
	ctx := context.Background()
	patient := &model.Patient{
		Base:           model.Base{ID: uuid.New()},
		PatientCode:    "P-" + name,
		Name:           name,
		Phone:          "0123456789",
		AssignedTierID: tierID,
	}
	var entry *model.QueueEntry
	err := f.store.WithTx(ctx, func(r repository.Repositories) error {
		if err := r.Patients.Create(ctx, patient); err != nil {
			return err
		}
		var err error
		entry, err = f.queue.Enqueue(ctx, r, patient, model.VisitRequest{VisitReason: "fever", PaymentMethod: "cash"})
		return err
	})
	require.NoError(t, err)
	return patient, entry
}

func (f *fixture) start(t *testing.T, patient *model.Patient, entry *model.QueueEntry) *model.ConsultationSession {
	t.Helper()
	session, err := f.svc.Start(context.Background(), &model.StartConsultationRequest{
		QueueEntryID: &entry.ID,
		PatientID:    patient.ID,
		DoctorID:     uuid.New(),
	})
	require.NoError(t, err)
	return session
}

func money(s string) *model.Money {
	m := model.MustMoney(s)
	return &m
}

func TestStartMovesEntryIntoConsultation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	patient, entry := f.checkIn(t, "Jane", nil)

	session, err := f.svc.Start(ctx, &model.StartConsultationRequest{QueueEntryID: &entry.ID, PatientID: patient.ID, DoctorID: f.doctor})
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusActive, session.Status)

	got, err := f.queue.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusInConsultation, got.Status)
	require.NotNil(t, got.AssignedDoctorID)
	assert.Equal(t, f.doctor, *got.AssignedDoctorID)

	// entry already in consultation: a second session is a duplicate
	_, err = f.svc.Start(ctx, &model.StartConsultationRequest{QueueEntryID: &entry.ID, PatientID: patient.ID, DoctorID: f.doctor})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestStartAfterCallNext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	patient, entry := f.checkIn(t, "Jane", nil)

	called, err := f.queue.CallNext(ctx, "desk-1", &f.doctor)
	require.NoError(t, err)
	require.Equal(t, entry.ID, called.ID)

	session := f.start(t, patient, entry)
	assert.Equal(t, entry.ID, *session.QueueEntryID)
}

func TestStartRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, entry := f.checkIn(t, "Jane", nil)
	other, _ := f.checkIn(t, "Ali", nil)

	_, err := f.svc.Start(ctx, &model.StartConsultationRequest{QueueEntryID: &entry.ID, PatientID: other.ID, DoctorID: f.doctor})
	assert.ErrorIs(t, err, service.ErrPatientMismatch)

	_, err = f.svc.Start(ctx, &model.StartConsultationRequest{PatientID: uuid.New(), DoctorID: f.doctor})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.svc.Start(ctx, &model.StartConsultationRequest{PatientID: other.ID})
	assert.Error(t, err)

	walkIn, err := f.svc.Start(ctx, &model.StartConsultationRequest{PatientID: other.ID, DoctorID: f.doctor})
	require.NoError(t, err)
	assert.Nil(t, walkIn.QueueEntryID)
}

func TestAddItemPricing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	selfPay := f.store.AddTier("Self-Pay")
	insurance := f.store.AddTier("Insurance")
	med := f.store.AddCatalogItem(model.ItemTypeMedication, "Paracetamol", money("10.00"))
	unpriced := f.store.AddCatalogItem(model.ItemTypeService, "Special procedure", nil)
	require.NoError(t, f.pricing.SetOverride(ctx, model.ItemTypeMedication, med.ID, insurance.ID, model.MustMoney("6.00")))

	tests := []struct {
		name       string
		tier       *uuid.UUID
		rate       *model.Money
		wantRate   model.Money
		wantSource model.PriceSource
	}{
		{"no tier uses base", nil, nil, model.MustMoney("10.00"), model.PriceSourceBase},
		{"tier without override uses base", &selfPay.ID, nil, model.MustMoney("10.00"), model.PriceSourceBase},
		{"tier override", &insurance.ID, nil, model.MustMoney("6.00"), model.PriceSourceTier},
		{"manual rate wins", &insurance.ID, money("4.20"), model.MustMoney("4.20"), model.PriceSourceManual},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patient, entry := f.checkIn(t, fmt.Sprintf("patient-%d", i), tt.tier)
			session := f.start(t, patient, entry)

			item, err := f.svc.AddItem(ctx, session.ID, &model.ItemInput{
				ItemType: model.ItemTypeMedication,
				ItemID:   med.ID,
				Quantity: 3,
				Rate:     tt.rate,
			})
			require.NoError(t, err)
			assert.Equal(t, "Paracetamol", item.Name)
			assert.Equal(t, tt.wantRate, item.Rate)
			assert.Equal(t, tt.wantSource, item.PriceSource)
			assert.Equal(t, tt.wantRate.Mul(3), item.TotalAmount)
		})
	}

	t.Run("undefined price needs a manual rate", func(t *testing.T) {
		patient, entry := f.checkIn(t, "unpriced", nil)
		session := f.start(t, patient, entry)

		_, err := f.svc.AddItem(ctx, session.ID, &model.ItemInput{ItemType: model.ItemTypeService, ItemID: unpriced.ID, Quantity: 1})
		assert.ErrorIs(t, err, service.ErrPriceUndefined)

		item, err := f.svc.AddItem(ctx, session.ID, &model.ItemInput{ItemType: model.ItemTypeService, ItemID: unpriced.ID, Quantity: 1, Rate: money("150.00")})
		require.NoError(t, err)
		assert.Equal(t, model.PriceSourceManual, item.PriceSource)
	})
}

func TestItemTotals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svcItem := f.store.AddCatalogItem(model.ItemTypeService, "Consultation fee", money("30.00"))
	patient, entry := f.checkIn(t, "Jane", nil)
	session := f.start(t, patient, entry)

	item, err := f.svc.AddItem(ctx, session.ID, &model.ItemInput{ItemType: model.ItemTypeService, ItemID: svcItem.ID, Quantity: 1})
	require.NoError(t, err)
	require.Equal(t, "30.00", item.TotalAmount.String())

	tests := []struct {
		quantity int
		rate     string
		total    string
	}{
		{0, "0", "0.00"},
		{0, "0.01", "0.00"},
		{0, "999.99", "0.00"},
		{1, "0", "0.00"},
		{1, "0.01", "0.01"},
		{1, "999.99", "999.99"},
		{100, "0", "0.00"},
		{100, "0.01", "1.00"},
		{100, "999.99", "99999.00"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d x %s", tt.quantity, tt.rate), func(t *testing.T) {
			qty := tt.quantity
			updated, err := f.svc.UpdateItem(ctx, item.ID, &model.ItemPatch{Quantity: &qty, Rate: money(tt.rate)})
			require.NoError(t, err)
			assert.Equal(t, tt.total, updated.TotalAmount.String())

			added, err := f.svc.AddItem(ctx, session.ID, &model.ItemInput{
				ItemType: model.ItemTypeService,
				ItemID:   svcItem.ID,
				Quantity: tt.quantity,
				Rate:     money(tt.rate),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.total, added.TotalAmount.String())
		})
	}

	// quantity alone recomputes against the stored rate
	qty := 3
	updated, err := f.svc.UpdateItem(ctx, item.ID, &model.ItemPatch{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, "2999.97", updated.TotalAmount.String())
}

func TestUpdateAndRemoveItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	med := f.store.AddCatalogItem(model.ItemTypeMedication, "Cough syrup", money("8.50"))
	patient, entry := f.checkIn(t, "Jane", nil)
	session := f.start(t, patient, entry)

	item, err := f.svc.AddItem(ctx, session.ID, &model.ItemInput{ItemType: model.ItemTypeMedication, ItemID: med.ID, Quantity: 1})
	require.NoError(t, err)

	qty, dosage := 4, "10ml"
	updated, err := f.svc.UpdateItem(ctx, item.ID, &model.ItemPatch{Quantity: &qty, Dosage: &dosage})
	require.NoError(t, err)
	assert.Equal(t, model.MustMoney("34.00"), updated.TotalAmount)
	assert.Equal(t, model.PriceSourceBase, updated.PriceSource)
	assert.Equal(t, "10ml", *updated.Dosage)

	updated, err = f.svc.UpdateItem(ctx, item.ID, &model.ItemPatch{Rate: money("5.00")})
	require.NoError(t, err)
	assert.Equal(t, model.MustMoney("20.00"), updated.TotalAmount)
	assert.Equal(t, model.PriceSourceManual, updated.PriceSource)

	detail, err := f.svc.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, model.MustMoney("20.00"), detail.Total)

	require.NoError(t, f.svc.RemoveItem(ctx, item.ID))
	assert.ErrorIs(t, f.svc.RemoveItem(ctx, item.ID), repository.ErrNotFound)

	detail, err = f.svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Items)
}

func TestUpdateNotes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	patient, entry := f.checkIn(t, "Jane", nil)
	session := f.start(t, patient, entry)

	_, err := f.svc.UpdateNotes(ctx, session.ID, nil)
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	updated, err := f.svc.UpdateNotes(ctx, session.ID, &model.NotesRequest{Notes: "sore throat", Diagnosis: "pharyngitis"})
	require.NoError(t, err)
	assert.Equal(t, "sore throat", updated.Notes)
	assert.Equal(t, "pharyngitis", updated.Diagnosis)

	// a nil request on completion keeps the saved notes
	done, err := f.svc.Complete(ctx, session.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "pharyngitis", done.Diagnosis)
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	med := f.store.AddCatalogItem(model.ItemTypeMedication, "Antacid", money("12.00"))
	patient, entry := f.checkIn(t, "Jane", nil)
	session := f.start(t, patient, entry)
	_, err := f.svc.AddItem(ctx, session.ID, &model.ItemInput{ItemType: model.ItemTypeMedication, ItemID: med.ID, Quantity: 2})
	require.NoError(t, err)

	done, err := f.svc.Complete(ctx, session.ID, &model.NotesRequest{Notes: "epigastric pain", Diagnosis: "gastritis"})
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)

	got, err := f.queue.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusDispensary, got.Status)

	var snap model.ConsultationSnapshot
	for _, log := range f.store.AuditLogs() {
		if log.Action == model.AuditActionComplete {
			require.NoError(t, json.Unmarshal(log.Changes, &snap))
		}
	}
	assert.Equal(t, "gastritis", snap.Diagnosis)
	assert.Len(t, snap.Items, 1)
	assert.Equal(t, model.MustMoney("24.00"), snap.Total)

	_, err = f.svc.Complete(ctx, session.ID, &model.NotesRequest{})
	assert.ErrorIs(t, err, service.ErrSessionClosed)
	_, err = f.svc.UpdateNotes(ctx, session.ID, &model.NotesRequest{Notes: "late"})
	assert.ErrorIs(t, err, service.ErrSessionClosed)

	// the dispensary can still adjust items until the visit ends
	_, err = f.svc.AddItem(ctx, session.ID, &model.ItemInput{ItemType: model.ItemTypeMedication, ItemID: med.ID, Quantity: 1})
	require.NoError(t, err)
}

func TestCompleteRollsBackTransition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	patient, entry := f.checkIn(t, "Jane", nil)
	session := f.start(t, patient, entry)

	boom := errors.New("disk full")
	f.store.FailOn("sessions.update", boom)
	_, err := f.svc.Complete(ctx, session.ID, &model.NotesRequest{Notes: "x"})
	assert.ErrorIs(t, err, boom)
	f.store.FailOn("sessions.update", nil)

	got, err := f.queue.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusInConsultation, got.Status)

	detail, err := f.svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusActive, detail.Status)
}

func TestItemsFrozenAfterVisitEnds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	med := f.store.AddCatalogItem(model.ItemTypeMedication, "Vitamin C", money("5.00"))
	patient, entry := f.checkIn(t, "Jane", nil)
	session := f.start(t, patient, entry)
	item, err := f.svc.AddItem(ctx, session.ID, &model.ItemInput{ItemType: model.ItemTypeMedication, ItemID: med.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = f.queue.Cancel(ctx, entry.ID)
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, session.ID, &model.ItemInput{ItemType: model.ItemTypeMedication, ItemID: med.ID, Quantity: 1})
	assert.ErrorIs(t, err, service.ErrInvoiceFinalized)
	qty := 2
	_, err = f.svc.UpdateItem(ctx, item.ID, &model.ItemPatch{Quantity: &qty})
	assert.ErrorIs(t, err, service.ErrInvoiceFinalized)
	assert.ErrorIs(t, f.svc.RemoveItem(ctx, item.ID), service.ErrInvoiceFinalized)
}
