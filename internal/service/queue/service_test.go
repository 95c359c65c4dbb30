package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
	"github.com/jwalitptl/clinic-desk/internal/repository/memory"
	"github.com/jwalitptl/clinic-desk/internal/service"
	"github.com/jwalitptl/clinic-desk/pkg/logger"
	"github.com/jwalitptl/clinic-desk/pkg/messaging"
	"github.com/jwalitptl/clinic-desk/pkg/metrics"
)

type fixture struct {
	svc    *Service
	store  *memory.Store
	broker *messaging.MemoryBroker
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewStore(),
		broker: messaging.NewMemoryBroker(),
		now:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.FixedZone("MYT", 8*3600)),
	}
	clock := service.ClockFunc(f.now.Location(), func() time.Time { return f.now })
	f.svc = NewService(f.store, clock, Config{Channel: "clinic.queue"}, f.broker, metrics.New("test"), logger.Nop())
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) enqueue(t *testing.T, name string, urgent bool) *model.QueueEntry {
	t.Helper()
	ctx := context.Background()
	patient := &model.Patient{
		Base:        model.Base{ID: uuid.New()},
		PatientCode: "P2026" + name,
		Name:        name,
		Phone:       "0123456789",
		Gender:      model.GenderFemale,
	}
	var entry *model.QueueEntry
	err := f.store.WithTx(ctx, func(r repository.Repositories) error {
		if err := r.Patients.Create(ctx, patient); err != nil {
			return err
		}
		var err error
		entry, err = f.svc.Enqueue(ctx, r, patient, model.VisitRequest{
			VisitReason:   "consultation",
			PaymentMethod: "cash",
			Urgent:        urgent,
		})
		return err
	})
	require.NoError(t, err)
	f.svc.Invalidate(f.now)
	return entry
}

func TestTransitionHappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	entry := f.enqueue(t, "Jane", false)
	assert.Equal(t, model.QueueStatusWaiting, entry.Status)
	assert.Equal(t, "Q001", entry.QueueNumber)

	var err error
	for _, step := range []struct {
		action model.QueueAction
		want   model.QueueStatus
	}{
		{model.ActionMarkUrgent, model.QueueStatusUrgent},
		{model.ActionClearUrgent, model.QueueStatusWaiting},
		{model.ActionStartConsultation, model.QueueStatusInConsultation},
		{model.ActionSendToDispensary, model.QueueStatusDispensary},
		{model.ActionComplete, model.QueueStatusCompleted},
	} {
		entry, err = f.svc.Transition(ctx, entry.ID, step.action, nil)
		require.NoError(t, err, step.action)
		assert.Equal(t, step.want, entry.Status)
	}
	assert.Equal(t, 6, entry.Version)

	for _, action := range []model.QueueAction{
		model.ActionStartConsultation, model.ActionCancel, model.ActionMarkUrgent, model.ActionComplete,
	} {
		_, err := f.svc.Transition(ctx, entry.ID, action, nil)
		assert.ErrorIs(t, err, service.ErrInvalidTransition, action)
	}

	var changes int
	for _, evt := range f.store.OutboxEvents() {
		if evt.EventType == model.EventQueueStatusChanged {
			changes++
		}
	}
	assert.Equal(t, 6, changes)
}

func TestCancelIsTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	entry := f.enqueue(t, "Jane", true)

	cancelled, err := f.svc.Cancel(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusCancelled, cancelled.Status)

	_, err = f.svc.Cancel(ctx, entry.ID)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
}

func TestTransitionRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	entry := f.enqueue(t, "Jane", false)

	stale := 7
	_, err := f.svc.Transition(ctx, entry.ID, model.ActionStartConsultation, &stale)
	assert.ErrorIs(t, err, service.ErrStaleTransition)

	current := entry.Version
	moved, err := f.svc.Transition(ctx, entry.ID, model.ActionMarkUrgent, &current)
	require.NoError(t, err)
	assert.Equal(t, current+1, moved.Version)

	// a terminal still holding the old row loses the race
	_, err = f.svc.Apply(ctx, entry, Change{Action: model.ActionStartConsultation}, nil)
	assert.ErrorIs(t, err, service.ErrStaleTransition)

	got, err := f.svc.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusUrgent, got.Status)
}

func TestCallNextOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.enqueue(t, "Ali", false)
	f.advance(time.Minute)
	second := f.enqueue(t, "Bala", false)
	f.advance(time.Minute)
	urgent := f.enqueue(t, "Chong", true)

	drA, drB, drC := uuid.New(), uuid.New(), uuid.New()

	got, err := f.svc.CallNext(ctx, "desk-1", &drA)
	require.NoError(t, err)
	assert.Equal(t, urgent.ID, got.ID)
	assert.Equal(t, model.QueueStatusInConsultation, got.Status)
	require.NotNil(t, got.AssignedDoctorID)
	assert.Equal(t, drA, *got.AssignedDoctorID)

	got, err = f.svc.CallNext(ctx, "desk-2", &drB)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	got, err = f.svc.CallNext(ctx, "desk-1", &drC)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = f.svc.CallNext(ctx, "desk-1", nil)
	assert.ErrorIs(t, err, service.ErrQueueEmpty)
}

func TestCallNextDoctorBusy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enqueue(t, "Ali", false)
	f.enqueue(t, "Bala", false)
	doctor := uuid.New()

	_, err := f.svc.CallNext(ctx, "desk-1", &doctor)
	require.NoError(t, err)

	_, err = f.svc.CallNext(ctx, "desk-1", &doctor)
	assert.ErrorIs(t, err, service.ErrDoctorBusy)
}

func TestCallNextPausedTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	entry := f.enqueue(t, "Ali", false)

	f.svc.SetPaused("desk-1", true)
	_, err := f.svc.CallNext(ctx, "desk-1", nil)
	assert.ErrorIs(t, err, service.ErrQueuePaused)

	// other terminals are unaffected
	got, err := f.svc.CallNext(ctx, "desk-2", nil)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
}

func TestFailedCommitRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	entry := f.enqueue(t, "Jane", false)

	list, err := f.svc.ListToday(ctx, model.QueueFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	boom := errors.New("audit table unavailable")
	f.store.FailOn("audit.create", boom)
	_, err = f.svc.Transition(ctx, entry.ID, model.ActionStartConsultation, nil)
	assert.ErrorIs(t, err, boom)
	f.store.FailOn("audit.create", nil)

	// served from the snapshot
	f.store.FailOn("queue.list", errors.New("list must not be called"))
	list, err = f.svc.ListToday(ctx, model.QueueFilter{})
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusWaiting, list[0].Status)
	assert.Equal(t, 1, list[0].Version)

	stored, err := f.svc.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusWaiting, stored.Status)

	_, err = f.svc.Transition(ctx, entry.ID, model.ActionMarkUrgent, nil)
	require.NoError(t, err)
	list, err = f.svc.ListToday(ctx, model.QueueFilter{})
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusUrgent, list[0].Status)
	assert.Equal(t, 2, list[0].Version)
}

func TestListTodayWaitLevels(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	old := f.enqueue(t, "Ali", false)
	f.advance(25 * time.Minute)
	mid := f.enqueue(t, "Bala", false)
	f.advance(25 * time.Minute)
	fresh := f.enqueue(t, "Chong", false)

	list, err := f.svc.ListToday(ctx, model.QueueFilter{})
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, old.ID, list[0].ID)
	assert.Equal(t, 50, list[0].WaitMinutes)
	assert.Equal(t, model.WaitLevelUrgent, list[0].WaitLevel)
	assert.Equal(t, mid.ID, list[1].ID)
	assert.Equal(t, model.WaitLevelWarning, list[1].WaitLevel)
	assert.Equal(t, fresh.ID, list[2].ID)
	assert.Equal(t, model.WaitLevelNormal, list[2].WaitLevel)
	assert.Equal(t, "Ali", list[0].PatientName)

	_, err = f.svc.Transition(ctx, fresh.ID, model.ActionMarkUrgent, nil)
	require.NoError(t, err)
	list, err = f.svc.ListToday(ctx, model.QueueFilter{})
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, list[0].ID)

	urgentOnly, err := f.svc.ListToday(ctx, model.QueueFilter{Status: model.QueueStatusUrgent})
	require.NoError(t, err)
	require.Len(t, urgentOnly, 1)

	_, err = f.svc.ListToday(ctx, model.QueueFilter{Status: "lost"})
	assert.Error(t, err)
}

func TestListTodayHidesFinishedVisits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cancelled := f.enqueue(t, "Ali", false)
	done := f.enqueue(t, "Bala", false)
	waiting := f.enqueue(t, "Chong", false)

	_, err := f.svc.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)
	for _, action := range []model.QueueAction{
		model.ActionStartConsultation, model.ActionSendToDispensary, model.ActionComplete,
	} {
		_, err = f.svc.Transition(ctx, done.ID, action, nil)
		require.NoError(t, err, action)
	}

	list, err := f.svc.ListToday(ctx, model.QueueFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, waiting.ID, list[0].ID)

	list, err = f.svc.ListToday(ctx, model.QueueFilter{Status: model.QueueStatusCancelled})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, cancelled.ID, list[0].ID)

	list, err = f.svc.ListToday(ctx, model.QueueFilter{Status: model.QueueStatusCompleted})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, done.ID, list[0].ID)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enqueue(t, "Ali", false)
	f.advance(10 * time.Minute)
	f.enqueue(t, "Bala", true)
	f.advance(10 * time.Minute)
	third := f.enqueue(t, "Chong", false)
	_, err := f.svc.Cancel(ctx, third.ID)
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", stats.Date)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Waiting)
	assert.Equal(t, 1, stats.ByStatus[model.QueueStatusCancelled])
	assert.Equal(t, 20, stats.LongestWaitMinutes)
	assert.Equal(t, 15, stats.AverageWaitMinutes)
}

func TestEnqueueRejectsSecondActiveVisit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	entry := f.enqueue(t, "Jane", false)

	err := f.store.WithTx(ctx, func(r repository.Repositories) error {
		patient, err := r.Patients.Get(ctx, entry.PatientID)
		if err != nil {
			return err
		}
		_, err = f.svc.Enqueue(ctx, r, patient, model.VisitRequest{VisitReason: "again", PaymentMethod: "cash"})
		return err
	})
	assert.ErrorIs(t, err, service.ErrAlreadyQueued)
}

func TestViewState(t *testing.T) {
	f := newFixture(t)

	v := f.svc.GetView("desk-9")
	assert.Equal(t, 30, v.RefreshIntervalSeconds)
	assert.False(t, v.Paused)

	_, err := f.svc.SetFilter("desk-9", "nope")
	assert.Error(t, err)

	paused, status := true, model.QueueStatusUrgent
	v, err = f.svc.UpdateView("desk-9", model.UpdateViewRequest{Paused: &paused, StatusFilter: &status})
	require.NoError(t, err)
	assert.True(t, v.Paused)
	assert.Equal(t, model.QueueStatusUrgent, v.StatusFilter)
	assert.False(t, f.svc.GetView("desk-1").Paused)
}

func TestViewUpdatesFromOneTerminalDoNotClobber(t *testing.T) {
	f := newFixture(t)
	status := model.QueueStatusWaiting

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.svc.SetPaused("desk-1", true)
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.UpdateView("desk-1", model.UpdateViewRequest{StatusFilter: &status})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v := f.svc.GetView("desk-1")
	assert.True(t, v.Paused)
	assert.Equal(t, model.QueueStatusWaiting, v.StatusFilter)
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := f.svc.Subscribe(ctx)
	require.NoError(t, err)

	env := model.Envelope{ID: uuid.New(), Type: model.EventQueueStatusChanged, Payload: json.RawMessage(`{"to":"waiting"}`)}
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, f.broker.Publish(ctx, "clinic.queue", []byte("not json")))
	require.NoError(t, f.broker.Publish(ctx, "clinic.queue", raw))

	select {
	case got := <-events:
		assert.Equal(t, env.ID, got.ID)
		assert.Equal(t, model.EventQueueStatusChanged, got.Type)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestSubscribeWithoutBroker(t *testing.T) {
	svc := NewService(memory.NewStore(), service.NewClock(time.UTC), Config{}, nil, nil, nil)
	_, err := svc.Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrFeedUnavailable)
}
