//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
)

// Run with:
//
//	CLINIC_TEST_DATABASE_DSN="host=localhost user=postgres password=postgres dbname=clinic sslmode=disable" \
//	go test -tags integration ./internal/repository/postgres/
//
// Each test gets its own schema, dropped afterwards.
func openTestStore(t *testing.T) repository.Store {
	t.Helper()
	dsn := os.Getenv("CLINIC_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("CLINIC_TEST_DATABASE_DSN not set")
	}

	admin, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	schema := "it_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	_, err = admin.Exec("CREATE SCHEMA " + schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec("DROP SCHEMA " + schema + " CASCADE")
		admin.Close()
	})

	db, err := sqlx.Connect("postgres", fmt.Sprintf("%s search_path=%s,public", dsn, schema))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ddl, err := os.ReadFile("../../../migrations/001_init.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(ddl))
	require.NoError(t, err)

	return NewStore(db)
}

var testDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func seedEntries(t *testing.T, store repository.Store, statuses ...model.QueueStatus) []*model.QueueEntry {
	t.Helper()
	ctx := context.Background()
	repos := store.Repos()

	entries := make([]*model.QueueEntry, 0, len(statuses))
	for i, status := range statuses {
		patient := &model.Patient{
			PatientCode: fmt.Sprintf("P2026%04d", i+1),
			Name:        fmt.Sprintf("Patient %d", i+1),
			Phone:       "0123456789",
			DateOfBirth: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
			Gender:      model.GenderFemale,
		}
		require.NoError(t, repos.Patients.Create(ctx, patient))

		entry := &model.QueueEntry{
			PatientID:     patient.ID,
			QueueDate:     testDay,
			QueueNumber:   fmt.Sprintf("Q%03d", i+1),
			Status:        status,
			VisitReason:   "consultation",
			PaymentMethod: "cash",
			CheckedInAt:   testDay.Add(9*time.Hour + time.Duration(i)*time.Minute),
		}
		require.NoError(t, repos.Queue.Create(ctx, entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestCompareAndSetStatus(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	q := store.Repos().Queue
	entry := seedEntries(t, store, model.QueueStatusWaiting)[0]

	version := 1
	moved, err := q.CompareAndSetStatus(ctx, model.StatusChange{
		ID: entry.ID, From: model.QueueStatusWaiting, To: model.QueueStatusUrgent, ExpectedVersion: &version,
	})
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusUrgent, moved.Status)
	assert.Equal(t, 2, moved.Version)

	// same version again
	_, err = q.CompareAndSetStatus(ctx, model.StatusChange{
		ID: entry.ID, From: model.QueueStatusUrgent, To: model.QueueStatusWaiting, ExpectedVersion: &version,
	})
	assert.ErrorIs(t, err, repository.ErrStale)

	// status moved on
	_, err = q.CompareAndSetStatus(ctx, model.StatusChange{
		ID: entry.ID, From: model.QueueStatusWaiting, To: model.QueueStatusInConsultation,
	})
	assert.ErrorIs(t, err, repository.ErrStale)

	_, err = q.CompareAndSetStatus(ctx, model.StatusChange{
		ID: uuid.New(), From: model.QueueStatusWaiting, To: model.QueueStatusUrgent,
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCompareAndSetStatusRace(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	q := store.Repos().Queue
	entry := seedEntries(t, store, model.QueueStatusWaiting)[0]

	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		won  int
		lost int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			version := 1
			_, err := q.CompareAndSetStatus(ctx, model.StatusChange{
				ID: entry.ID, From: model.QueueStatusWaiting, To: model.QueueStatusInConsultation, ExpectedVersion: &version,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, repository.ErrStale):
				lost++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, racers-1, lost)
}

func TestClaimNextOrderAndDoctorGuard(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	q := store.Repos().Queue
	entries := seedEntries(t, store,
		model.QueueStatusWaiting, model.QueueStatusUrgent, model.QueueStatusCancelled, model.QueueStatusWaiting)

	doctor := uuid.New()
	claimed, err := q.ClaimNext(ctx, testDay, &doctor)
	require.NoError(t, err)
	assert.Equal(t, entries[1].ID, claimed.ID, "urgent goes first")
	assert.Equal(t, model.QueueStatusInConsultation, claimed.Status)
	require.NotNil(t, claimed.AssignedDoctorID)
	assert.Equal(t, doctor, *claimed.AssignedDoctorID)

	busy, err := q.DoctorBusy(ctx, doctor, testDay)
	require.NoError(t, err)
	assert.True(t, busy)

	_, err = q.ClaimNext(ctx, testDay, &doctor)
	assert.ErrorIs(t, err, repository.ErrNotFound, "doctor already has a patient")

	// the partial unique index backs the same rule for direct transitions
	_, err = q.CompareAndSetStatus(ctx, model.StatusChange{
		ID: entries[0].ID, From: model.QueueStatusWaiting, To: model.QueueStatusInConsultation, DoctorID: &doctor,
	})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	claimed, err = q.ClaimNext(ctx, testDay, nil)
	require.NoError(t, err)
	assert.Equal(t, entries[0].ID, claimed.ID, "then oldest waiting")
	claimed, err = q.ClaimNext(ctx, testDay, nil)
	require.NoError(t, err)
	assert.Equal(t, entries[3].ID, claimed.ID)

	_, err = q.ClaimNext(ctx, testDay, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestClaimNextConcurrentCallersGetDistinctEntries(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	q := store.Repos().Queue

	const terminals = 6
	statuses := make([]model.QueueStatus, terminals)
	for i := range statuses {
		statuses[i] = model.QueueStatusWaiting
	}
	seedEntries(t, store, statuses...)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[uuid.UUID]int)
	)
	for i := 0; i < terminals; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := q.ClaimNext(ctx, testDay, nil)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen[entry.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, terminals)
	for id, n := range seen {
		assert.Equal(t, 1, n, id.String())
	}
}
