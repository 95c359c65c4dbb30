package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
	"github.com/jwalitptl/clinic-desk/internal/service"
	"github.com/jwalitptl/clinic-desk/internal/service/audit"
	"github.com/jwalitptl/clinic-desk/internal/service/event"
)

const actionCallNext = "call_next"

// Change describes a requested status transition.
type Change struct {
	Action model.QueueAction
	// ExpectedVersion, when set, must match the stored version.
	ExpectedVersion *int
	// DoctorID is recorded as the assigned doctor when set.
	DoctorID *uuid.UUID
}

// Within runs inside the transition's transaction after the status write.
// Returning an error rolls back the transition.
type Within func(r repository.Repositories, updated *model.QueueEntry) error

func (s *Service) Transition(ctx context.Context, id uuid.UUID, action model.QueueAction, expectedVersion *int) (*model.QueueEntry, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Apply(ctx, entry, Change{Action: action, ExpectedVersion: expectedVersion}, nil)
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	return s.Transition(ctx, id, model.ActionCancel, nil)
}

// Apply moves entry along ch.Action. The cached snapshot is updated first
// and restored if the conditional write, the activity record, or within
// fails.
func (s *Service) Apply(ctx context.Context, entry *model.QueueEntry, ch Change, within Within) (*model.QueueEntry, error) {
	updated, err := s.apply(ctx, entry, ch, within)
	s.countTransition(string(ch.Action), err)
	return updated, err
}

func (s *Service) apply(ctx context.Context, entry *model.QueueEntry, ch Change, within Within) (*model.QueueEntry, error) {
	if !ch.Action.Valid() {
		return nil, fmt.Errorf("unknown action %q: %w", ch.Action, service.ErrInvalidTransition)
	}
	to, ok := model.NextStatus(ch.Action, entry.Status)
	if !ok {
		return nil, fmt.Errorf("%s from %s: %w", ch.Action, entry.Status, service.ErrInvalidTransition)
	}
	if ch.ExpectedVersion != nil && *ch.ExpectedVersion != entry.Version {
		return nil, fmt.Errorf("entry is at version %d, not %d: %w", entry.Version, *ch.ExpectedVersion, service.ErrStaleTransition)
	}

	from := entry.Status
	var updated *model.QueueEntry
	mutate := func(snap snapshot) snapshot {
		return snap.update(entry.ID, func(v *model.QueueEntryView) {
			v.Status = to
			v.Version = entry.Version + 1
			if ch.DoctorID != nil {
				v.AssignedDoctorID = ch.DoctorID
			}
		})
	}
	commit := func() error {
		return s.store.WithTx(ctx, func(r repository.Repositories) error {
			var err error
			updated, err = r.Queue.CompareAndSetStatus(ctx, model.StatusChange{
				ID:              entry.ID,
				From:            from,
				To:              to,
				ExpectedVersion: ch.ExpectedVersion,
				DoctorID:        ch.DoctorID,
			})
			if err != nil {
				return writeError(err)
			}
			if err := s.recordTransition(ctx, r, updated, from, string(ch.Action)); err != nil {
				return err
			}
			if within != nil {
				return within(r, updated)
			}
			return nil
		})
	}

	if err := s.snapshots.Apply(service.DayKey(entry.QueueDate), mutate, commit); err != nil {
		return nil, err
	}
	return updated, nil
}

// CallNext hands the oldest urgent, else oldest waiting, patient to the
// caller. Two terminals calling at once never receive the same entry.
func (s *Service) CallNext(ctx context.Context, terminalID string, doctorID *uuid.UUID) (*model.QueueEntry, error) {
	claimed, err := s.callNext(ctx, terminalID, doctorID)
	s.countTransition(actionCallNext, err)
	return claimed, err
}

func (s *Service) callNext(ctx context.Context, terminalID string, doctorID *uuid.UUID) (*model.QueueEntry, error) {
	if s.GetView(terminalID).Paused {
		return nil, fmt.Errorf("terminal %s: %w", terminalID, service.ErrQueuePaused)
	}

	today := s.clock.Today()
	key := service.DayKey(today)

	var predicted uuid.UUID
	var claimed *model.QueueEntry
	mutate := func(snap snapshot) snapshot {
		head, ok := snap.head(doctorID)
		if !ok {
			return snap
		}
		predicted = head.ID
		return snap.update(head.ID, func(v *model.QueueEntryView) {
			v.Status = model.QueueStatusInConsultation
			v.Version++
			if doctorID != nil {
				v.AssignedDoctorID = doctorID
			}
		})
	}
	commit := func() error {
		return s.store.WithTx(ctx, func(r repository.Repositories) error {
			var err error
			claimed, err = r.Queue.ClaimNext(ctx, today, doctorID)
			if err != nil {
				return s.claimError(ctx, r, today, doctorID, err)
			}
			return s.recordTransition(ctx, r, claimed, "", actionCallNext)
		})
	}

	if err := s.snapshots.Apply(key, mutate, commit); err != nil {
		return nil, err
	}
	if claimed.ID != predicted {
		// another terminal got there first
		s.snapCache.Delete(key)
	}
	return claimed, nil
}

func (s *Service) claimError(ctx context.Context, r repository.Repositories, day time.Time, doctorID *uuid.UUID, err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %w", service.ErrDoctorBusy, err)
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("failed to claim next entry: %w", err)
	}
	if doctorID != nil {
		busy, berr := r.Queue.DoctorBusy(ctx, *doctorID, day)
		if berr != nil {
			return fmt.Errorf("failed to check doctor availability: %w", berr)
		}
		if busy {
			return fmt.Errorf("doctor %s: %w", doctorID, service.ErrDoctorBusy)
		}
	}
	return service.ErrQueueEmpty
}

func (s *Service) recordTransition(ctx context.Context, r repository.Repositories, e *model.QueueEntry, from model.QueueStatus, action string) error {
	err := audit.Record(ctx, r.Audit, model.AuditActionTransition, model.AuditEntityQueueEntry, e.ID, map[string]interface{}{
		"action":  action,
		"from":    from,
		"to":      e.Status,
		"version": e.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return event.Emit(ctx, r.Outbox, model.EventQueueStatusChanged, s.queueEvent(e, from))
}

func writeError(err error) error {
	switch {
	case errors.Is(err, repository.ErrStale):
		return fmt.Errorf("%w: %w", service.ErrStaleTransition, err)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %w", service.ErrDoctorBusy, err)
	default:
		return fmt.Errorf("failed to update queue entry: %w", err)
	}
}
