package queue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/service"
)

// snapshot is one day's queue in display order. It is never modified in
// place; update returns a copy.
type snapshot []model.QueueEntryView

func less(a, b *model.QueueEntryView) bool {
	au, bu := a.Status == model.QueueStatusUrgent, b.Status == model.QueueStatusUrgent
	if au != bu {
		return au
	}
	return a.CheckedInAt.Before(b.CheckedInAt)
}

func (s snapshot) update(id uuid.UUID, fn func(*model.QueueEntryView)) snapshot {
	out := make(snapshot, len(s))
	copy(out, s)
	for i := range out {
		if out[i].ID == id {
			fn(&out[i])
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(&out[i], &out[j]) })
	return out
}

// head is the entry CallNext is expected to claim.
func (s snapshot) head(doctorID *uuid.UUID) (*model.QueueEntryView, bool) {
	for i := range s {
		e := &s[i]
		if !e.Status.IsWaiting() {
			continue
		}
		if doctorID != nil && e.AssignedDoctorID != nil && *e.AssignedDoctorID != *doctorID {
			continue
		}
		return e, true
	}
	return nil, false
}

func (s *Service) snapshot(ctx context.Context, day time.Time) (snapshot, error) {
	key := service.DayKey(day)
	if snap, ok := s.snapCache.Get(key); ok {
		return snap, nil
	}

	views, err := s.store.Repos().Queue.List(ctx, &model.QueueFilter{Date: day})
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	snap := make(snapshot, len(views))
	for i, v := range views {
		snap[i] = *v
	}
	sort.SliceStable(snap, func(i, j int) bool { return less(&snap[i], &snap[j]) })
	s.snapCache.Set(key, snap)
	return snap, nil
}
