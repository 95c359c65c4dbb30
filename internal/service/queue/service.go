package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
	"github.com/jwalitptl/clinic-desk/internal/service"
	"github.com/jwalitptl/clinic-desk/internal/service/audit"
	"github.com/jwalitptl/clinic-desk/internal/service/event"
	"github.com/jwalitptl/clinic-desk/pkg/logger"
	"github.com/jwalitptl/clinic-desk/pkg/messaging"
	"github.com/jwalitptl/clinic-desk/pkg/metrics"
	"github.com/jwalitptl/clinic-desk/pkg/optimistic"
)

type QueueService interface {
	ListToday(ctx context.Context, filter model.QueueFilter) ([]*model.QueueEntryView, error)
	Stats(ctx context.Context) (*model.QueueStats, error)
	Get(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error)
	CallNext(ctx context.Context, terminalID string, doctorID *uuid.UUID) (*model.QueueEntry, error)
	Transition(ctx context.Context, id uuid.UUID, action model.QueueAction, expectedVersion *int) (*model.QueueEntry, error)
	Cancel(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error)
	GetView(terminalID string) model.QueueViewState
	SetPaused(terminalID string, paused bool) model.QueueViewState
	SetFilter(terminalID string, status model.QueueStatus) (model.QueueViewState, error)
	UpdateView(terminalID string, req model.UpdateViewRequest) (model.QueueViewState, error)
	Subscribe(ctx context.Context) (<-chan model.Envelope, error)
}

type Config struct {
	NumberPrefix    string
	RefreshInterval time.Duration
	ViewTTL         time.Duration
	SnapshotTTL     time.Duration
	Channel         string
}

type Service struct {
	store     repository.Store
	clock     service.Clock
	cfg       Config
	viewCache *optimistic.GoCache[model.QueueViewState]
	views     *optimistic.Updater[model.QueueViewState]
	snapCache *optimistic.GoCache[snapshot]
	snapshots *optimistic.Updater[snapshot]
	broker    messaging.Broker
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewService wires the queue. broker and m may be nil; without a broker
// the live feed is unavailable.
func NewService(store repository.Store, clock service.Clock, cfg Config, broker messaging.Broker, m *metrics.Metrics, log *logger.Logger) *Service {
	if cfg.NumberPrefix == "" {
		cfg.NumberPrefix = "Q"
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	if cfg.ViewTTL <= 0 {
		cfg.ViewTTL = 12 * time.Hour
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}

	snapCache := optimistic.NewGoCache[snapshot](cache.New(cfg.SnapshotTTL, time.Minute), cfg.SnapshotTTL)
	viewCache := optimistic.NewGoCache[model.QueueViewState](cache.New(cfg.ViewTTL, time.Hour), cfg.ViewTTL)
	return &Service{
		store:     store,
		clock:     clock,
		cfg:       cfg,
		viewCache: viewCache,
		views:     optimistic.NewUpdater[model.QueueViewState](viewCache),
		snapCache: snapCache,
		snapshots: optimistic.NewUpdater[snapshot](snapCache),
		broker:    broker,
		metrics:   m,
		log:       log.With("queue"),
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	entry, err := s.store.Repos().Queue.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return entry, nil
}

// ListToday returns today's entries, urgent first then by check-in time,
// with the wait fields filled in. Completed and cancelled entries are
// only listed when the filter asks for that status.
func (s *Service) ListToday(ctx context.Context, filter model.QueueFilter) ([]*model.QueueEntryView, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("unknown queue status %q: %w", filter.Status, service.ErrInvalidInput)
	}
	snap, err := s.snapshot(ctx, s.clock.Today())
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := make([]*model.QueueEntryView, 0, len(snap))
	for i := range snap {
		v := snap[i]
		if filter.Status == "" && v.Status.IsTerminal() {
			continue
		}
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		if filter.DoctorID != nil && (v.AssignedDoctorID == nil || *v.AssignedDoctorID != *filter.DoctorID) {
			continue
		}
		v.Annotate(now)
		out = append(out, &v)
	}
	return out, nil
}

func (s *Service) Stats(ctx context.Context) (*model.QueueStats, error) {
	today := s.clock.Today()
	snap, err := s.snapshot(ctx, today)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	stats := &model.QueueStats{
		Date:     service.DayKey(today),
		Total:    len(snap),
		ByStatus: make(map[model.QueueStatus]int),
	}
	var totalWait time.Duration
	for i := range snap {
		e := &snap[i]
		stats.ByStatus[e.Status]++
		if !e.Status.IsWaiting() {
			continue
		}
		stats.Waiting++
		wait := e.WaitTime(now)
		totalWait += wait
		if m := int(wait / time.Minute); m > stats.LongestWaitMinutes {
			stats.LongestWaitMinutes = m
		}
	}
	if stats.Waiting > 0 {
		stats.AverageWaitMinutes = int(totalWait / time.Duration(stats.Waiting) / time.Minute)
	}
	return stats, nil
}

// Enqueue adds a visit for patient to today's queue using the caller's
// transaction. Callers should Invalidate today's snapshot after commit.
func (s *Service) Enqueue(ctx context.Context, r repository.Repositories, patient *model.Patient, req model.VisitRequest) (*model.QueueEntry, error) {
	today := s.clock.Today()

	active, err := r.Queue.ActiveForPatient(ctx, patient.ID, today)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%s is %s as %s: %w", patient.PatientCode, active.Status, active.QueueNumber, service.ErrAlreadyQueued)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to check active visit: %w", err)
	}

	n, err := r.Queue.NextQueueNumber(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate queue number: %w", err)
	}

	status := model.QueueStatusWaiting
	if req.Urgent {
		status = model.QueueStatusUrgent
	}
	now := s.clock.Now()
	entry := &model.QueueEntry{
		ID:               uuid.New(),
		PatientID:        patient.ID,
		QueueDate:        today,
		QueueNumber:      fmt.Sprintf("%s%03d", s.cfg.NumberPrefix, n),
		Status:           status,
		VisitReason:      req.VisitReason,
		PaymentMethod:    req.PaymentMethod,
		AssignedDoctorID: req.DoctorID,
		CheckedInAt:      now,
		Version:          1,
		UpdatedAt:        now,
	}
	if err := r.Queue.Create(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%s: %w", patient.PatientCode, service.ErrAlreadyQueued)
		}
		return nil, fmt.Errorf("failed to create queue entry: %w", err)
	}

	if err := audit.Record(ctx, r.Audit, model.AuditActionCreate, model.AuditEntityQueueEntry, entry.ID, entry); err != nil {
		return nil, fmt.Errorf("failed to record queue entry: %w", err)
	}
	if err := event.Emit(ctx, r.Outbox, model.EventQueueStatusChanged, s.queueEvent(entry, "")); err != nil {
		return nil, err
	}
	return entry, nil
}

// Invalidate drops the cached snapshot of the given day.
func (s *Service) Invalidate(day time.Time) {
	s.snapCache.Delete(service.DayKey(day))
}

func (s *Service) queueEvent(e *model.QueueEntry, from model.QueueStatus) model.QueueEvent {
	return model.QueueEvent{
		EntryID:     e.ID,
		PatientID:   e.PatientID,
		QueueNumber: e.QueueNumber,
		From:        from,
		To:          e.Status,
		Version:     e.Version,
		At:          s.clock.Now(),
	}
}

func (s *Service) countTransition(action string, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, service.ErrStaleTransition):
		result = "stale"
	case errors.Is(err, service.ErrInvalidTransition):
		result = "invalid"
	case errors.Is(err, service.ErrDoctorBusy), errors.Is(err, service.ErrQueueEmpty), errors.Is(err, service.ErrQueuePaused):
		result = "refused"
	default:
		result = "error"
	}
	s.metrics.QueueTransitions.WithLabelValues(action, result).Inc()
}
