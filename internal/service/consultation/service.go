package consultation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
	"github.com/jwalitptl/clinic-desk/internal/service"
	"github.com/jwalitptl/clinic-desk/internal/service/audit"
	"github.com/jwalitptl/clinic-desk/internal/service/event"
	"github.com/jwalitptl/clinic-desk/internal/service/pricing"
	"github.com/jwalitptl/clinic-desk/internal/service/queue"
	"github.com/jwalitptl/clinic-desk/pkg/validator"
)

type ConsultationService interface {
	Start(ctx context.Context, req *model.StartConsultationRequest) (*model.ConsultationSession, error)
	Get(ctx context.Context, sessionID uuid.UUID) (*model.ConsultationDetail, error)
	UpdateNotes(ctx context.Context, sessionID uuid.UUID, req *model.NotesRequest) (*model.ConsultationSession, error)
	AddItem(ctx context.Context, sessionID uuid.UUID, in *model.ItemInput) (*model.TreatmentItem, error)
	UpdateItem(ctx context.Context, itemID uuid.UUID, patch *model.ItemPatch) (*model.TreatmentItem, error)
	RemoveItem(ctx context.Context, itemID uuid.UUID) error
	Complete(ctx context.Context, sessionID uuid.UUID, req *model.NotesRequest) (*model.ConsultationSession, error)
}

type Service struct {
	store   repository.Store
	queue   *queue.Service
	pricing pricing.PricingService
	clock   service.Clock
}

func NewService(store repository.Store, queueSvc *queue.Service, pricingSvc pricing.PricingService, clock service.Clock) *Service {
	return &Service{store: store, queue: queueSvc, pricing: pricingSvc, clock: clock}
}

// Start opens a session. A linked entry that is still waiting is moved
// into consultation in the same transaction.
func (s *Service) Start(ctx context.Context, req *model.StartConsultationRequest) (*model.ConsultationSession, error) {
	if err := validator.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid consultation: %w", err)
	}

	now := s.clock.Now()
	session := &model.ConsultationSession{
		ID:           uuid.New(),
		PatientID:    req.PatientID,
		QueueEntryID: req.QueueEntryID,
		DoctorID:     req.DoctorID,
		Status:       model.SessionStatusActive,
		StartedAt:    now,
		UpdatedAt:    now,
	}
	create := func(r repository.Repositories, _ *model.QueueEntry) error {
		if err := r.Consultations.CreateSession(ctx, session); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("queue entry already has a consultation: %w", err)
			}
			return fmt.Errorf("failed to create consultation: %w", err)
		}
		return audit.Record(ctx, r.Audit, model.AuditActionCreate, model.AuditEntityConsultation, session.ID, session)
	}

	if req.QueueEntryID == nil {
		err := s.store.WithTx(ctx, func(r repository.Repositories) error {
			if _, err := r.Patients.Get(ctx, req.PatientID); err != nil {
				return fmt.Errorf("failed to get patient: %w", err)
			}
			return create(r, nil)
		})
		if err != nil {
			return nil, err
		}
		return session, nil
	}

	entry, err := s.queue.Get(ctx, *req.QueueEntryID)
	if err != nil {
		return nil, err
	}
	if entry.PatientID != req.PatientID {
		return nil, service.ErrPatientMismatch
	}

	switch {
	case entry.Status.IsWaiting():
		change := queue.Change{Action: model.ActionStartConsultation, DoctorID: &req.DoctorID}
		if _, err := s.queue.Apply(ctx, entry, change, create); err != nil {
			return nil, err
		}
	case entry.Status == model.QueueStatusInConsultation:
		if err := s.store.WithTx(ctx, func(r repository.Repositories) error { return create(r, entry) }); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("cannot start consultation for %s entry: %w", entry.Status, service.ErrInvalidTransition)
	}
	return session, nil
}

func (s *Service) Get(ctx context.Context, sessionID uuid.UUID) (*model.ConsultationDetail, error) {
	repo := s.store.Repos().Consultations
	session, err := repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get consultation: %w", err)
	}
	items, err := repo.ListItems(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return &model.ConsultationDetail{
		ConsultationSession: session,
		Items:               items,
		Total:               model.ComputeTotals(items, nil).TotalAmount,
	}, nil
}

func (s *Service) UpdateNotes(ctx context.Context, sessionID uuid.UUID, req *model.NotesRequest) (*model.ConsultationSession, error) {
	if req == nil {
		return nil, fmt.Errorf("notes are required: %w", service.ErrInvalidInput)
	}
	if err := validator.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid notes: %w", err)
	}

	var session *model.ConsultationSession
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		var err error
		if session, err = r.Consultations.GetSession(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to get consultation: %w", err)
		}
		if session.Status == model.SessionStatusCompleted {
			return service.ErrSessionClosed
		}
		session.Notes, session.Diagnosis = req.Notes, req.Diagnosis
		session.UpdatedAt = s.clock.Now()
		if err := r.Consultations.UpdateSession(ctx, session); err != nil {
			return fmt.Errorf("failed to update consultation: %w", err)
		}
		return audit.Record(ctx, r.Audit, model.AuditActionUpdate, model.AuditEntityConsultation, session.ID, req)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Complete closes the session and hands the patient over to the
// dispensary. A nil req keeps the notes already saved.
func (s *Service) Complete(ctx context.Context, sessionID uuid.UUID, req *model.NotesRequest) (*model.ConsultationSession, error) {
	if req != nil {
		if err := validator.Struct(req); err != nil {
			return nil, fmt.Errorf("invalid notes: %w", err)
		}
	}

	repos := s.store.Repos()
	session, err := repos.Consultations.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get consultation: %w", err)
	}
	if session.Status == model.SessionStatusCompleted {
		return nil, service.ErrSessionClosed
	}

	now := s.clock.Now()
	if req != nil {
		session.Notes, session.Diagnosis = req.Notes, req.Diagnosis
	}
	session.Status = model.SessionStatusCompleted
	session.CompletedAt = &now
	session.UpdatedAt = now

	closeSession := func(r repository.Repositories, _ *model.QueueEntry) error {
		items, err := r.Consultations.ListItems(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("failed to list items: %w", err)
		}
		if err := r.Consultations.UpdateSession(ctx, session); err != nil {
			return fmt.Errorf("failed to complete consultation: %w", err)
		}
		snap := model.ConsultationSnapshot{
			SessionID: session.ID,
			Notes:     session.Notes,
			Diagnosis: session.Diagnosis,
			Items:     items,
			Total:     model.ComputeTotals(items, nil).TotalAmount,
		}
		if err := audit.Record(ctx, r.Audit, model.AuditActionComplete, model.AuditEntityConsultation, session.ID, snap); err != nil {
			return fmt.Errorf("failed to record consultation: %w", err)
		}
		return event.Emit(ctx, r.Outbox, model.EventConsultationCompleted, map[string]interface{}{
			"session_id": session.ID,
			"patient_id": session.PatientID,
			"total":      snap.Total,
		})
	}

	var entry *model.QueueEntry
	if session.QueueEntryID != nil {
		if entry, err = s.queue.Get(ctx, *session.QueueEntryID); err != nil {
			return nil, err
		}
	}

	if entry != nil && entry.Status == model.QueueStatusInConsultation {
		_, err = s.queue.Apply(ctx, entry, queue.Change{Action: model.ActionSendToDispensary}, closeSession)
	} else {
		err = s.store.WithTx(ctx, func(r repository.Repositories) error { return closeSession(r, entry) })
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}
