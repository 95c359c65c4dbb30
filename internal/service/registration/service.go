package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
	"github.com/jwalitptl/clinic-desk/internal/service"
	"github.com/jwalitptl/clinic-desk/internal/service/audit"
	"github.com/jwalitptl/clinic-desk/internal/service/event"
	"github.com/jwalitptl/clinic-desk/internal/service/queue"
	"github.com/jwalitptl/clinic-desk/pkg/metrics"
	"github.com/jwalitptl/clinic-desk/pkg/security"
	"github.com/jwalitptl/clinic-desk/pkg/validator"
)

type RegistrationService interface {
	Register(ctx context.Context, req *model.RegistrationRequest) (*model.RegistrationResult, error)
	AddToQueue(ctx context.Context, patientID uuid.UUID, req *model.VisitRequest) (*model.QueueEntry, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	SearchPatients(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error)
	UpdatePatient(ctx context.Context, id uuid.UUID, req *model.UpdatePatientRequest) (*model.Patient, error)
	AssignTier(ctx context.Context, id uuid.UUID, tierID *uuid.UUID) (*model.Patient, error)
}

type Service struct {
	store   repository.Store
	queue   *queue.Service
	ids     *security.IDProtector
	clock   service.Clock
	metrics *metrics.Metrics
}

func NewService(store repository.Store, queueSvc *queue.Service, ids *security.IDProtector, clock service.Clock, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		queue:   queueSvc,
		ids:     ids,
		clock:   clock,
		metrics: m,
	}
}

// Register finds or creates the patient and puts them in today's queue.
// Nothing is written unless both succeed.
func (s *Service) Register(ctx context.Context, req *model.RegistrationRequest) (*model.RegistrationResult, error) {
	if err := validator.Struct(req); err != nil {
		s.count("invalid")
		return nil, fmt.Errorf("invalid registration: %w", err)
	}

	result := &model.RegistrationResult{}
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		patient, err := s.findPatient(ctx, r, &req.PatientInput)
		if err != nil {
			return err
		}

		if patient == nil {
			if patient, err = s.createPatient(ctx, r, &req.PatientInput); err != nil {
				return err
			}
			result.NewPatient = true
		} else if req.TierID != nil && (patient.AssignedTierID == nil || *patient.AssignedTierID != *req.TierID) {
			if err := s.setTier(ctx, r, patient, req.TierID); err != nil {
				return err
			}
		}

		entry, err := s.queue.Enqueue(ctx, r, patient, req.VisitRequest)
		if err != nil {
			return err
		}
		result.Patient, result.QueueEntry = patient, entry
		return nil
	})
	if err != nil {
		if errors.Is(err, service.ErrAlreadyQueued) {
			s.count("rejected")
		} else {
			s.count("error")
		}
		return nil, err
	}

	s.queue.Invalidate(result.QueueEntry.QueueDate)
	if result.NewPatient {
		s.count("new")
	} else {
		s.count("returning")
	}
	s.present(result.Patient)
	return result, nil
}

// findPatient matches by NRIC first, then by a unique name and phone
// match. It returns nil when nobody matches.
func (s *Service) findPatient(ctx context.Context, r repository.Repositories, in *model.PatientInput) (*model.Patient, error) {
	hasNRIC := strings.TrimSpace(in.NRIC) != ""
	if hasNRIC {
		p, err := r.Patients.GetByNRICDigest(ctx, s.ids.Digest(in.NRIC))
		switch {
		case err == nil:
			return p, nil
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("failed to look up patient by nric: %w", err)
		}
	}

	matches, err := r.Patients.FindMatches(ctx, in.Name, in.Phone, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to look up patient: %w", err)
	}
	if len(matches) != 1 {
		return nil, nil
	}
	// a different identity number means a different person
	if hasNRIC && matches[0].NRICDigest != nil {
		return nil, nil
	}
	return matches[0], nil
}

func (s *Service) createPatient(ctx context.Context, r repository.Repositories, in *model.PatientInput) (*model.Patient, error) {
	if in.TierID != nil {
		if _, err := r.Pricing.GetTier(ctx, *in.TierID); err != nil {
			return nil, fmt.Errorf("failed to get tier: %w", err)
		}
	}

	now := s.clock.Now()
	code, err := r.Patients.NextPatientCode(ctx, now.Year())
	if err != nil {
		return nil, fmt.Errorf("failed to allocate patient code: %w", err)
	}

	p := &model.Patient{
		Base:           model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PatientCode:    code,
		Name:           strings.TrimSpace(in.Name),
		Phone:          strings.TrimSpace(in.Phone),
		DateOfBirth:    in.DateOfBirth.Time,
		Gender:         in.Gender,
		Email:          optional(in.Email),
		Address:        optional(in.Address),
		AssignedTierID: in.TierID,
	}
	if strings.TrimSpace(in.NRIC) != "" {
		sealed, err := s.ids.Seal(in.NRIC)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt nric: %w", err)
		}
		digest := s.ids.Digest(in.NRIC)
		p.NRICCipher, p.NRICDigest = sealed, &digest
	}

	if err := r.Patients.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}
	if err := audit.Record(ctx, r.Audit, model.AuditActionRegister, model.AuditEntityPatient, p.ID, map[string]interface{}{
		"patient_code": p.PatientCode,
		"name":         p.Name,
	}); err != nil {
		return nil, fmt.Errorf("failed to record registration: %w", err)
	}
	if err := event.Emit(ctx, r.Outbox, model.EventPatientRegistered, map[string]interface{}{
		"patient_id":   p.ID,
		"patient_code": p.PatientCode,
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// AddToQueue starts a new visit for a registered patient.
func (s *Service) AddToQueue(ctx context.Context, patientID uuid.UUID, req *model.VisitRequest) (*model.QueueEntry, error) {
	if err := validator.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid visit: %w", err)
	}

	var entry *model.QueueEntry
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		patient, err := r.Patients.Get(ctx, patientID)
		if err != nil {
			return fmt.Errorf("failed to get patient: %w", err)
		}
		entry, err = s.queue.Enqueue(ctx, r, patient, *req)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.queue.Invalidate(entry.QueueDate)
	return entry, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	p, err := s.store.Repos().Patients.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	s.present(p)
	return p, nil
}

func (s *Service) SearchPatients(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error) {
	patients, err := s.store.Repos().Patients.Search(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to search patients: %w", err)
	}
	for _, p := range patients {
		s.present(p)
	}
	return patients, nil
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, req *model.UpdatePatientRequest) (*model.Patient, error) {
	if err := validator.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid patient update: %w", err)
	}

	var patient *model.Patient
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		var err error
		if patient, err = r.Patients.Get(ctx, id); err != nil {
			return fmt.Errorf("failed to get patient: %w", err)
		}

		if req.Name != nil {
			patient.Name = strings.TrimSpace(*req.Name)
		}
		if req.Phone != nil {
			patient.Phone = strings.TrimSpace(*req.Phone)
		}
		if req.Email != nil {
			patient.Email = optional(*req.Email)
		}
		if req.Address != nil {
			patient.Address = optional(*req.Address)
		}
		if req.Gender != nil {
			patient.Gender = *req.Gender
		}

		if err := r.Patients.Update(ctx, patient); err != nil {
			return fmt.Errorf("failed to update patient: %w", err)
		}
		return audit.Record(ctx, r.Audit, model.AuditActionUpdate, model.AuditEntityPatient, id, req)
	})
	if err != nil {
		return nil, err
	}
	s.present(patient)
	return patient, nil
}

// AssignTier sets or, with a nil tierID, clears the patient's price tier.
func (s *Service) AssignTier(ctx context.Context, id uuid.UUID, tierID *uuid.UUID) (*model.Patient, error) {
	var patient *model.Patient
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		var err error
		if patient, err = r.Patients.Get(ctx, id); err != nil {
			return fmt.Errorf("failed to get patient: %w", err)
		}
		return s.setTier(ctx, r, patient, tierID)
	})
	if err != nil {
		return nil, err
	}
	s.present(patient)
	return patient, nil
}

func (s *Service) setTier(ctx context.Context, r repository.Repositories, p *model.Patient, tierID *uuid.UUID) error {
	if tierID != nil {
		if _, err := r.Pricing.GetTier(ctx, *tierID); err != nil {
			return fmt.Errorf("failed to get tier: %w", err)
		}
	}
	if err := r.Patients.SetTier(ctx, p.ID, tierID); err != nil {
		return fmt.Errorf("failed to assign tier: %w", err)
	}
	p.AssignedTierID = tierID
	return audit.Record(ctx, r.Audit, model.AuditActionUpdate, model.AuditEntityPatient, p.ID, map[string]interface{}{
		"assigned_tier_id": tierID,
	})
}

// present fills the masked NRIC shown to staff.
func (s *Service) present(p *model.Patient) {
	if len(p.NRICCipher) == 0 {
		return
	}
	id, err := s.ids.Open(p.NRICCipher)
	if err != nil {
		return
	}
	p.NRIC = maskID(id)
}

func maskID(id string) string {
	if len(id) <= 4 {
		return strings.Repeat("*", len(id))
	}
	return strings.Repeat("*", len(id)-4) + id[len(id)-4:]
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (s *Service) count(result string) {
	if s.metrics != nil {
		s.metrics.Registrations.WithLabelValues(result).Inc()
	}
}
