package dispensary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-desk/internal/document"
	"github.com/jwalitptl/clinic-desk/internal/email"
	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
	"github.com/jwalitptl/clinic-desk/internal/service"
	"github.com/jwalitptl/clinic-desk/internal/service/audit"
	"github.com/jwalitptl/clinic-desk/internal/service/consultation"
	"github.com/jwalitptl/clinic-desk/internal/service/event"
	"github.com/jwalitptl/clinic-desk/internal/service/queue"
	"github.com/jwalitptl/clinic-desk/pkg/logger"
	"github.com/jwalitptl/clinic-desk/pkg/metrics"
	"github.com/jwalitptl/clinic-desk/pkg/validator"
)

type DispensaryService interface {
	GetInvoice(ctx context.Context, sessionID uuid.UUID) (*model.Invoice, error)
	RecordPayment(ctx context.Context, sessionID uuid.UUID, req *model.PaymentRequest) (*model.Invoice, error)
	Complete(ctx context.Context, sessionID uuid.UUID) (*model.Invoice, error)
	AddItem(ctx context.Context, sessionID uuid.UUID, in *model.ItemInput) (*model.TreatmentItem, error)
	UpdateItem(ctx context.Context, itemID uuid.UUID, patch *model.ItemPatch) (*model.TreatmentItem, error)
	RemoveItem(ctx context.Context, itemID uuid.UUID) error
	RenderInvoice(ctx context.Context, sessionID uuid.UUID, w io.Writer) error
	RenderLabel(ctx context.Context, itemID uuid.UUID, w io.Writer) error
}

type Config struct {
	ClinicName string
}

type Service struct {
	store        repository.Store
	queue        *queue.Service
	consultation *consultation.Service
	mailer       email.Service
	clock        service.Clock
	cfg          Config
	metrics      *metrics.Metrics
	log          *logger.Logger
}

func NewService(
	store repository.Store,
	queueSvc *queue.Service,
	consultationSvc *consultation.Service,
	mailer email.Service,
	clock service.Clock,
	cfg Config,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	if mailer == nil {
		mailer = email.Disabled{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:        store,
		queue:        queueSvc,
		consultation: consultationSvc,
		mailer:       mailer,
		clock:        clock,
		cfg:          cfg,
		metrics:      m,
		log:          log.With("dispensary"),
	}
}

// GetInvoice derives every total from the stored items and payments.
func (s *Service) GetInvoice(ctx context.Context, sessionID uuid.UUID) (*model.Invoice, error) {
	r := s.store.Repos()
	session, err := r.Consultations.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get consultation: %w", err)
	}
	items, err := r.Consultations.ListItems(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	payments, err := r.Payments.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	patient, err := r.Patients.Get(ctx, session.PatientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	inv := &model.Invoice{
		SessionID: sessionID,
		Patient:   patient,
		Items:     items,
		Payments:  payments,
	}
	if session.QueueEntryID != nil {
		if inv.QueueEntry, err = r.Queue.Get(ctx, *session.QueueEntryID); err != nil {
			return nil, fmt.Errorf("failed to get queue entry: %w", err)
		}
	}
	if patient.AssignedTierID == nil {
		inv.TierWarning = model.TierWarningNoTierAssigned
	} else if inv.Tier, err = r.Pricing.GetTier(ctx, *patient.AssignedTierID); err != nil {
		return nil, fmt.Errorf("failed to get tier: %w", err)
	}

	totals := model.ComputeTotals(items, payments)
	inv.TotalAmount, inv.TotalPaid, inv.AmountDue = totals.TotalAmount, totals.TotalPaid, totals.AmountDue
	if inv.Items == nil {
		inv.Items = []*model.TreatmentItem{}
	}
	if inv.Payments == nil {
		inv.Payments = []*model.Payment{}
	}
	return inv, nil
}

// RecordPayment stores the payment and completes the visit once the
// invoice is settled.
func (s *Service) RecordPayment(ctx context.Context, sessionID uuid.UUID, req *model.PaymentRequest) (*model.Invoice, error) {
	if err := validator.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid payment: %w", err)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive: %w", service.ErrInvalidInput)
	}

	inv, err := s.GetInvoice(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if inv.QueueEntry != nil && inv.QueueEntry.Status.IsTerminal() {
		return nil, fmt.Errorf("visit is %s: %w", inv.QueueEntry.Status, service.ErrInvoiceFinalized)
	}

	payment := &model.Payment{
		ID:         uuid.New(),
		SessionID:  sessionID,
		Amount:     req.Amount,
		Method:     req.Method,
		Reference:  req.Reference,
		ReceivedBy: audit.ActorFrom(ctx).StaffID,
		PaidAt:     s.clock.Now(),
	}
	err = s.store.WithTx(ctx, func(r repository.Repositories) error {
		if err := r.Payments.Create(ctx, payment); err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}
		if err := audit.Record(ctx, r.Audit, model.AuditActionPayment, model.AuditEntityPayment, payment.ID, payment); err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}
		return event.Emit(ctx, r.Outbox, model.EventPaymentRecorded, payment)
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.Payments.WithLabelValues(string(payment.Method)).Inc()
		s.metrics.PaymentAmount.Add(float64(payment.Amount) / 100)
	}

	if inv, err = s.GetInvoice(ctx, sessionID); err != nil {
		return nil, err
	}
	settled := model.Totals{AmountDue: inv.AmountDue}.Settled()
	if !settled || inv.QueueEntry == nil || inv.QueueEntry.Status != model.QueueStatusDispensary {
		return inv, nil
	}

	entry, err := s.queue.Apply(ctx, inv.QueueEntry, queue.Change{Action: model.ActionComplete}, nil)
	if err != nil {
		// the payment is already recorded; staff can complete manually
		s.log.Error(err, "failed to complete settled visit", "session_id", sessionID.String())
		return inv, nil
	}
	inv.QueueEntry = entry
	s.sendReceipt(ctx, inv)
	return inv, nil
}

// Complete ends a visit still in the dispensary regardless of balance.
func (s *Service) Complete(ctx context.Context, sessionID uuid.UUID) (*model.Invoice, error) {
	inv, err := s.GetInvoice(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if inv.QueueEntry == nil {
		return nil, fmt.Errorf("consultation has no queue entry: %w", service.ErrInvalidTransition)
	}
	entry, err := s.queue.Apply(ctx, inv.QueueEntry, queue.Change{Action: model.ActionComplete}, nil)
	if err != nil {
		return nil, err
	}
	inv.QueueEntry = entry
	if (model.Totals{AmountDue: inv.AmountDue}).Settled() {
		s.sendReceipt(ctx, inv)
	}
	return inv, nil
}

func (s *Service) AddItem(ctx context.Context, sessionID uuid.UUID, in *model.ItemInput) (*model.TreatmentItem, error) {
	return s.consultation.AddItem(ctx, sessionID, in)
}

func (s *Service) UpdateItem(ctx context.Context, itemID uuid.UUID, patch *model.ItemPatch) (*model.TreatmentItem, error) {
	return s.consultation.UpdateItem(ctx, itemID, patch)
}

func (s *Service) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	return s.consultation.RemoveItem(ctx, itemID)
}

func (s *Service) RenderInvoice(ctx context.Context, sessionID uuid.UUID, w io.Writer) error {
	inv, err := s.GetInvoice(ctx, sessionID)
	if err != nil {
		return err
	}
	return document.RenderInvoice(w, document.NewInvoice(inv, s.cfg.ClinicName, false, s.clock.Now()))
}

func (s *Service) RenderLabel(ctx context.Context, itemID uuid.UUID, w io.Writer) error {
	r := s.store.Repos()
	item, err := r.Consultations.GetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("failed to get item: %w", err)
	}
	if item.ItemType != model.ItemTypeMedication {
		return fmt.Errorf("labels are printed for medications only: %w", service.ErrInvalidInput)
	}
	session, err := r.Consultations.GetSession(ctx, item.SessionID)
	if err != nil {
		return fmt.Errorf("failed to get consultation: %w", err)
	}
	patient, err := r.Patients.Get(ctx, session.PatientID)
	if err != nil {
		return fmt.Errorf("failed to get patient: %w", err)
	}
	return document.RenderLabel(w, document.NewLabel(item, patient, s.cfg.ClinicName, s.clock.Now()))
}

// sendReceipt mails the settled invoice. Failures are only logged.
func (s *Service) sendReceipt(ctx context.Context, inv *model.Invoice) {
	if inv.Patient == nil || inv.Patient.Email == nil {
		return
	}
	var body bytes.Buffer
	if err := document.RenderInvoice(&body, document.NewInvoice(inv, s.cfg.ClinicName, true, s.clock.Now())); err != nil {
		s.log.Error(err, "failed to render receipt")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	err := s.mailer.Send(ctx, email.Message{
		To:      *inv.Patient.Email,
		Subject: fmt.Sprintf("%s receipt %s", s.cfg.ClinicName, receiptNumber(inv)),
		HTML:    body.String(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error(err, "failed to send receipt", "session_id", inv.SessionID.String())
	}
}

func receiptNumber(inv *model.Invoice) string {
	if inv.QueueEntry != nil {
		return inv.QueueEntry.QueueDate.Format("20060102") + "-" + inv.QueueEntry.QueueNumber
	}
	return inv.SessionID.String()[:8]
}
