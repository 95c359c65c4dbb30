package consultation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
	"github.com/jwalitptl/clinic-desk/internal/service"
	"github.com/jwalitptl/clinic-desk/internal/service/audit"
	"github.com/jwalitptl/clinic-desk/pkg/validator"
)

// AddItem prices the item for the patient's tier unless in carries a
// manual rate.
func (s *Service) AddItem(ctx context.Context, sessionID uuid.UUID, in *model.ItemInput) (*model.TreatmentItem, error) {
	if err := validator.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid item: %w", err)
	}
	if in.Rate != nil && *in.Rate < 0 {
		return nil, fmt.Errorf("rate must not be negative: %w", service.ErrInvalidInput)
	}

	repos := s.store.Repos()
	session, err := s.editableSession(ctx, repos, sessionID)
	if err != nil {
		return nil, err
	}
	catalog, err := repos.Pricing.GetCatalogItem(ctx, in.ItemType, in.ItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", in.ItemType, err)
	}

	item := &model.TreatmentItem{
		ID:           uuid.New(),
		SessionID:    session.ID,
		ItemType:     in.ItemType,
		ItemID:       in.ItemID,
		Name:         catalog.Name,
		Quantity:     in.Quantity,
		Dosage:       in.Dosage,
		Frequency:    in.Frequency,
		Duration:     in.Duration,
		Instructions: in.Instructions,
	}
	if in.Rate != nil {
		item.Rate, item.PriceSource = *in.Rate, model.PriceSourceManual
	} else {
		patient, err := repos.Patients.Get(ctx, session.PatientID)
		if err != nil {
			return nil, fmt.Errorf("failed to get patient: %w", err)
		}
		res, err := s.pricing.ResolvePrice(ctx, in.ItemType, in.ItemID, patient.AssignedTierID)
		if err != nil {
			return nil, err
		}
		item.Rate, item.PriceSource = res.Price, res.Source
	}
	item.Recompute()

	err = s.store.WithTx(ctx, func(r repository.Repositories) error {
		if err := r.Consultations.AddItem(ctx, item); err != nil {
			return fmt.Errorf("failed to add item: %w", err)
		}
		return audit.Record(ctx, r.Audit, model.AuditActionCreate, model.AuditEntityTreatmentItem, item.ID, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) UpdateItem(ctx context.Context, itemID uuid.UUID, patch *model.ItemPatch) (*model.TreatmentItem, error) {
	if err := validator.Struct(patch); err != nil {
		return nil, fmt.Errorf("invalid item: %w", err)
	}
	if patch.Rate != nil && *patch.Rate < 0 {
		return nil, fmt.Errorf("rate must not be negative: %w", service.ErrInvalidInput)
	}

	var item *model.TreatmentItem
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		var err error
		if item, err = r.Consultations.GetItem(ctx, itemID); err != nil {
			return fmt.Errorf("failed to get item: %w", err)
		}
		if _, err := s.editableSession(ctx, r, item.SessionID); err != nil {
			return err
		}

		if patch.Quantity != nil {
			item.Quantity = *patch.Quantity
		}
		if patch.Rate != nil {
			item.Rate, item.PriceSource = *patch.Rate, model.PriceSourceManual
		}
		if patch.Dosage != nil {
			item.Dosage = patch.Dosage
		}
		if patch.Frequency != nil {
			item.Frequency = patch.Frequency
		}
		if patch.Duration != nil {
			item.Duration = patch.Duration
		}
		if patch.Instructions != nil {
			item.Instructions = patch.Instructions
		}
		item.Recompute()

		if err := r.Consultations.UpdateItem(ctx, item); err != nil {
			return fmt.Errorf("failed to update item: %w", err)
		}
		return audit.Record(ctx, r.Audit, model.AuditActionUpdate, model.AuditEntityTreatmentItem, item.ID, patch)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	return s.store.WithTx(ctx, func(r repository.Repositories) error {
		item, err := r.Consultations.GetItem(ctx, itemID)
		if err != nil {
			return fmt.Errorf("failed to get item: %w", err)
		}
		if _, err := s.editableSession(ctx, r, item.SessionID); err != nil {
			return err
		}
		if err := r.Consultations.DeleteItem(ctx, itemID); err != nil {
			return fmt.Errorf("failed to remove item: %w", err)
		}
		return audit.Record(ctx, r.Audit, model.AuditActionUpdate, model.AuditEntityTreatmentItem, itemID, map[string]interface{}{
			"removed": true,
			"name":    item.Name,
		})
	})
}

// editableSession refuses changes once the visit has ended.
func (s *Service) editableSession(ctx context.Context, r repository.Repositories, sessionID uuid.UUID) (*model.ConsultationSession, error) {
	session, err := r.Consultations.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get consultation: %w", err)
	}
	if session.QueueEntryID == nil {
		return session, nil
	}
	entry, err := r.Queue.Get(ctx, *session.QueueEntryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	if entry.Status.IsTerminal() {
		return nil, fmt.Errorf("visit is %s: %w", entry.Status, service.ErrInvoiceFinalized)
	}
	return session, nil
}
