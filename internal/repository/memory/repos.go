package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
)

func notFound(what string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", what, id, repository.ErrNotFound)
}

func day(t time.Time) string { return t.Format("2006-01-02") }

type patientRepo struct{ *db }

func (r *patientRepo) Create(_ context.Context, p *model.Patient) error {
	return r.with("patients.create", func(st *state) error {
		for _, existing := range st.patients {
			if existing.PatientCode == p.PatientCode {
				return fmt.Errorf("patient code %s: %w", p.PatientCode, repository.ErrDuplicate)
			}
			if p.NRICDigest != nil && existing.NRICDigest != nil && *existing.NRICDigest == *p.NRICDigest {
				return fmt.Errorf("nric: %w", repository.ErrDuplicate)
			}
		}
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		now := time.Now()
		p.CreatedAt, p.UpdatedAt = now, now
		st.patients[p.ID] = *p
		return nil
	})
}

func (r *patientRepo) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	var out model.Patient
	err := r.with("patients.get", func(st *state) error {
		p, ok := st.patients[id]
		if !ok {
			return notFound("patient", id)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *patientRepo) GetByNRICDigest(_ context.Context, digest string) (*model.Patient, error) {
	var out *model.Patient
	err := r.with("patients.get", func(st *state) error {
		for _, p := range st.patients {
			if p.NRICDigest != nil && *p.NRICDigest == digest {
				p := p
				out = &p
				return nil
			}
		}
		return notFound("patient with nric", "digest")
	})
	return out, err
}

func (r *patientRepo) sorted(st *state, keep func(model.Patient) bool, less func(a, b model.Patient) bool) []*model.Patient {
	var out []*model.Patient
	for _, p := range st.patients {
		if keep(p) {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(*out[i], *out[j]) })
	return out
}

func (r *patientRepo) FindMatches(_ context.Context, name, phone string, limit int) ([]*model.Patient, error) {
	var out []*model.Patient
	err := r.with("patients.find", func(st *state) error {
		name, phone := strings.ToLower(strings.TrimSpace(name)), strings.TrimSpace(phone)
		out = r.sorted(st, func(p model.Patient) bool {
			return strings.Contains(strings.ToLower(p.Name), name) && strings.Contains(p.Phone, phone)
		}, func(a, b model.Patient) bool { return a.CreatedAt.Before(b.CreatedAt) })
		if len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

func (r *patientRepo) Search(_ context.Context, f *model.PatientFilters) ([]*model.Patient, error) {
	var out []*model.Patient
	err := r.with("patients.search", func(st *state) error {
		term := strings.ToLower(strings.TrimSpace(f.SearchTerm))
		out = r.sorted(st, func(p model.Patient) bool {
			if term != "" && !strings.Contains(strings.ToLower(p.Name), term) &&
				!strings.Contains(strings.ToLower(p.PatientCode), term) && !strings.Contains(p.Phone, term) {
				return false
			}
			return f.Phone == "" || strings.Contains(p.Phone, f.Phone)
		}, func(a, b model.Patient) bool { return a.Name < b.Name })

		start := f.Offset()
		if start > len(out) {
			start = len(out)
		}
		end := start + f.Limit()
		if end > len(out) {
			end = len(out)
		}
		out = out[start:end]
		return nil
	})
	return out, err
}

func (r *patientRepo) Update(_ context.Context, p *model.Patient) error {
	return r.with("patients.update", func(st *state) error {
		existing, ok := st.patients[p.ID]
		if !ok {
			return notFound("patient", p.ID)
		}
		p.UpdatedAt = time.Now()
		p.CreatedAt = existing.CreatedAt
		p.PatientCode = existing.PatientCode
		p.AssignedTierID = existing.AssignedTierID
		st.patients[p.ID] = *p
		return nil
	})
}

func (r *patientRepo) SetTier(_ context.Context, id uuid.UUID, tierID *uuid.UUID) error {
	return r.with("patients.update", func(st *state) error {
		p, ok := st.patients[id]
		if !ok {
			return notFound("patient", id)
		}
		if tierID != nil {
			if _, ok := st.tiers[*tierID]; !ok {
				return fmt.Errorf("tier %s does not exist", tierID)
			}
		}
		p.AssignedTierID = tierID
		p.UpdatedAt = time.Now()
		st.patients[id] = p
		return nil
	})
}

func (r *patientRepo) NextPatientCode(_ context.Context, year int) (string, error) {
	var code string
	err := r.with("patients.sequence", func(st *state) error {
		st.patientSeq[year]++
		code = fmt.Sprintf("P%04d%05d", year, st.patientSeq[year])
		return nil
	})
	return code, err
}

type queueRepo struct{ *db }

func doctorBusy(st *state, doctorID uuid.UUID, date string, except uuid.UUID) bool {
	for _, e := range st.queue {
		if e.ID != except && e.Status == model.QueueStatusInConsultation &&
			e.AssignedDoctorID != nil && *e.AssignedDoctorID == doctorID && day(e.QueueDate) == date {
			return true
		}
	}
	return false
}

func (r *queueRepo) Create(_ context.Context, e *model.QueueEntry) error {
	return r.with("queue.create", func(st *state) error {
		for _, other := range st.queue {
			if day(other.QueueDate) != day(e.QueueDate) {
				continue
			}
			if other.QueueNumber == e.QueueNumber {
				return fmt.Errorf("queue number %s: %w", e.QueueNumber, repository.ErrDuplicate)
			}
			if other.PatientID == e.PatientID && !other.Status.IsTerminal() {
				return fmt.Errorf("active entry for patient: %w", repository.ErrDuplicate)
			}
		}
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.Version == 0 {
			e.Version = 1
		}
		e.UpdatedAt = time.Now()
		st.queue[e.ID] = *e
		return nil
	})
}

func (r *queueRepo) Get(_ context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	var out model.QueueEntry
	err := r.with("queue.get", func(st *state) error {
		e, ok := st.queue[id]
		if !ok {
			return notFound("queue entry", id)
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *queueRepo) NextQueueNumber(_ context.Context, date time.Time) (int, error) {
	var n int
	err := r.with("queue.sequence", func(st *state) error {
		st.queueSeq[day(date)]++
		n = st.queueSeq[day(date)]
		return nil
	})
	return n, err
}

func (r *queueRepo) ActiveForPatient(_ context.Context, patientID uuid.UUID, date time.Time) (*model.QueueEntry, error) {
	var out *model.QueueEntry
	err := r.with("queue.get", func(st *state) error {
		for _, e := range st.queue {
			if e.PatientID == patientID && day(e.QueueDate) == day(date) && !e.Status.IsTerminal() {
				e := e
				out = &e
				return nil
			}
		}
		return notFound("active queue entry for patient", patientID)
	})
	return out, err
}

func queueOrder(a, b model.QueueEntry) bool {
	au, bu := a.Status == model.QueueStatusUrgent, b.Status == model.QueueStatusUrgent
	if au != bu {
		return au
	}
	return a.CheckedInAt.Before(b.CheckedInAt)
}

func (r *queueRepo) List(_ context.Context, f *model.QueueFilter) ([]*model.QueueEntryView, error) {
	var out []*model.QueueEntryView
	err := r.with("queue.list", func(st *state) error {
		for _, e := range st.queue {
			if day(e.QueueDate) != day(f.Date) {
				continue
			}
			if f.Status != "" && e.Status != f.Status {
				continue
			}
			if f.DoctorID != nil && (e.AssignedDoctorID == nil || *e.AssignedDoctorID != *f.DoctorID) {
				continue
			}
			p := st.patients[e.PatientID]
			out = append(out, &model.QueueEntryView{QueueEntry: e, PatientCode: p.PatientCode, PatientName: p.Name})
		}
		sort.Slice(out, func(i, j int) bool { return queueOrder(out[i].QueueEntry, out[j].QueueEntry) })
		return nil
	})
	return out, err
}

func (r *queueRepo) CompareAndSetStatus(_ context.Context, c model.StatusChange) (*model.QueueEntry, error) {
	var out model.QueueEntry
	err := r.with("queue.cas", func(st *state) error {
		e, ok := st.queue[c.ID]
		if !ok {
			return notFound("queue entry", c.ID)
		}
		if e.Status != c.From || (c.ExpectedVersion != nil && *c.ExpectedVersion != e.Version) {
			return fmt.Errorf("queue entry %s: %w", c.ID, repository.ErrStale)
		}
		if c.DoctorID != nil {
			e.AssignedDoctorID = c.DoctorID
		}
		if c.To == model.QueueStatusInConsultation && e.AssignedDoctorID != nil &&
			doctorBusy(st, *e.AssignedDoctorID, day(e.QueueDate), e.ID) {
			return fmt.Errorf("doctor busy: %w", repository.ErrDuplicate)
		}
		e.Status = c.To
		e.Version++
		e.UpdatedAt = time.Now()
		st.queue[e.ID] = e
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *queueRepo) ClaimNext(_ context.Context, date time.Time, doctorID *uuid.UUID) (*model.QueueEntry, error) {
	var out model.QueueEntry
	err := r.with("queue.claim", func(st *state) error {
		if doctorID != nil && doctorBusy(st, *doctorID, day(date), uuid.Nil) {
			return notFound("claimable entry on", day(date))
		}
		var candidates []model.QueueEntry
		for _, e := range st.queue {
			if day(e.QueueDate) != day(date) || !e.Status.IsWaiting() {
				continue
			}
			if doctorID != nil && e.AssignedDoctorID != nil && *e.AssignedDoctorID != *doctorID {
				continue
			}
			candidates = append(candidates, e)
		}
		if len(candidates) == 0 {
			return notFound("claimable entry on", day(date))
		}
		sort.Slice(candidates, func(i, j int) bool { return queueOrder(candidates[i], candidates[j]) })

		e := candidates[0]
		e.Status = model.QueueStatusInConsultation
		if doctorID != nil {
			e.AssignedDoctorID = doctorID
		}
		e.Version++
		e.UpdatedAt = time.Now()
		st.queue[e.ID] = e
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *queueRepo) DoctorBusy(_ context.Context, doctorID uuid.UUID, date time.Time) (bool, error) {
	var busy bool
	err := r.with("queue.get", func(st *state) error {
		busy = doctorBusy(st, doctorID, day(date), uuid.Nil)
		return nil
	})
	return busy, err
}

type consultationRepo struct{ *db }

func (r *consultationRepo) CreateSession(_ context.Context, s *model.ConsultationSession) error {
	return r.with("sessions.create", func(st *state) error {
		if s.QueueEntryID != nil {
			for _, other := range st.sessions {
				if other.QueueEntryID != nil && *other.QueueEntryID == *s.QueueEntryID {
					return fmt.Errorf("session for queue entry: %w", repository.ErrDuplicate)
				}
			}
		}
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.UpdatedAt = time.Now()
		st.sessions[s.ID] = *s
		return nil
	})
}

func (r *consultationRepo) GetSession(_ context.Context, id uuid.UUID) (*model.ConsultationSession, error) {
	var out model.ConsultationSession
	err := r.with("sessions.get", func(st *state) error {
		s, ok := st.sessions[id]
		if !ok {
			return notFound("consultation session", id)
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *consultationRepo) GetSessionByQueueEntry(_ context.Context, entryID uuid.UUID) (*model.ConsultationSession, error) {
	var out *model.ConsultationSession
	err := r.with("sessions.get", func(st *state) error {
		for _, s := range st.sessions {
			if s.QueueEntryID != nil && *s.QueueEntryID == entryID {
				s := s
				out = &s
				return nil
			}
		}
		return notFound("consultation session for entry", entryID)
	})
	return out, err
}

func (r *consultationRepo) UpdateSession(_ context.Context, s *model.ConsultationSession) error {
	return r.with("sessions.update", func(st *state) error {
		if _, ok := st.sessions[s.ID]; !ok {
			return notFound("consultation session", s.ID)
		}
		s.UpdatedAt = time.Now()
		st.sessions[s.ID] = *s
		return nil
	})
}

func (r *consultationRepo) AddItem(_ context.Context, item *model.TreatmentItem) error {
	return r.with("items.create", func(st *state) error {
		if _, ok := st.sessions[item.SessionID]; !ok {
			return notFound("consultation session", item.SessionID)
		}
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		now := time.Now()
		item.CreatedAt, item.UpdatedAt = now, now
		item.Recompute()
		st.items[item.ID] = *item
		return nil
	})
}

func (r *consultationRepo) GetItem(_ context.Context, id uuid.UUID) (*model.TreatmentItem, error) {
	var out model.TreatmentItem
	err := r.with("items.get", func(st *state) error {
		item, ok := st.items[id]
		if !ok {
			return notFound("treatment item", id)
		}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *consultationRepo) UpdateItem(_ context.Context, item *model.TreatmentItem) error {
	return r.with("items.update", func(st *state) error {
		if _, ok := st.items[item.ID]; !ok {
			return notFound("treatment item", item.ID)
		}
		item.UpdatedAt = time.Now()
		item.Recompute()
		st.items[item.ID] = *item
		return nil
	})
}

func (r *consultationRepo) DeleteItem(_ context.Context, id uuid.UUID) error {
	return r.with("items.delete", func(st *state) error {
		if _, ok := st.items[id]; !ok {
			return notFound("treatment item", id)
		}
		delete(st.items, id)
		return nil
	})
}

func (r *consultationRepo) ListItems(_ context.Context, sessionID uuid.UUID) ([]*model.TreatmentItem, error) {
	var out []*model.TreatmentItem
	err := r.with("items.list", func(st *state) error {
		for _, item := range st.items {
			if item.SessionID == sessionID {
				item := item
				out = append(out, &item)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

type pricingRepo struct{ *db }

func (r *pricingRepo) ListTiers(_ context.Context) ([]*model.PriceTier, error) {
	var out []*model.PriceTier
	err := r.with("pricing.tiers", func(st *state) error {
		for _, t := range st.tiers {
			t := t
			out = append(out, &t)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return nil
	})
	return out, err
}

func (r *pricingRepo) GetTier(_ context.Context, id uuid.UUID) (*model.PriceTier, error) {
	var out model.PriceTier
	err := r.with("pricing.tiers", func(st *state) error {
		t, ok := st.tiers[id]
		if !ok {
			return notFound("price tier", id)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *pricingRepo) GetCatalogItem(_ context.Context, itemType model.ItemType, id uuid.UUID) (*model.CatalogItem, error) {
	var out model.CatalogItem
	err := r.with("pricing.catalog", func(st *state) error {
		item, ok := st.catalog[id]
		if !ok || item.ItemType != itemType {
			return notFound(string(itemType), id)
		}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *pricingRepo) GetOverride(_ context.Context, itemType model.ItemType, itemID, tierID uuid.UUID) (model.Money, error) {
	var price model.Money
	err := r.with("pricing.override", func(st *state) error {
		p, ok := st.overrides[overrideKey{itemType, itemID, tierID}]
		if !ok {
			return notFound("tier price for", itemID)
		}
		price = p
		return nil
	})
	return price, err
}

func (r *pricingRepo) UpsertOverride(_ context.Context, itemType model.ItemType, itemID, tierID uuid.UUID, price model.Money) error {
	return r.with("pricing.upsert", func(st *state) error {
		st.overrides[overrideKey{itemType, itemID, tierID}] = price
		return nil
	})
}

func (r *pricingRepo) DeleteOverride(_ context.Context, itemType model.ItemType, itemID, tierID uuid.UUID) error {
	return r.with("pricing.delete", func(st *state) error {
		key := overrideKey{itemType, itemID, tierID}
		if _, ok := st.overrides[key]; !ok {
			return notFound("tier price for", itemID)
		}
		delete(st.overrides, key)
		return nil
	})
}

type paymentRepo struct{ *db }

func (r *paymentRepo) Create(_ context.Context, p *model.Payment) error {
	return r.with("payments.create", func(st *state) error {
		if _, ok := st.sessions[p.SessionID]; !ok {
			return notFound("consultation session", p.SessionID)
		}
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		st.payments[p.ID] = *p
		return nil
	})
}

func (r *paymentRepo) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*model.Payment, error) {
	var out []*model.Payment
	err := r.with("payments.list", func(st *state) error {
		for _, p := range st.payments {
			if p.SessionID == sessionID {
				p := p
				out = append(out, &p)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.Before(out[j].PaidAt) })
		return nil
	})
	return out, err
}

type auditRepo struct{ *db }

func (r *auditRepo) Create(_ context.Context, log *model.AuditLog) error {
	return r.with("audit.create", func(st *state) error {
		if log.ID == uuid.Nil {
			log.ID = uuid.New()
		}
		st.audits = append(st.audits, *log)
		return nil
	})
}

func (r *auditRepo) Cleanup(_ context.Context, before time.Time) (int64, error) {
	var n int64
	err := r.with("audit.cleanup", func(st *state) error {
		kept := st.audits[:0]
		for _, a := range st.audits {
			if a.CreatedAt.Before(before) {
				n++
				continue
			}
			kept = append(kept, a)
		}
		st.audits = kept
		return nil
	})
	return n, err
}

type outboxRepo struct{ *db }

func (r *outboxRepo) Create(_ context.Context, evt *model.OutboxEvent) error {
	return r.with("outbox.create", func(st *state) error {
		evt.ID = uuid.New()
		evt.Status = model.OutboxStatusPending
		evt.CreatedAt = time.Now()
		evt.UpdatedAt = evt.CreatedAt
		st.outbox = append(st.outbox, *evt)
		return nil
	})
}

func (r *outboxRepo) ProcessPending(_ context.Context, limit int, retryDelay time.Duration, handle func(*model.OutboxEvent) error) (processed, failed int, err error) {
	err = r.with("outbox.process", func(st *state) error {
		now := time.Now()
		for i := range st.outbox {
			if processed+failed >= limit {
				break
			}
			evt := &st.outbox[i]
			due := evt.RetryAt == nil || !evt.RetryAt.After(now)
			if (evt.Status != model.OutboxStatusPending && evt.Status != model.OutboxStatusRetry) || !due {
				continue
			}
			if herr := handle(evt); herr != nil {
				failed++
				msg := herr.Error()
				at := now.Add(retryDelay)
				evt.Status, evt.ErrorMessage, evt.RetryAt = model.OutboxStatusRetry, &msg, &at
				evt.RetryCount++
				continue
			}
			processed++
			evt.Status = model.OutboxStatusProcessed
			evt.ProcessedAt = &now
		}
		return nil
	})
	return processed, failed, err
}

func (r *outboxRepo) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	var n int64
	err := r.with("outbox.cleanup", func(st *state) error {
		kept := st.outbox[:0]
		for _, evt := range st.outbox {
			if evt.Status == model.OutboxStatusProcessed && evt.ProcessedAt != nil && evt.ProcessedAt.Before(before) {
				n++
				continue
			}
			kept = append(kept, evt)
		}
		st.outbox = kept
		return nil
	})
	return n, err
}
