package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// ConsultationSession is one doctor-patient encounter.
type ConsultationSession struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	PatientID    uuid.UUID     `db:"patient_id" json:"patient_id"`
	QueueEntryID *uuid.UUID    `db:"queue_entry_id" json:"queue_entry_id,omitempty"`
	DoctorID     uuid.UUID     `db:"doctor_id" json:"doctor_id"`
	Notes        string        `db:"notes" json:"notes"`
	Diagnosis    string        `db:"diagnosis" json:"diagnosis"`
	Status       SessionStatus `db:"status" json:"status"`
	StartedAt    time.Time     `db:"started_at" json:"started_at"`
	CompletedAt  *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

type ItemType string

const (
	ItemTypeMedication ItemType = "medication"
	ItemTypeService    ItemType = "service"
)

func (t ItemType) Valid() bool {
	return t == ItemTypeMedication || t == ItemTypeService
}

type PriceSource string

const (
	PriceSourceTier   PriceSource = "tier"
	PriceSourceBase   PriceSource = "base"
	PriceSourceManual PriceSource = "manual"
)

// TreatmentItem is a priced medication or service line on a session.
// TotalAmount is always Quantity × Rate.
type TreatmentItem struct {
	ID           uuid.UUID   `db:"id" json:"id"`
	SessionID    uuid.UUID   `db:"session_id" json:"session_id"`
	ItemType     ItemType    `db:"item_type" json:"item_type"`
	ItemID       uuid.UUID   `db:"item_id" json:"item_id"`
	Name         string      `db:"name" json:"name"`
	Quantity     int         `db:"quantity" json:"quantity"`
	Rate         Money       `db:"rate" json:"rate"`
	TotalAmount  Money       `db:"total_amount" json:"total_amount"`
	PriceSource  PriceSource `db:"price_source" json:"price_source"`
	Dosage       *string     `db:"dosage" json:"dosage,omitempty"`
	Frequency    *string     `db:"frequency" json:"frequency,omitempty"`
	Duration     *string     `db:"duration" json:"duration,omitempty"`
	Instructions *string     `db:"instructions" json:"instructions,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// Recompute keeps TotalAmount consistent with Quantity and Rate.
func (i *TreatmentItem) Recompute() {
	i.TotalAmount = i.Rate.Mul(i.Quantity)
}

type StartConsultationRequest struct {
	QueueEntryID *uuid.UUID `json:"queue_entry_id"`
	PatientID    uuid.UUID  `json:"patient_id" binding:"required"`
	DoctorID     uuid.UUID  `json:"doctor_id" binding:"required"`
}

type NotesRequest struct {
	Notes     string `json:"notes" binding:"max=10000"`
	Diagnosis string `json:"diagnosis" binding:"max=2000"`
}

type ItemInput struct {
	ItemType     ItemType  `json:"item_type" binding:"required,oneof=medication service"`
	ItemID       uuid.UUID `json:"item_id" binding:"required"`
	Quantity     int       `json:"quantity" binding:"min=0,max=100000"`
	Rate         *Money    `json:"rate"`
	Dosage       *string   `json:"dosage" binding:"omitempty,max=200"`
	Frequency    *string   `json:"frequency" binding:"omitempty,max=200"`
	Duration     *string   `json:"duration" binding:"omitempty,max=200"`
	Instructions *string   `json:"instructions" binding:"omitempty,max=1000"`
}

type ItemPatch struct {
	Quantity     *int    `json:"quantity" binding:"omitempty,min=0,max=100000"`
	Rate         *Money  `json:"rate"`
	Dosage       *string `json:"dosage" binding:"omitempty,max=200"`
	Frequency    *string `json:"frequency" binding:"omitempty,max=200"`
	Duration     *string `json:"duration" binding:"omitempty,max=200"`
	Instructions *string `json:"instructions" binding:"omitempty,max=1000"`
}

// ConsultationDetail is a session with its items.
type ConsultationDetail struct {
	*ConsultationSession
	Items []*TreatmentItem `json:"items"`
	Total Money            `json:"total"`
}

// ConsultationSnapshot is written to the activity log when a doctor hands
// the patient over to the dispensary.
type ConsultationSnapshot struct {
	SessionID uuid.UUID        `json:"session_id"`
	Notes     string           `json:"notes"`
	Diagnosis string           `json:"diagnosis"`
	Items     []*TreatmentItem `json:"items"`
	Total     Money            `json:"total"`
}
