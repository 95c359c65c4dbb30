package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog is the activity record written alongside every mutation.
type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	StaffID    *uuid.UUID      `json:"staff_id,omitempty" db:"staff_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id" db:"entity_id"`
	Changes    json.RawMessage `json:"changes,omitempty" db:"changes"`
	IPAddress  string          `json:"ip_address" db:"ip_address"`
	UserAgent  string          `json:"user_agent" db:"user_agent"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate     = "create"
	AuditActionUpdate     = "update"
	AuditActionRegister   = "register"
	AuditActionTransition = "transition"
	AuditActionPayment    = "payment"
	AuditActionComplete   = "complete"

	// Entity types
	AuditEntityPatient       = "patient"
	AuditEntityQueueEntry    = "queue_entry"
	AuditEntityConsultation  = "consultation"
	AuditEntityTreatmentItem = "treatment_item"
	AuditEntityPayment       = "payment"
	AuditEntityPricing       = "pricing"
)
