package model

import (
	"time"

	"github.com/google/uuid"
)

type QueueStatus string

const (
	QueueStatusWaiting        QueueStatus = "waiting"
	QueueStatusUrgent         QueueStatus = "urgent"
	QueueStatusInConsultation QueueStatus = "in_consultation"
	QueueStatusDispensary     QueueStatus = "dispensary"
	QueueStatusCompleted      QueueStatus = "completed"
	QueueStatusCancelled      QueueStatus = "cancelled"
)

var validQueueStatuses = map[QueueStatus]bool{
	QueueStatusWaiting:        true,
	QueueStatusUrgent:         true,
	QueueStatusInConsultation: true,
	QueueStatusDispensary:     true,
	QueueStatusCompleted:      true,
	QueueStatusCancelled:      true,
}

func (s QueueStatus) Valid() bool {
	return validQueueStatuses[s]
}

// IsTerminal reports whether no action can leave s.
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusCancelled
}

// IsWaiting covers both plain and urgent waiting entries.
func (s QueueStatus) IsWaiting() bool {
	return s == QueueStatusWaiting || s == QueueStatusUrgent
}

type QueueAction string

const (
	ActionStartConsultation QueueAction = "start_consultation"
	ActionSendToDispensary  QueueAction = "send_to_dispensary"
	ActionComplete          QueueAction = "complete"
	ActionCancel            QueueAction = "cancel"
	ActionMarkUrgent        QueueAction = "mark_urgent"
	ActionClearUrgent       QueueAction = "clear_urgent"
)

type transition struct {
	from []QueueStatus
	to   QueueStatus
}

var queueTransitions = map[QueueAction]transition{
	ActionStartConsultation: {from: []QueueStatus{QueueStatusWaiting, QueueStatusUrgent}, to: QueueStatusInConsultation},
	ActionSendToDispensary:  {from: []QueueStatus{QueueStatusInConsultation}, to: QueueStatusDispensary},
	ActionComplete:          {from: []QueueStatus{QueueStatusDispensary}, to: QueueStatusCompleted},
	ActionCancel: {from: []QueueStatus{
		QueueStatusWaiting, QueueStatusUrgent, QueueStatusInConsultation, QueueStatusDispensary,
	}, to: QueueStatusCancelled},
	ActionMarkUrgent:  {from: []QueueStatus{QueueStatusWaiting}, to: QueueStatusUrgent},
	ActionClearUrgent: {from: []QueueStatus{QueueStatusUrgent}, to: QueueStatusWaiting},
}

func (a QueueAction) Valid() bool {
	_, ok := queueTransitions[a]
	return ok
}

// NextStatus returns the status an action leads to from the given status.
func NextStatus(action QueueAction, from QueueStatus) (QueueStatus, bool) {
	t, ok := queueTransitions[action]
	if !ok {
		return "", false
	}
	for _, s := range t.from {
		if s == from {
			return t.to, true
		}
	}
	return "", false
}

// QueueEntry is a patient's slot in one day's walk-in line.
type QueueEntry struct {
	ID               uuid.UUID   `db:"id" json:"id"`
	PatientID        uuid.UUID   `db:"patient_id" json:"patient_id"`
	QueueDate        time.Time   `db:"queue_date" json:"queue_date"`
	QueueNumber      string      `db:"queue_number" json:"queue_number"`
	Status           QueueStatus `db:"status" json:"status"`
	VisitReason      string      `db:"visit_reason" json:"visit_reason"`
	PaymentMethod    string      `db:"payment_method" json:"payment_method"`
	AssignedDoctorID *uuid.UUID  `db:"assigned_doctor_id" json:"assigned_doctor_id,omitempty"`
	CheckedInAt      time.Time   `db:"checked_in_at" json:"checked_in_at"`
	Version          int         `db:"version" json:"version"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

// WaitTime is derived, never stored.
func (e *QueueEntry) WaitTime(now time.Time) time.Duration {
	if now.Before(e.CheckedInAt) {
		return 0
	}
	return now.Sub(e.CheckedInAt)
}

type WaitLevel string

const (
	WaitLevelNormal  WaitLevel = "normal"
	WaitLevelWarning WaitLevel = "warning"
	WaitLevelUrgent  WaitLevel = "urgent"

	WaitWarningAfter = 20 * time.Minute
	WaitUrgentAfter  = 45 * time.Minute
)

func WaitLevelFor(wait time.Duration) WaitLevel {
	switch {
	case wait >= WaitUrgentAfter:
		return WaitLevelUrgent
	case wait >= WaitWarningAfter:
		return WaitLevelWarning
	default:
		return WaitLevelNormal
	}
}

// QueueEntryView is a queue row joined with its patient and annotated
// with the derived wait.
type QueueEntryView struct {
	QueueEntry
	PatientCode string    `db:"patient_code" json:"patient_code"`
	PatientName string    `db:"patient_name" json:"patient_name"`
	WaitMinutes int       `db:"-" json:"wait_minutes"`
	WaitLevel   WaitLevel `db:"-" json:"wait_level"`
}

// Annotate fills the derived wait fields.
func (v *QueueEntryView) Annotate(now time.Time) {
	wait := v.WaitTime(now)
	v.WaitMinutes = int(wait / time.Minute)
	v.WaitLevel = WaitLevelFor(wait)
}

// StatusChange is a conditional status write.
type StatusChange struct {
	ID              uuid.UUID
	From            QueueStatus
	To              QueueStatus
	ExpectedVersion *int
	// DoctorID, when set, is recorded as the assigned doctor.
	DoctorID *uuid.UUID
}

type QueueFilter struct {
	Date     time.Time
	Status   QueueStatus
	DoctorID *uuid.UUID
}

type QueueStats struct {
	Date               string              `json:"date"`
	Total              int                 `json:"total"`
	ByStatus           map[QueueStatus]int `json:"by_status"`
	Waiting            int                 `json:"waiting"`
	AverageWaitMinutes int                 `json:"average_wait_minutes"`
	LongestWaitMinutes int                 `json:"longest_wait_minutes"`
}

type VisitRequest struct {
	VisitReason   string     `json:"visit_reason" binding:"required,max=200"`
	PaymentMethod string     `json:"payment_method" binding:"required,payment_method"`
	Urgent        bool       `json:"urgent"`
	DoctorID      *uuid.UUID `json:"doctor_id"`
}

type TransitionRequest struct {
	Action          QueueAction `json:"action" binding:"required,queue_action"`
	ExpectedVersion *int        `json:"expected_version"`
}

type CallNextRequest struct {
	DoctorID *uuid.UUID `json:"doctor_id"`
}

// QueueViewState is per-terminal, ephemeral configuration of the queue
// screen. It is never persisted.
type QueueViewState struct {
	TerminalID             string      `json:"terminal_id"`
	Paused                 bool        `json:"paused"`
	StatusFilter           QueueStatus `json:"status_filter,omitempty"`
	RefreshIntervalSeconds int         `json:"refresh_interval_seconds"`
}

type UpdateViewRequest struct {
	Paused       *bool        `json:"paused"`
	StatusFilter *QueueStatus `json:"status_filter"`
}

// QueueEvent is published on every status change.
type QueueEvent struct {
	EntryID     uuid.UUID   `json:"entry_id"`
	PatientID   uuid.UUID   `json:"patient_id"`
	QueueNumber string      `json:"queue_number"`
	From        QueueStatus `json:"from,omitempty"`
	To          QueueStatus `json:"to"`
	Version     int         `json:"version"`
	At          time.Time   `json:"at"`
}
