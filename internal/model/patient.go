package model

import (
	"time"

	"github.com/google/uuid"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Patient is the root record of the front-desk workflow. PatientCode is the
// human-readable id printed on cards and labels.
type Patient struct {
	Base
	PatientCode    string     `db:"patient_code" json:"patient_id"`
	Name           string     `db:"name" json:"name"`
	Phone          string     `db:"phone" json:"phone"`
	Email          *string    `db:"email" json:"email,omitempty"`
	DateOfBirth    time.Time  `db:"date_of_birth" json:"date_of_birth"`
	Gender         Gender     `db:"gender" json:"gender"`
	NRICCipher     []byte     `db:"nric_cipher" json:"-"`
	NRICDigest     *string    `db:"nric_digest" json:"-"`
	NRIC           string     `db:"-" json:"nric,omitempty"`
	Address        *string    `db:"address" json:"address,omitempty"`
	AssignedTierID *uuid.UUID `db:"assigned_tier_id" json:"assigned_tier_id,omitempty"`
}

type PatientInput struct {
	Name        string     `json:"name" binding:"required,min=2,max=200"`
	Phone       string     `json:"phone" binding:"required,phone"`
	DateOfBirth Date       `json:"date_of_birth" binding:"required,past"`
	Gender      Gender     `json:"gender" binding:"required,oneof=male female other"`
	NRIC        string     `json:"nric" binding:"omitempty,max=20"`
	Email       string     `json:"email" binding:"omitempty,email"`
	Address     string     `json:"address" binding:"omitempty,max=500"`
	TierID      *uuid.UUID `json:"tier_id"`
}

// RegistrationRequest is the walk-in form: who the patient is and why
// they came in.
type RegistrationRequest struct {
	PatientInput
	VisitRequest
}

type RegistrationResult struct {
	Patient    *Patient    `json:"patient"`
	QueueEntry *QueueEntry `json:"queue_entry"`
	// NewPatient is false when an existing record was reused.
	NewPatient bool `json:"new_patient"`
}

type UpdatePatientRequest struct {
	Name    *string `json:"name" binding:"omitempty,min=2,max=200"`
	Phone   *string `json:"phone" binding:"omitempty,phone"`
	Email   *string `json:"email" binding:"omitempty,email"`
	Address *string `json:"address" binding:"omitempty,max=500"`
	Gender  *Gender `json:"gender" binding:"omitempty,oneof=male female other"`
}

type AssignTierRequest struct {
	TierID *uuid.UUID `json:"tier_id"`
}

type PatientFilters struct {
	SearchTerm string
	Phone      string
	Pagination
}

// Date is a calendar date carried as "2006-01-02" in JSON.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}
