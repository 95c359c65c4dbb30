package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
)

const patientColumns = `
	id, patient_code, name, phone, email, date_of_birth, gender,
	nric_cipher, nric_digest, address, assigned_tier_id, created_at, updated_at`

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (` + patientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
	}
	now := time.Now()
	patient.CreatedAt = now
	patient.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		patient.ID,
		patient.PatientCode,
		patient.Name,
		patient.Phone,
		patient.Email,
		patient.DateOfBirth,
		patient.Gender,
		patient.NRICCipher,
		patient.NRICDigest,
		patient.Address,
		patient.AssignedTierID,
		patient.CreatedAt,
		patient.UpdatedAt,
	)
	return mapError(err, "create patient")
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`

	var patient model.Patient
	if err := sqlx.GetContext(ctx, r.db, &patient, query, id); err != nil {
		return nil, mapError(err, "get patient")
	}
	return &patient, nil
}

func (r *patientRepository) GetByNRICDigest(ctx context.Context, digest string) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE nric_digest = $1`

	var patient model.Patient
	if err := sqlx.GetContext(ctx, r.db, &patient, query, digest); err != nil {
		return nil, mapError(err, "get patient by nric")
	}
	return &patient, nil
}

// FindMatches returns patients whose name contains name (case-insensitive)
// and whose phone contains phone.
func (r *patientRepository) FindMatches(ctx context.Context, name, phone string, limit int) ([]*model.Patient, error) {
	query := `
		SELECT ` + patientColumns + `
		FROM patients
		WHERE name ILIKE $1 ESCAPE '\' AND phone LIKE $2 ESCAPE '\'
		ORDER BY created_at ASC
		LIMIT $3
	`
	var patients []*model.Patient
	err := sqlx.SelectContext(ctx, r.db, &patients, query, contains(name), contains(phone), limit)
	if err != nil {
		return nil, mapError(err, "find matching patients")
	}
	return patients, nil
}

func (r *patientRepository) Search(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE 1=1`
	var args []interface{}

	if filters.SearchTerm != "" {
		args = append(args, contains(filters.SearchTerm))
		n := len(args)
		query += fmt.Sprintf(
			" AND (name ILIKE $%d ESCAPE '\\' OR patient_code ILIKE $%d ESCAPE '\\' OR phone LIKE $%d ESCAPE '\\')",
			n, n, n,
		)
	}
	if filters.Phone != "" {
		args = append(args, contains(filters.Phone))
		query += fmt.Sprintf(" AND phone LIKE $%d ESCAPE '\\'", len(args))
	}

	args = append(args, filters.Limit(), filters.Offset())
	query += fmt.Sprintf(" ORDER BY name ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var patients []*model.Patient
	if err := sqlx.SelectContext(ctx, r.db, &patients, query, args...); err != nil {
		return nil, mapError(err, "search patients")
	}
	return patients, nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	query := `
		UPDATE patients
		SET name = $1, phone = $2, email = $3, gender = $4, address = $5,
			nric_cipher = $6, nric_digest = $7, updated_at = $8
		WHERE id = $9
	`
	patient.UpdatedAt = time.Now()

	res, err := r.db.ExecContext(ctx, query,
		patient.Name,
		patient.Phone,
		patient.Email,
		patient.Gender,
		patient.Address,
		patient.NRICCipher,
		patient.NRICDigest,
		patient.UpdatedAt,
		patient.ID,
	)
	if err != nil {
		return mapError(err, "update patient")
	}
	return affected(res, "patient")
}

func (r *patientRepository) SetTier(ctx context.Context, id uuid.UUID, tierID *uuid.UUID) error {
	query := `UPDATE patients SET assigned_tier_id = $1, updated_at = NOW() WHERE id = $2`

	res, err := r.db.ExecContext(ctx, query, tierID, id)
	if err != nil {
		return mapError(err, "assign tier")
	}
	return affected(res, "patient")
}

// NextPatientCode allocates the next code of the year, e.g. P202400042.
func (r *patientRepository) NextPatientCode(ctx context.Context, year int) (string, error) {
	query := `
		INSERT INTO patient_code_sequences (year, last_value)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE
		SET last_value = patient_code_sequences.last_value + 1
		RETURNING last_value
	`
	var seq int
	if err := sqlx.GetContext(ctx, r.db, &seq, query, year); err != nil {
		return "", mapError(err, "allocate patient code")
	}
	return fmt.Sprintf("P%04d%05d", year, seq), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func contains(s string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(s)) + "%"
}
