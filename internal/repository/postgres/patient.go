package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rxguard/audit-api/internal/model"
	"github.com/rxguard/audit-api/internal/repository"
)

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (
			id, name, medical_record_number, date_of_birth,
			is_pregnant, is_nursing, egfr, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	patient.ID = uuid.New()
	patient.CreatedAt = time.Now()
	patient.UpdatedAt = time.Now()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			patient.ID,
			patient.Name,
			patient.MedicalRecordNumber,
			patient.DateOfBirth,
			patient.IsPregnant,
			patient.IsNursing,
			patient.EGFR,
			patient.CreatedAt,
			patient.UpdatedAt,
		)
		return err
	})
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `
		SELECT id, name, medical_record_number, date_of_birth,
		       date_part('year', age(date_of_birth))::int AS age_years,
		       is_pregnant, is_nursing, egfr, created_at, updated_at
		FROM patients
		WHERE id = $1
	`
	var patient model.Patient
	err := r.db.GetContext(ctx, &patient, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) List(ctx context.Context, limit, offset int) ([]*model.Patient, error) {
	query := `
		SELECT id, name, medical_record_number, date_of_birth,
		       date_part('year', age(date_of_birth))::int AS age_years,
		       is_pregnant, is_nursing, egfr, created_at, updated_at
		FROM patients
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	var patients []*model.Patient
	if err := r.db.SelectContext(ctx, &patients, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}

func (r *patientRepository) DrugHistory(ctx context.Context, patientID uuid.UUID) ([]*model.DrugHistory, error) {
	query := `
		SELECT id, patient_id, drug_name, dose, frequency, is_active, notes, created_at
		FROM drug_history
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`
	var entries []*model.DrugHistory
	if err := r.db.SelectContext(ctx, &entries, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list drug history: %w", err)
	}
	return entries, nil
}

func (r *patientRepository) Allergies(ctx context.Context, patientID uuid.UUID) ([]*model.Allergy, error) {
	query := `
		SELECT id, patient_id, allergen, allergy_type, severity, symptoms, created_at
		FROM allergies
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`
	var entries []*model.Allergy
	if err := r.db.SelectContext(ctx, &entries, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list allergies: %w", err)
	}
	return entries, nil
}

func (r *patientRepository) AdverseReactions(ctx context.Context, patientID uuid.UUID) ([]*model.AdverseReaction, error) {
	query := `
		SELECT id, patient_id, drug_name, severity, symptoms, created_at
		FROM adverse_reactions
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`
	var entries []*model.AdverseReaction
	if err := r.db.SelectContext(ctx, &entries, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list adverse reactions: %w", err)
	}
	return entries, nil
}

func (r *patientRepository) AddDrugHistory(ctx context.Context, entry *model.DrugHistory) error {
	query := `
		INSERT INTO drug_history (
			id, patient_id, drug_name, dose, frequency, is_active, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.PatientID,
		entry.DrugName,
		entry.Dose,
		entry.Frequency,
		entry.IsActive,
		entry.Notes,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add drug history: %w", err)
	}
	return nil
}

func (r *patientRepository) AddAllergy(ctx context.Context, entry *model.Allergy) error {
	query := `
		INSERT INTO allergies (
			id, patient_id, allergen, allergy_type, severity, symptoms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.PatientID,
		entry.Allergen,
		entry.Type,
		entry.Severity,
		entry.Symptoms,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add allergy: %w", err)
	}
	return nil
}

func (r *patientRepository) AddAdverseReaction(ctx context.Context, entry *model.AdverseReaction) error {
	query := `
		INSERT INTO adverse_reactions (
			id, patient_id, drug_name, severity, symptoms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.PatientID,
		entry.DrugName,
		entry.Severity,
		entry.Symptoms,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add adverse reaction: %w", err)
	}
	return nil
}
