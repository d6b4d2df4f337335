package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/rxguard/audit-api/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("repository: not found")

type PatientRepository interface {
	Create(ctx context.Context, patient *model.Patient) error
	Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	List(ctx context.Context, limit, offset int) ([]*model.Patient, error)

	DrugHistory(ctx context.Context, patientID uuid.UUID) ([]*model.DrugHistory, error)
	Allergies(ctx context.Context, patientID uuid.UUID) ([]*model.Allergy, error)
	AdverseReactions(ctx context.Context, patientID uuid.UUID) ([]*model.AdverseReaction, error)

	AddDrugHistory(ctx context.Context, entry *model.DrugHistory) error
	AddAllergy(ctx context.Context, entry *model.Allergy) error
	AddAdverseReaction(ctx context.Context, entry *model.AdverseReaction) error
}

type AuditRepository interface {
	Create(ctx context.Context, entry *model.AuditLog) error
	ListBySession(ctx context.Context, sessionID string) ([]*model.AuditLog, error)
}
