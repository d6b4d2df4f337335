// Package snapshot builds the immutable patient view used by one workflow
// run. A snapshot reflects the patient store at a single point in time; it
// is loaded once per run and never re-fetched mid-run.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rxguard/audit-api/internal/model"
	"github.com/rxguard/audit-api/internal/repository"
	apperrors "github.com/rxguard/audit-api/pkg/errors"
)

type Loader interface {
	Load(ctx context.Context, patientID uuid.UUID) (*model.PatientSnapshot, error)
}

type Service struct {
	repo repository.PatientRepository
}

func NewService(repo repository.PatientRepository) *Service {
	return &Service{repo: repo}
}

// Load assembles a read-only snapshot of one patient. Medication history is
// filtered to active entries; allergies and adverse reactions copy over
// verbatim. Results are never cached across runs.
func (s *Service) Load(ctx context.Context, patientID uuid.UUID) (*model.PatientSnapshot, error) {
	patient, err := s.repo.Get(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to load patient: %w", err)
	}

	drugs, err := s.repo.DrugHistory(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load drug history: %w", err)
	}
	allergies, err := s.repo.Allergies(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allergies: %w", err)
	}
	reactions, err := s.repo.AdverseReactions(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load adverse reactions: %w", err)
	}

	snap := &model.PatientSnapshot{
		ID:         patient.ID,
		Name:       patient.Name,
		AgeYears:   patient.AgeYears,
		IsPregnant: patient.IsPregnant,
		IsNursing:  patient.IsNursing,
		EGFR:       patient.EGFR,
		LoadedAt:   time.Now(),
	}

	for _, d := range drugs {
		if !d.IsActive {
			continue
		}
		snap.CurrentDrugs = append(snap.CurrentDrugs, model.SnapshotDrug{
			DrugName:  d.DrugName,
			Dose:      d.Dose,
			Frequency: d.Frequency,
		})
	}
	for _, a := range allergies {
		snap.Allergies = append(snap.Allergies, model.SnapshotAllergy{
			Allergen: a.Allergen,
			Type:     a.Type,
			Severity: a.Severity,
		})
	}
	for _, r := range reactions {
		snap.AdverseReactions = append(snap.AdverseReactions, model.SnapshotReaction{
			DrugName: r.DrugName,
			Symptoms: r.Symptoms,
			Severity: r.Severity,
		})
	}

	return snap, nil
}
