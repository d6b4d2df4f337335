package snapshot

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxguard/audit-api/internal/model"
	"github.com/rxguard/audit-api/internal/repository"
	apperrors "github.com/rxguard/audit-api/pkg/errors"
)

type fakePatientRepo struct {
	patient   *model.Patient
	drugs     []*model.DrugHistory
	allergies []*model.Allergy
	reactions []*model.AdverseReaction
	getErr    error
}

func (f *fakePatientRepo) Create(ctx context.Context, p *model.Patient) error { return nil }

func (f *fakePatientRepo) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.patient, nil
}

func (f *fakePatientRepo) List(ctx context.Context, limit, offset int) ([]*model.Patient, error) {
	return nil, nil
}

func (f *fakePatientRepo) DrugHistory(ctx context.Context, id uuid.UUID) ([]*model.DrugHistory, error) {
	return f.drugs, nil
}

func (f *fakePatientRepo) Allergies(ctx context.Context, id uuid.UUID) ([]*model.Allergy, error) {
	return f.allergies, nil
}

func (f *fakePatientRepo) AdverseReactions(ctx context.Context, id uuid.UUID) ([]*model.AdverseReaction, error) {
	return f.reactions, nil
}

func (f *fakePatientRepo) AddDrugHistory(ctx context.Context, e *model.DrugHistory) error { return nil }
func (f *fakePatientRepo) AddAllergy(ctx context.Context, e *model.Allergy) error         { return nil }
func (f *fakePatientRepo) AddAdverseReaction(ctx context.Context, e *model.AdverseReaction) error {
	return nil
}

func TestLoadFiltersInactiveDrugs(t *testing.T) {
	egfr := 45.0
	repo := &fakePatientRepo{
		patient: &model.Patient{
			ID: uuid.New(), Name: "Jane Roe", AgeYears: 70,
			IsPregnant: false, EGFR: &egfr,
		},
		drugs: []*model.DrugHistory{
			{DrugName: "Metformin", Dose: "500mg", Frequency: "twice daily", IsActive: true},
			{DrugName: "Amoxicillin", Dose: "250mg", Frequency: "three times daily", IsActive: false},
		},
		allergies: []*model.Allergy{
			{Allergen: "Penicillin", Type: model.AllergyTypeDrug, Severity: model.ReactionSevere},
		},
		reactions: []*model.AdverseReaction{
			{DrugName: "Lisinopril", Symptoms: "cough", Severity: model.ReactionMild},
		},
	}
	s := NewService(repo)

	snap, err := s.Load(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.Equal(t, "Jane Roe", snap.Name)
	assert.Equal(t, 70, snap.AgeYears)
	require.NotNil(t, snap.EGFR)
	assert.Equal(t, 45.0, *snap.EGFR)

	// Only active medications make it into the snapshot.
	require.Len(t, snap.CurrentDrugs, 1)
	assert.Equal(t, "Metformin", snap.CurrentDrugs[0].DrugName)

	require.Len(t, snap.Allergies, 1)
	assert.Equal(t, "Penicillin", snap.Allergies[0].Allergen)
	require.Len(t, snap.AdverseReactions, 1)
	assert.Equal(t, "cough", snap.AdverseReactions[0].Symptoms)
	assert.False(t, snap.LoadedAt.IsZero())
}

func TestLoadUnknownPatient(t *testing.T) {
	s := NewService(&fakePatientRepo{getErr: repository.ErrNotFound})

	_, err := s.Load(context.Background(), uuid.New())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}
