package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rxguard/audit-api/internal/model"
)

type fakeClassifier struct {
	label string
	err   error
}

func (f *fakeClassifier) ClassifyIntent(ctx context.Context, text string, hasImage bool, prompt string) (string, error) {
	return f.label, f.err
}

func TestNormalizeCanonicalLabels(t *testing.T) {
	tests := map[string]model.Intent{
		"AUDIT":             model.IntentAudit,
		"CLINICAL_QUERY":    model.IntentClinicalQuery,
		"MEDICAL_KNOWLEDGE": model.IntentMedicalKnowledge,
		"SYSTEM_ACTION":     model.IntentSystemAction,
		"GENERAL_CHAT":      model.IntentGeneralChat,
	}
	for raw, want := range tests {
		assert.Equal(t, want, Normalize(raw), raw)
	}
}

func TestNormalizeToleratesModelProse(t *testing.T) {
	assert.Equal(t, model.IntentAudit, Normalize("Intent: AUDIT"))
	assert.Equal(t, model.IntentAudit, Normalize("  audit  "))
	assert.Equal(t, model.IntentAudit, Normalize(`"AUDIT".`))
	assert.Equal(t, model.IntentClinicalQuery, Normalize("The category is: CLINICAL QUERY"))
	assert.Equal(t, model.IntentMedicalKnowledge, Normalize("drug info"))
}

func TestNormalizeUnknownLabelIsGeneralChat(t *testing.T) {
	assert.Equal(t, model.IntentGeneralChat, Normalize("SOMETHING_ELSE"))
	assert.Equal(t, model.IntentGeneralChat, Normalize(""))
}

func TestClassifyUsesCollaboratorLabel(t *testing.T) {
	r := NewRouter(&fakeClassifier{label: "AUDIT"})
	got := r.Classify(context.Background(), "Lisinopril 10mg once daily", false)
	assert.Equal(t, model.IntentAudit, got)
}

func TestClassifyFallsBackOnError(t *testing.T) {
	r := NewRouter(&fakeClassifier{err: errors.New("unreachable")})

	tests := []struct {
		text string
		want model.Intent
	}{
		{"open the source for warfarin", model.IntentSystemAction},
		{"is the patient allergic to penicillin", model.IntentClinicalQuery},
		{"what is the dosage for amoxicillin", model.IntentMedicalKnowledge},
		{"Lisinopril 10mg once daily", model.IntentAudit},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, r.Classify(context.Background(), tc.text, false), tc.text)
	}
}
