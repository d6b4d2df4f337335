package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rxguard/audit-api/internal/model"
)

func TestAggregateEmptyIsGreen(t *testing.T) {
	v := Aggregate(nil, 1.0)
	assert.Equal(t, model.VerdictGreen, v.Status)
	assert.Equal(t, model.RecommendationGreen, v.Recommendation)
	assert.Empty(t, v.Flags)
	assert.Equal(t, 1.0, v.ConfidenceScore)
}

func TestAggregateInfoOnlyStaysGreen(t *testing.T) {
	flags := []model.SafetyFlag{
		{Severity: model.SeverityInfo, Category: model.CategoryNormalization},
		{Severity: model.SeverityInfo, Category: model.CategoryAdverseReaction},
	}
	v := Aggregate(flags, 0.9)
	assert.Equal(t, model.VerdictGreen, v.Status)
	assert.Len(t, v.Flags, 2)
}

func TestAggregateWarningMeansYellow(t *testing.T) {
	flags := []model.SafetyFlag{
		{Severity: model.SeverityInfo},
		{Severity: model.SeverityWarning, Category: model.CategoryDuplicateTherapy},
	}
	v := Aggregate(flags, 0.85)
	assert.Equal(t, model.VerdictYellow, v.Status)
	assert.Equal(t, model.RecommendationYellow, v.Recommendation)
}

func TestAggregateCriticalWinsOverEverything(t *testing.T) {
	flags := []model.SafetyFlag{
		{Severity: model.SeverityInfo},
		{Severity: model.SeverityWarning},
		{Severity: model.SeverityCritical, Category: model.CategoryAllergy},
		{Severity: model.SeverityWarning},
	}
	v := Aggregate(flags, 1.0)
	assert.Equal(t, model.VerdictRed, v.Status)
	assert.Equal(t, model.RecommendationRed, v.Recommendation)
	// All flags are preserved regardless of which one decided the status.
	assert.Len(t, v.Flags, 4)
}

func TestAggregateConfidencePassesThrough(t *testing.T) {
	for _, score := range []float64{0.40, 0.75, 0.85, 0.90, 1.0} {
		v := Aggregate([]model.SafetyFlag{{Severity: model.SeverityCritical}}, score)
		assert.Equal(t, score, v.ConfidenceScore)
	}
}
