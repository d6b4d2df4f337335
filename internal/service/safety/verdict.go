package safety

import (
	"github.com/rxguard/audit-api/internal/model"
	"github.com/rxguard/audit-api/pkg/metrics"
)

// Aggregate reduces a flag set to one tiered verdict, evaluated in strict
// priority order: any critical flag means red, else any warning means
// yellow, else green. Info flags never affect status. The confidence score
// passes through from extraction unchanged.
func Aggregate(flags []model.SafetyFlag, confidence float64) *model.SafetyVerdict {
	status := model.VerdictGreen
	recommendation := model.RecommendationGreen

	for _, f := range flags {
		switch f.Severity {
		case model.SeverityCritical:
			return &model.SafetyVerdict{
				Status:          model.VerdictRed,
				Flags:           flags,
				Recommendation:  model.RecommendationRed,
				ConfidenceScore: confidence,
			}
		case model.SeverityWarning:
			status = model.VerdictYellow
			recommendation = model.RecommendationYellow
		}
	}

	return &model.SafetyVerdict{
		Status:          status,
		Flags:           flags,
		Recommendation:  recommendation,
		ConfidenceScore: confidence,
	}
}

// AggregateWithMetrics wraps Aggregate and records the verdict status.
func AggregateWithMetrics(flags []model.SafetyFlag, confidence float64, m *metrics.Metrics) *model.SafetyVerdict {
	verdict := Aggregate(flags, confidence)
	if m != nil {
		m.VerdictsTotal.WithLabelValues(string(verdict.Status)).Inc()
	}
	return verdict
}
