// Package safety runs the multi-source rule battery against a patient
// snapshot and reduces the resulting flags to a tiered verdict.
//
// Every check is independent: an external call failing yields zero flags
// from that check and never aborts the rest of the run. Flags accumulate in
// the order checks run, and that order is stable for a given drug and
// snapshot.
package safety

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/rxguard/audit-api/internal/adapter/openfda"
	"github.com/rxguard/audit-api/internal/adapter/rxnorm"
	"github.com/rxguard/audit-api/internal/model"
	"github.com/rxguard/audit-api/pkg/metrics"
)

// LabelSource resolves a drug's reference label data.
type LabelSource interface {
	GetLabel(ctx context.Context, name string) (*openfda.LabelResult, error)
}

// RecallSource looks up active enforcement reports for a product.
type RecallSource interface {
	Recalls(ctx context.Context, product string) ([]openfda.RecallRecord, error)
}

// Normalizer resolves a free-text drug name to a canonical concept.
type Normalizer interface {
	Normalize(ctx context.Context, name string) (*rxnorm.Normalization, error)
}

// Renal thresholds (mL/min/1.73m2).
const (
	egfrCritical = 30.0
	egfrWarning  = 60.0
)

const geriatricAge = 65
const pediatricAge = 18

type Engine struct {
	labels     LabelSource
	recalls    RecallSource
	normalizer Normalizer
	metrics    *metrics.Metrics
}

func NewEngine(labels LabelSource, recalls RecallSource, normalizer Normalizer, m *metrics.Metrics) *Engine {
	return &Engine{labels: labels, recalls: recalls, normalizer: normalizer, metrics: m}
}

// Evaluate runs the full battery: history cross-reference first, then the
// per-drug external checks in request order.
func (e *Engine) Evaluate(ctx context.Context, drugs []model.PrescriptionRecord, snap *model.PatientSnapshot) []model.SafetyFlag {
	flags := e.EvaluateHistory(drugs, snap)
	for _, d := range drugs {
		flags = append(flags, e.EvaluateDrug(ctx, d, snap)...)
	}
	return flags
}

// EvaluateHistory cross-references the extracted drugs against the patient's
// own record: allergies (direct and class cross-reactivity), prior adverse
// reactions, duplicates against active medications, and duplicates within
// the request itself.
func (e *Engine) EvaluateHistory(drugs []model.PrescriptionRecord, snap *model.PatientSnapshot) []model.SafetyFlag {
	if snap == nil {
		return nil
	}

	var flags []model.SafetyFlag
	for _, drug := range drugs {
		flags = append(flags, e.checkAllergies(drug.DrugName, snap)...)
		flags = append(flags, e.checkAdverseHistory(drug.DrugName, snap)...)
		flags = append(flags, e.checkActiveDuplicates(drug.DrugName, snap)...)
	}

	// In-request duplicates: each unordered pair flagged exactly once, the
	// lower index against the higher.
	for i := 0; i < len(drugs); i++ {
		for j := i + 1; j < len(drugs); j++ {
			if namesOverlap(drugs[i].DrugName, drugs[j].DrugName) {
				flags = append(flags, e.flag(model.SafetyFlag{
					Severity: model.SeverityWarning,
					Category: model.CategoryDuplicateTherapy,
					Message:  fmt.Sprintf("Request contains %s and %s, which appear to duplicate each other", drugs[i].DrugName, drugs[j].DrugName),
					Source:   model.SourceRuleEngine,
				}))
			}
		}
	}
	return flags
}

func (e *Engine) checkAllergies(drugName string, snap *model.PatientSnapshot) []model.SafetyFlag {
	var flags []model.SafetyFlag
	for _, allergy := range snap.Allergies {
		if namesOverlap(allergy.Allergen, drugName) {
			flags = append(flags, e.flag(model.SafetyFlag{
				Severity: model.SeverityCritical,
				Category: model.CategoryAllergy,
				Message:  fmt.Sprintf("Patient is allergic to %s (%s)", allergy.Allergen, allergy.Severity),
				Source:   model.SourcePatientHistory,
			}))
			continue
		}
		if class, ok := crossReactive(allergy.Allergen, drugName); ok {
			flags = append(flags, e.flag(model.SafetyFlag{
				Severity: model.SeverityWarning,
				Category: model.CategoryCrossReactivity,
				Message:  fmt.Sprintf("%s may cross-react with documented %s allergy (%s)", drugName, allergy.Allergen, class),
				Source:   model.SourcePatientHistory,
			}))
		}
	}
	return flags
}

func (e *Engine) checkAdverseHistory(drugName string, snap *model.PatientSnapshot) []model.SafetyFlag {
	var flags []model.SafetyFlag
	for _, r := range snap.AdverseReactions {
		if namesOverlap(r.DrugName, drugName) {
			flags = append(flags, e.flag(model.SafetyFlag{
				Severity: model.SeverityWarning,
				Category: model.CategoryAdverseHistory,
				Message:  fmt.Sprintf("Patient had a %s reaction to %s: %s", r.Severity, r.DrugName, r.Symptoms),
				Source:   model.SourcePatientHistory,
			}))
		}
	}
	return flags
}

func (e *Engine) checkActiveDuplicates(drugName string, snap *model.PatientSnapshot) []model.SafetyFlag {
	var flags []model.SafetyFlag
	for _, current := range snap.CurrentDrugs {
		if namesOverlap(current.DrugName, drugName) {
			flags = append(flags, e.flag(model.SafetyFlag{
				Severity: model.SeverityWarning,
				Category: model.CategoryDuplicateTherapy,
				Message:  fmt.Sprintf("Patient is already taking %s %s %s", current.DrugName, current.Dose, current.Frequency),
				Source:   model.SourcePatientHistory,
			}))
		}
	}
	return flags
}

// EvaluateDrug runs the external reference checks for one drug: name
// normalization, label fetch with mismatch detection, the label-derived
// checks, the recall lookup, and the snapshot-conditioned checks.
func (e *Engine) EvaluateDrug(ctx context.Context, drug model.PrescriptionRecord, snap *model.PatientSnapshot) []model.SafetyFlag {
	var flags []model.SafetyFlag

	// Step 1: normalization. Failure never blocks; continue with the raw
	// name.
	checkName := drug.DrugName
	if e.normalizer != nil {
		if norm, err := e.normalizer.Normalize(ctx, drug.DrugName); err == nil && norm != nil {
			if norm.PreferredName != "" {
				checkName = norm.PreferredName
			}
			flags = append(flags, e.flag(model.SafetyFlag{
				Severity: model.SeverityInfo,
				Category: model.CategoryNormalization,
				Message:  fmt.Sprintf("Drug normalized to '%s' (RxCUI %s)", checkName, norm.RxCUI),
				Source:   model.SourceNormalizer,
				Citation: norm.Citation(),
			}))
		} else if err != nil {
			log.Debug().Err(err).Str("drug", drug.DrugName).Msg("normalization unavailable")
		}
	}

	// The history pass matched allergens against the query name only. A
	// resolved canonical name can expose an allergy the raw name hides,
	// as with a brand prescription against a generic-name allergen.
	// Allergens the query name already matched are skipped so one allergy
	// never yields two flags.
	if snap != nil && !strings.EqualFold(checkName, drug.DrugName) {
		for _, allergy := range snap.Allergies {
			if namesOverlap(allergy.Allergen, drug.DrugName) {
				continue
			}
			if namesOverlap(allergy.Allergen, checkName) {
				flags = append(flags, e.flag(model.SafetyFlag{
					Severity: model.SeverityCritical,
					Category: model.CategoryAllergy,
					Message:  fmt.Sprintf("Patient is allergic to %s (%s)", allergy.Allergen, allergy.Severity),
					Source:   model.SourcePatientHistory,
				}))
			}
		}
	}

	// Step 2: label fetch. A missing label skips the label-derived checks
	// but the remaining checks still run.
	var result *openfda.LabelResult
	if e.labels != nil {
		var err error
		result, err = e.labels.GetLabel(ctx, checkName)
		if err != nil && err != openfda.ErrNotFound {
			log.Warn().Err(err).Str("drug", checkName).Msg("label lookup failed")
		}
	}

	if result != nil {
		flags = append(flags, e.labelFlags(checkName, result)...)
		flags = append(flags, e.conditionalFlags(checkName, result, snap)...)
	}

	// Recall check is independent of the label fetch.
	flags = append(flags, e.checkRecalls(ctx, checkName)...)

	return flags
}

func (e *Engine) labelFlags(name string, result *openfda.LabelResult) []model.SafetyFlag {
	label := result.Label
	citation := label.Citation()
	var flags []model.SafetyFlag

	if result.Indirect {
		severity := model.SeverityInfo
		if result.Match == openfda.MatchGlobal {
			severity = model.SeverityWarning
		}
		flags = append(flags, e.flag(model.SafetyFlag{
			Severity: severity,
			Category: model.CategoryPossibleMismatch,
			Message:  fmt.Sprintf("Label match for '%s' is indirect (found %s / %s via %s search); verify before relying on it", name, label.BrandName, label.GenericName, result.Match),
			Source:   model.SourceDrugLabel,
			Citation: citation,
		}))
	}

	if label.BoxedWarning != "" {
		flags = append(flags, e.flag(model.SafetyFlag{
			Severity: model.SeverityCritical,
			Category: model.CategoryBoxedWarning,
			Message:  "BLACK BOX WARNING: " + truncate(label.BoxedWarning),
			Source:   model.SourceDrugLabel,
			Citation: citation,
		}))
	}
	if label.Contraindications != "" {
		flags = append(flags, e.flag(model.SafetyFlag{
			Severity: model.SeverityCritical,
			Category: model.CategoryContraindication,
			Message:  "CONTRAINDICATION: " + truncate(label.Contraindications),
			Source:   model.SourceDrugLabel,
			Citation: citation,
		}))
	}
	if label.DrugInteractions != "" {
		flags = append(flags, e.flag(model.SafetyFlag{
			Severity: model.SeverityWarning,
			Category: model.CategoryDrugInteraction,
			Message:  "DRUG INTERACTIONS: " + truncate(label.DrugInteractions),
			Source:   model.SourceDrugLabel,
			Citation: citation,
		}))
	}
	if label.AdverseReactions != "" {
		flags = append(flags, e.flag(model.SafetyFlag{
			Severity: model.SeverityInfo,
			Category: model.CategoryAdverseReaction,
			Message:  "ADVERSE REACTIONS: " + truncate(label.AdverseReactions),
			Source:   model.SourceDrugLabel,
			Citation: citation,
		}))
	}
	if label.Warnings != "" {
		flags = append(flags, e.flag(model.SafetyFlag{
			Severity: model.SeverityWarning,
			Category: model.CategoryWarning,
			Message:  "WARNINGS: " + truncate(label.Warnings),
			Source:   model.SourceDrugLabel,
			Citation: citation,
		}))
	}
	return flags
}

func (e *Engine) conditionalFlags(name string, result *openfda.LabelResult, snap *model.PatientSnapshot) []model.SafetyFlag {
	if snap == nil {
		return nil
	}
	label := result.Label
	citation := label.Citation()
	var flags []model.SafetyFlag

	if snap.IsPregnant && label.Pregnancy != "" {
		severity := model.SeverityWarning
		if pregnancyContraindicated(label.Pregnancy) {
			severity = model.SeverityCritical
		}
		flags = append(flags, e.flag(model.SafetyFlag{
			Severity: severity,
			Category: model.CategoryPregnancy,
			Message:  "PREGNANCY: " + truncate(label.Pregnancy),
			Source:   model.SourceDrugLabel,
			Citation: citation,
		}))
	}

	if snap.IsNursing && label.NursingMothers != "" {
		flags = append(flags, e.flag(model.SafetyFlag{
			Severity: model.SeverityWarning,
			Category: model.CategoryNursing,
			Message:  "NURSING: " + truncate(label.NursingMothers),
			Source:   model.SourceDrugLabel,
			Citation: citation,
		}))
	}

	if snap.AgeYears > 0 && snap.AgeYears < pediatricAge && label.PediatricUse != "" {
		lower := strings.ToLower(label.PediatricUse)
		switch {
		case strings.Contains(lower, "not established"):
			flags = append(flags, e.flag(model.SafetyFlag{
				Severity: model.SeverityWarning,
				Category: model.CategoryPediatric,
				Message:  "PEDIATRIC: safety not established - " + truncate(label.PediatricUse),
				Source:   model.SourceDrugLabel,
				Citation: citation,
			}))
		case strings.Contains(lower, "weight") || strings.Contains(lower, "mg/kg"):
			flags = append(flags, e.flag(model.SafetyFlag{
				Severity: model.SeverityInfo,
				Category: model.CategoryPediatric,
				Message:  "PEDIATRIC: weight-based dosing - " + truncate(label.PediatricUse),
				Source:   model.SourceDrugLabel,
				Citation: citation,
			}))
		}
	}

	if snap.AgeYears >= geriatricAge && label.GeriatricUse != "" {
		severity := model.SeverityInfo
		lower := strings.ToLower(label.GeriatricUse)
		if strings.Contains(lower, "dose") || strings.Contains(lower, "caution") || strings.Contains(lower, "reduc") {
			severity = model.SeverityWarning
		}
		flags = append(flags, e.flag(model.SafetyFlag{
			Severity: severity,
			Category: model.CategoryGeriatric,
			Message:  "GERIATRIC: " + truncate(label.GeriatricUse),
			Source:   model.SourceDrugLabel,
			Citation: citation,
		}))
	}

	if snap.EGFR != nil && *snap.EGFR < egfrWarning && labelMentionsRenal(label) {
		severity := model.SeverityWarning
		if *snap.EGFR < egfrCritical {
			severity = model.SeverityCritical
		}
		flags = append(flags, e.flag(model.SafetyFlag{
			Severity: severity,
			Category: model.CategoryRenalDosing,
			Message:  fmt.Sprintf("RENAL: patient eGFR %.0f and %s label references renal dosing considerations", *snap.EGFR, name),
			Source:   model.SourceDrugLabel,
			Citation: citation,
		}))
	}

	return flags
}

func (e *Engine) checkRecalls(ctx context.Context, name string) []model.SafetyFlag {
	if e.recalls == nil {
		return nil
	}
	recalls, err := e.recalls.Recalls(ctx, name)
	if err != nil {
		log.Warn().Err(err).Str("drug", name).Msg("recall lookup failed")
		return nil
	}
	var flags []model.SafetyFlag
	for _, r := range recalls {
		flags = append(flags, e.flag(model.SafetyFlag{
			Severity: model.SeverityCritical,
			Category: model.CategoryRecall,
			Message:  fmt.Sprintf("ACTIVE RECALL (%s, %s): %s", r.Classification, r.Status, truncate(r.Reason)),
			Source:   model.SourceRecallRegistry,
		}))
	}
	return flags
}

func (e *Engine) flag(f model.SafetyFlag) model.SafetyFlag {
	if e.metrics != nil {
		e.metrics.FlagsEmitted.WithLabelValues(string(f.Severity)).Inc()
	}
	return f
}

var pregnancyDanger = []string{
	"contraindicated", "should not be used", "do not use", "category x",
}

func pregnancyContraindicated(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range pregnancyDanger {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var renalTerms = []string{"renal", "kidney", "creatinine"}

func labelMentionsRenal(label *openfda.LabelRecord) bool {
	text := strings.ToLower(label.Warnings + " " + label.Contraindications + " " +
		label.DosageAndAdministration + " " + label.AdverseReactions)
	for _, term := range renalTerms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

// namesOverlap is a case-insensitive substring match in either direction,
// so "Metformin" matches "Metformin ER" and vice versa.
func namesOverlap(a, b string) bool {
	la, lb := strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if la == "" || lb == "" {
		return false
	}
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

const maxMessage = 200

func truncate(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxMessage {
		return s
	}
	return string(r[:maxMessage]) + "..."
}
