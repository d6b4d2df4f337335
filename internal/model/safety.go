package model

// Severity ranks a safety flag.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Flag categories.
const (
	CategoryAllergy          = "allergy"
	CategoryCrossReactivity  = "cross_reactivity"
	CategoryAdverseReaction  = "adverse_reaction"
	CategoryAdverseHistory   = "adverse_reaction_history"
	CategoryDuplicateTherapy = "duplicate_therapy"
	CategoryBoxedWarning     = "boxed_warning"
	CategoryContraindication = "contraindication"
	CategoryDrugInteraction  = "drug_interaction"
	CategoryWarning          = "warning"
	CategoryRecall           = "recall"
	CategoryPregnancy        = "pregnancy"
	CategoryNursing          = "nursing"
	CategoryPediatric        = "pediatric"
	CategoryGeriatric        = "geriatric"
	CategoryRenalDosing      = "renal_dosing"
	CategoryNormalization    = "normalization"
	CategoryPossibleMismatch = "possible_mismatch"
)

// Flag sources.
const (
	SourcePatientHistory = "Patient History"
	SourceDrugLabel      = "OpenFDA"
	SourceRecallRegistry = "FDA Enforcement"
	SourceNormalizer     = "RxNorm"
	SourceRuleEngine     = "Rule Engine"
)

// SafetyFlag is one atomic safety observation. Flags are append-only facts;
// duplicates are kept because volume itself informs the pharmacist.
type SafetyFlag struct {
	Severity Severity `json:"severity"`
	Category string   `json:"category"`
	Message  string   `json:"message"`
	Source   string   `json:"source"`
	Citation string   `json:"citation,omitempty"`
}

// VerdictStatus is the tiered outcome of an audit pass.
type VerdictStatus string

const (
	VerdictGreen  VerdictStatus = "green"
	VerdictYellow VerdictStatus = "yellow"
	VerdictRed    VerdictStatus = "red"
)

// Fixed recommendation strings, one per status, so the mapping stays stable.
const (
	RecommendationRed    = "DO NOT DISPENSE - Critical safety issues detected"
	RecommendationYellow = "PROCEED WITH CAUTION - Review warnings with patient"
	RecommendationGreen  = "SAFE TO DISPENSE - No safety concerns detected"
)

// SafetyVerdict is derived from a flag set; it is recomputed whenever the
// flag set changes and never stored apart from its flags.
type SafetyVerdict struct {
	Status          VerdictStatus `json:"status"`
	Flags           []SafetyFlag  `json:"flags"`
	Recommendation  string        `json:"recommendation"`
	ConfidenceScore float64       `json:"confidence_score"`
}
