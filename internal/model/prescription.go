package model

// Sentinel values for fields extraction could not determine.
const (
	ValueUnknown       = "unknown"
	ValueNotApplicable = "N/A"
)

// PrescriptionRecord is one structured prescription produced by extraction.
// Immutable once created; a single input may yield zero, one, or many.
type PrescriptionRecord struct {
	DrugName  string `json:"drug_name"`
	Dose      string `json:"dose"`
	Frequency string `json:"frequency"`
	Notes     string `json:"notes,omitempty"`
}

// SystemAction is a tool request discovered during extraction or routing,
// e.g. {action: open_source, drug: Lisinopril}.
type SystemAction struct {
	Action string `json:"action"`
	Drug   string `json:"drug,omitempty"`
}

const (
	ActionOpenSource     = "open_source"
	ActionGenerateReport = "generate_report"
)

// KnowledgeSummary condenses a drug label for the dialogue step, keeping the
// prompt small enough for the generator.
type KnowledgeSummary struct {
	DrugName          string `json:"drug_name"`
	Indications       string `json:"indications,omitempty"`
	Dosage            string `json:"dosage,omitempty"`
	Contraindications string `json:"contraindications,omitempty"`
	BoxedWarning      string `json:"boxed_warning,omitempty"`
	Citation          string `json:"citation,omitempty"`
}
