package model

// Intent is the coarse category assigned to one user turn.
type Intent string

const (
	IntentAudit            Intent = "AUDIT"
	IntentClinicalQuery    Intent = "CLINICAL_QUERY"
	IntentMedicalKnowledge Intent = "MEDICAL_KNOWLEDGE"
	IntentSystemAction     Intent = "SYSTEM_ACTION"
	IntentGeneralChat      Intent = "GENERAL_CHAT"
)

func (i Intent) Valid() bool {
	switch i {
	case IntentAudit, IntentClinicalQuery, IntentMedicalKnowledge,
		IntentSystemAction, IntentGeneralChat:
		return true
	}
	return false
}
