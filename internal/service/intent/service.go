// Package intent classifies one user turn into a canonical intent. The
// judgment is delegated to the text-classification collaborator; a fixed
// synonym table maps its raw label onto the five intents, and a keyword
// heuristic stands in when the collaborator is unavailable.
package intent

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/rxguard/audit-api/internal/adapter/llm"
	"github.com/rxguard/audit-api/internal/model"
)

const classificationPrompt = `You are a Medical Intent Classifier. Analyze the user's input and classify it into ONE category:

- AUDIT: User wants to process a NEW prescription (via image upload or dictation).
- CLINICAL_QUERY: User is asking a question about the patient's history, allergies, or meds.
- MEDICAL_KNOWLEDGE: User is asking a general medical question (e.g., 'What is the dosage for X?').
- SYSTEM_ACTION: User wants to perform a tool action like 'open source' or 'generate report'.
- GENERAL_CHAT: Anything else.

Return ONLY the category name.`

// synonyms maps collaborator labels, uppercased, onto canonical intents.
// Anything unmapped falls back to GENERAL_CHAT so a turn is never dropped.
var synonyms = map[string]model.Intent{
	"AUDIT":             model.IntentAudit,
	"PRESCRIPTION":      model.IntentAudit,
	"NEW PRESCRIPTION":  model.IntentAudit,
	"RX":                model.IntentAudit,
	"CLINICAL_QUERY":    model.IntentClinicalQuery,
	"CLINICAL QUERY":    model.IntentClinicalQuery,
	"QUERY":             model.IntentClinicalQuery,
	"PATIENT HISTORY":   model.IntentClinicalQuery,
	"MEDICAL_KNOWLEDGE": model.IntentMedicalKnowledge,
	"MEDICAL KNOWLEDGE": model.IntentMedicalKnowledge,
	"KNOWLEDGE":         model.IntentMedicalKnowledge,
	"DRUG INFO":         model.IntentMedicalKnowledge,
	"SYSTEM_ACTION":     model.IntentSystemAction,
	"SYSTEM ACTION":     model.IntentSystemAction,
	"ACTION":            model.IntentSystemAction,
	"TOOL":              model.IntentSystemAction,
	"GENERAL_CHAT":      model.IntentGeneralChat,
	"GENERAL CHAT":      model.IntentGeneralChat,
	"CHAT":              model.IntentGeneralChat,
	"GENERAL":           model.IntentGeneralChat,
}

type Router struct {
	classifier llm.Classifier
}

func NewRouter(classifier llm.Classifier) *Router {
	return &Router{classifier: classifier}
}

// Classify returns the canonical intent for one turn. Collaborator failure
// degrades to the local keyword heuristic; it never aborts the run.
func (r *Router) Classify(ctx context.Context, text string, hasImage bool) model.Intent {
	raw, err := r.classifier.ClassifyIntent(ctx, text, hasImage, classificationPrompt)
	if err != nil {
		log.Warn().Err(err).Msg("intent classifier unavailable, using keyword fallback")
		return Fallback(text)
	}
	return Normalize(raw)
}

// Normalize maps a raw collaborator label onto a canonical intent.
func Normalize(raw string) model.Intent {
	label := strings.ToUpper(strings.TrimSpace(raw))
	// Models sometimes answer "Intent: AUDIT" or similar prose.
	if i := strings.LastIndex(label, ":"); i >= 0 {
		label = strings.TrimSpace(label[i+1:])
	}
	label = strings.Trim(label, `."'`)

	if intent, ok := synonyms[label]; ok {
		return intent
	}
	for key, intent := range synonyms {
		if strings.Contains(label, key) {
			return intent
		}
	}
	return model.IntentGeneralChat
}

// Fallback is the degraded-mode keyword policy used when the classifier is
// unreachable. It intentionally stays coarse: the classifier's confidence,
// not keyword priority, is what resolves ambiguous turns on the primary
// path.
func Fallback(text string) model.Intent {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "open") || strings.Contains(t, "show"):
		return model.IntentSystemAction
	case strings.Contains(t, "check") || strings.Contains(t, "allergic") || strings.Contains(t, "allergy"):
		return model.IntentClinicalQuery
	case strings.Contains(t, "dosage") || strings.Contains(t, "what is"):
		return model.IntentMedicalKnowledge
	default:
		return model.IntentAudit
	}
}
