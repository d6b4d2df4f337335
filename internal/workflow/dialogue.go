package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/rxguard/audit-api/internal/model"
)

// System prompts are conditioned on intent so the assistant answers from
// the state the run accumulated, not from open-ended generation.
const (
	promptAudit = `You are a clinical pharmacy assistant. A prescription audit just
completed. Summarize the verdict and every safety flag for the pharmacist in
plain language. Do not soften critical findings. Do not invent findings that
are not in the provided state.`

	promptClinicalQuery = `You are a clinical pharmacy assistant. Answer the
pharmacist's question using ONLY the patient snapshot and safety flags in the
provided state. If the state does not contain the answer, say so.`

	promptKnowledge = `You are a clinical pharmacy assistant. Answer using ONLY
the official drug label excerpts in the provided state, and cite the source
link. If no label data is present, say none was found.`

	promptGeneral = `You are a clinical pharmacy assistant for a prescription
audit system. Keep answers short and professional. If the user seems to want
an audit, ask them to provide the prescription.`
)

func (m *Machine) generateReply(ctx context.Context, run *model.WorkflowRun) string {
	if m.dialogue == nil {
		return m.cannedReply(run)
	}

	system := promptGeneral
	switch run.Intent {
	case model.IntentAudit:
		system = promptAudit
	case model.IntentClinicalQuery:
		system = promptClinicalQuery
	case model.IntentMedicalKnowledge:
		system = promptKnowledge
	}
	system += "\n\nCurrent state:\n" + renderState(run)

	query := run.RawText
	if query == "" {
		query = "Summarize the result of this turn."
	}

	var history []string
	for _, turn := range run.Dialogue {
		history = append(history, string(turn.Role)+": "+turn.Content)
	}

	reply, err := m.dialogue.Chat(ctx, system, query, history)
	if err != nil || strings.TrimSpace(reply) == "" {
		m.log.WithSession(run.SessionID).Warn("dialogue generation failed, using canned reply")
		return m.cannedReply(run)
	}
	return reply
}

// cannedReply is the degraded-mode answer built purely from run state. The
// verdict and flags must still reach the pharmacist when the collaborator
// is down.
func (m *Machine) cannedReply(run *model.WorkflowRun) string {
	var b strings.Builder

	if run.Verdict != nil {
		fmt.Fprintf(&b, "Audit verdict: %s. %s\n", strings.ToUpper(string(run.Verdict.Status)), run.Verdict.Recommendation)
		for _, f := range run.SafetyFlags {
			fmt.Fprintf(&b, "- [%s] %s: %s (%s)\n", f.Severity, f.Category, f.Message, f.Source)
		}
		return strings.TrimRight(b.String(), "\n")
	}

	if len(run.DrugInfo) > 0 {
		for name, info := range run.DrugInfo {
			fmt.Fprintf(&b, "%s\n", name)
			if info.Indications != "" {
				fmt.Fprintf(&b, "Indications: %s\n", info.Indications)
			}
			if info.Dosage != "" {
				fmt.Fprintf(&b, "Dosage: %s\n", info.Dosage)
			}
			if info.BoxedWarning != "" {
				fmt.Fprintf(&b, "BOXED WARNING: %s\n", info.BoxedWarning)
			}
			fmt.Fprintf(&b, "Source: %s\n", info.Citation)
		}
		return strings.TrimRight(b.String(), "\n")
	}

	if run.Snapshot != nil {
		snap := run.Snapshot
		fmt.Fprintf(&b, "Patient %s: %d active medications, %d recorded allergies.",
			snap.Name, len(snap.CurrentDrugs), len(snap.Allergies))
		return b.String()
	}

	return "I can audit prescriptions, answer patient safety questions, and look up drug information. How can I help?"
}

// renderState serializes the run fields the prompts reference. Kept compact
// so it fits inside a single completion context.
func renderState(run *model.WorkflowRun) string {
	var b strings.Builder

	if run.Verdict != nil {
		fmt.Fprintf(&b, "Verdict: %s (%s)\n", run.Verdict.Status, run.Verdict.Recommendation)
	}
	for _, f := range run.SafetyFlags {
		fmt.Fprintf(&b, "Flag [%s/%s] %s: %s\n", f.Severity, f.Category, f.Source, f.Message)
	}
	for _, p := range run.Prescriptions {
		fmt.Fprintf(&b, "Prescription: %s %s %s\n", p.DrugName, p.Dose, p.Frequency)
	}
	if snap := run.Snapshot; snap != nil {
		fmt.Fprintf(&b, "Patient: %s, age %d", snap.Name, snap.AgeYears)
		if snap.EGFR != nil {
			fmt.Fprintf(&b, ", eGFR %.0f", *snap.EGFR)
		}
		b.WriteString("\n")
		for _, d := range snap.CurrentDrugs {
			fmt.Fprintf(&b, "Current drug: %s %s\n", d.DrugName, d.Dose)
		}
		for _, a := range snap.Allergies {
			fmt.Fprintf(&b, "Allergy: %s (%s)\n", a.Allergen, a.Severity)
		}
	}
	for name, info := range run.DrugInfo {
		fmt.Fprintf(&b, "Label for %s:\nIndications: %s\nDosage: %s\n", name, info.Indications, info.Dosage)
		if info.Contraindications != "" {
			fmt.Fprintf(&b, "Contraindications: %s\n", info.Contraindications)
		}
		if info.BoxedWarning != "" {
			fmt.Fprintf(&b, "Boxed warning: %s\n", info.BoxedWarning)
		}
		fmt.Fprintf(&b, "Citation: %s\n", info.Citation)
	}

	if b.Len() == 0 {
		return "(empty)"
	}
	return b.String()
}
