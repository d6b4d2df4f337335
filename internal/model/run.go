package model

import (
	"time"

	"github.com/google/uuid"
)

// DialogueRole identifies the speaker of one dialogue turn.
type DialogueRole string

const (
	RoleUser      DialogueRole = "user"
	RoleAssistant DialogueRole = "assistant"
	RoleSystem    DialogueRole = "system"
)

// DialogueTurn is one entry in a run's dialogue history.
type DialogueTurn struct {
	Role    DialogueRole `json:"role"`
	Content string       `json:"content"`
	At      time.Time    `json:"at"`
}

// WorkflowRun is the state threaded through the state machine for one
// session turn. The state machine owns it exclusively; callers see it only
// through the checkpoint contract. Nodes contribute typed patches which the
// orchestrator merges: lists append, scalars replace.
type WorkflowRun struct {
	SessionID string     `json:"session_id"`
	Title     string     `json:"title,omitempty"`
	Intent    Intent     `json:"intent,omitempty"`
	RawText   string     `json:"raw_text,omitempty"`
	HasImage  bool       `json:"has_image,omitempty"`
	HasVoice  bool       `json:"has_voice,omitempty"`
	PatientID *uuid.UUID `json:"patient_id,omitempty"`

	Prescriptions []PrescriptionRecord `json:"prescriptions,omitempty"`
	IsQuery       bool                 `json:"is_query,omitempty"`
	Confidence    float64              `json:"confidence"`

	Snapshot    *PatientSnapshot            `json:"patient_snapshot,omitempty"`
	DrugInfo    map[string]KnowledgeSummary `json:"drug_info_by_name,omitempty"`
	SafetyFlags []SafetyFlag                `json:"safety_flags,omitempty"`
	Verdict     *SafetyVerdict              `json:"verdict,omitempty"`

	PendingAction *SystemAction  `json:"pending_system_action,omitempty"`
	ExternalURL   string         `json:"external_url,omitempty"`
	Dialogue      []DialogueTurn `json:"dialogue_history,omitempty"`
}
