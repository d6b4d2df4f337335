package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/rxguard/audit-api/internal/model"
)

// State identifies one node of the workflow graph.
type State string

const (
	StateRoute          State = "route"
	StateTextExtract    State = "text_extract"
	StateImageExtract   State = "image_extract"
	StateVoiceExtract   State = "voice_extract"
	StatePatientFetch   State = "patient_fetch"
	StateKnowledgeFetch State = "knowledge_fetch"
	StateAction         State = "action"
	StateAuditor        State = "auditor"
	StateRuleEngine     State = "rule_engine"
	StateVerdict        State = "verdict"
	StateDialogue       State = "dialogue"
	StateTerminal       State = "terminal"
)

// Status is the lifecycle phase of a checkpointed run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
)

// Checkpoint is the durable record of one run. It is written at every step
// boundary so a suspended run holds no in-process resources and can be
// reconstructed purely from storage.
type Checkpoint struct {
	SessionID   string            `json:"session_id"`
	State       State             `json:"state"`
	Status      Status            `json:"status"`
	Interrupted bool              `json:"interrupted"`
	Run         model.WorkflowRun `json:"run"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Patch is the typed partial-state update a node returns. The orchestrator
// merges it into the run with fixed rules: list fields append, scalar fields
// replace when set. Nodes never touch each other's scratch state.
type Patch struct {
	Intent        *model.Intent
	Prescriptions []model.PrescriptionRecord
	IsQuery       *bool
	Confidence    *float64
	PatientID     *uuid.UUID
	Snapshot      *model.PatientSnapshot
	DrugInfo      map[string]model.KnowledgeSummary
	Flags         []model.SafetyFlag
	Verdict       *model.SafetyVerdict
	PendingAction *model.SystemAction
	ClearPending  bool
	ExternalURL   *string
	Title         *string
	Dialogue      []model.DialogueTurn
}

// apply merges a patch into the run.
func apply(run *model.WorkflowRun, p Patch) {
	if p.Intent != nil {
		run.Intent = *p.Intent
	}
	if p.Prescriptions != nil {
		run.Prescriptions = p.Prescriptions
	}
	if p.IsQuery != nil {
		run.IsQuery = *p.IsQuery
	}
	if p.Confidence != nil {
		run.Confidence = *p.Confidence
	}
	if p.PatientID != nil {
		run.PatientID = p.PatientID
	}
	if p.Snapshot != nil {
		run.Snapshot = p.Snapshot
	}
	if len(p.DrugInfo) > 0 {
		if run.DrugInfo == nil {
			run.DrugInfo = make(map[string]model.KnowledgeSummary, len(p.DrugInfo))
		}
		for k, v := range p.DrugInfo {
			run.DrugInfo[k] = v
		}
	}
	if len(p.Flags) > 0 {
		run.SafetyFlags = append(run.SafetyFlags, p.Flags...)
	}
	if p.Verdict != nil {
		run.Verdict = p.Verdict
	}
	if p.PendingAction != nil {
		run.PendingAction = p.PendingAction
	}
	if p.ClearPending {
		run.PendingAction = nil
	}
	if p.ExternalURL != nil {
		run.ExternalURL = *p.ExternalURL
	}
	if p.Title != nil {
		run.Title = *p.Title
	}
	if len(p.Dialogue) > 0 {
		run.Dialogue = append(run.Dialogue, p.Dialogue...)
	}
}

func intentPtr(i model.Intent) *model.Intent { return &i }
func boolPtr(b bool) *bool                   { return &b }
func floatPtr(f float64) *float64            { return &f }
func strPtr(s string) *string                { return &s }
