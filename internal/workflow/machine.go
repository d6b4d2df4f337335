// Package workflow wires the engine's services into a directed graph with
// conditional edges, owns the pause/resume contract, and persists run state
// by session identifier at every step boundary.
package workflow

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/rxguard/audit-api/internal/adapter/llm"
	"github.com/rxguard/audit-api/internal/adapter/openfda"
	"github.com/rxguard/audit-api/internal/model"
	"github.com/rxguard/audit-api/internal/service/audit"
	"github.com/rxguard/audit-api/internal/service/extract"
	apperrors "github.com/rxguard/audit-api/pkg/errors"
	"github.com/rxguard/audit-api/pkg/logger"
	"github.com/rxguard/audit-api/pkg/metrics"
)

// IntentClassifier assigns a canonical intent to one turn.
type IntentClassifier interface {
	Classify(ctx context.Context, text string, hasImage bool) model.Intent
}

// Extractor normalizes raw input into prescriptions, queries, or actions.
type Extractor interface {
	FromText(ctx context.Context, text string) *extract.Result
	FromImage(ctx context.Context, image []byte) *extract.Result
}

// SnapshotLoader builds the immutable patient view for one run.
type SnapshotLoader interface {
	Load(ctx context.Context, patientID uuid.UUID) (*model.PatientSnapshot, error)
}

// RuleEngine runs the safety battery.
type RuleEngine interface {
	EvaluateHistory(drugs []model.PrescriptionRecord, snap *model.PatientSnapshot) []model.SafetyFlag
	EvaluateDrug(ctx context.Context, drug model.PrescriptionRecord, snap *model.PatientSnapshot) []model.SafetyFlag
}

// KnowledgeSource fetches reference label data for the knowledge path.
type KnowledgeSource interface {
	GetLabel(ctx context.Context, name string) (*openfda.LabelResult, error)
}

// Verdict computes the tiered outcome for an accumulated flag set.
type Verdict func(flags []model.SafetyFlag, confidence float64) *model.SafetyVerdict

// Input is what a caller supplies for one turn.
type Input struct {
	SessionID       string
	Text            string
	Image           []byte
	VoiceTranscript string
	PatientID       *uuid.UUID
}

// Outcome is what a caller receives: either an awaiting-verification
// payload or a completed one.
type Outcome struct {
	SessionID     string                     `json:"session_id"`
	Awaiting      bool                       `json:"awaiting_verification"`
	Intent        model.Intent               `json:"intent"`
	Prescriptions []model.PrescriptionRecord `json:"prescriptions,omitempty"`
	Verdict       *model.SafetyVerdict       `json:"verdict,omitempty"`
	SafetyFlags   []model.SafetyFlag         `json:"safety_flags,omitempty"`
	AssistantText string                     `json:"assistant_text,omitempty"`
	ExternalURL   string                     `json:"external_url,omitempty"`
}

type Machine struct {
	store     Store
	router    IntentClassifier
	extractor Extractor
	snapshots SnapshotLoader
	engine    RuleEngine
	verdict   Verdict
	knowledge KnowledgeSource
	dialogue  llm.DialogueGenerator
	auditor   *audit.Service
	metrics   *metrics.Metrics
	log       *logger.Logger
}

type Deps struct {
	Store     Store
	Router    IntentClassifier
	Extractor Extractor
	Snapshots SnapshotLoader
	Engine    RuleEngine
	Verdict   Verdict
	Knowledge KnowledgeSource
	Dialogue  llm.DialogueGenerator
	Auditor   *audit.Service
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
}

func NewMachine(deps Deps) *Machine {
	if deps.Logger == nil {
		deps.Logger = logger.NewLogger(nil)
	}
	return &Machine{
		store:     deps.Store,
		router:    deps.Router,
		extractor: deps.Extractor,
		snapshots: deps.Snapshots,
		engine:    deps.Engine,
		verdict:   deps.Verdict,
		knowledge: deps.Knowledge,
		dialogue:  deps.Dialogue,
		auditor:   deps.Auditor,
		metrics:   deps.Metrics,
		log:       deps.Logger,
	}
}

// Start begins a new turn for the session. Execution either reaches a
// terminal state or suspends at the verification interrupt before
// patient_fetch.
func (m *Machine) Start(ctx context.Context, in Input) (*Outcome, error) {
	if in.SessionID == "" {
		return nil, apperrors.BadRequest("session id is required", nil)
	}

	text := in.Text
	hasVoice := in.VoiceTranscript != ""
	if text == "" && hasVoice {
		text = in.VoiceTranscript
	}

	// A session spans many turns. The new turn resets per-turn run state
	// but the dialogue transcript and title belong to the session, so they
	// carry over from the previous checkpoint.
	title := preview(text)
	var history []model.DialogueTurn
	if prior, err := m.store.Load(ctx, in.SessionID); err == nil {
		history = prior.Run.Dialogue
		if prior.Run.Title != "" {
			title = prior.Run.Title
		}
	} else if err != ErrNoSuchSession {
		return nil, apperrors.Internal(err)
	}

	now := time.Now()
	cp := &Checkpoint{
		SessionID: in.SessionID,
		State:     StateRoute,
		Status:    StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
		Run: model.WorkflowRun{
			SessionID: in.SessionID,
			RawText:   text,
			HasImage:  len(in.Image) > 0,
			HasVoice:  hasVoice,
			PatientID: in.PatientID,
			Title:     title,
			Dialogue:  history,
		},
	}
	if text != "" {
		cp.Run.Dialogue = append(cp.Run.Dialogue, model.DialogueTurn{
			Role: model.RoleUser, Content: text, At: now,
		})
	}

	return m.drive(ctx, cp, in.Image)
}

// Resume continues a run suspended at the verification interrupt. Resuming
// a session that does not exist fails with a not-found error; resuming one
// that never suspended or already completed fails with a conflict, distinct
// from normal completion.
func (m *Machine) Resume(ctx context.Context, sessionID string) (*Outcome, error) {
	cp, err := m.store.Load(ctx, sessionID)
	if err != nil {
		if err == ErrNoSuchSession {
			return nil, apperrors.NotFound("session", err)
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp.Status != StatusSuspended {
		return nil, apperrors.Conflict("session is not awaiting verification", nil)
	}

	cp.Status = StatusRunning
	if m.metrics != nil {
		m.metrics.RunsResumed.Inc()
	}
	return m.drive(ctx, cp, nil)
}

// Get returns the persisted run state for a session, suspended or complete.
func (m *Machine) Get(ctx context.Context, sessionID string) (*Checkpoint, error) {
	cp, err := m.store.Load(ctx, sessionID)
	if err != nil {
		if err == ErrNoSuchSession {
			return nil, apperrors.NotFound("session", err)
		}
		return nil, err
	}
	return cp, nil
}

// drive executes graph nodes until the run terminates or suspends,
// persisting the checkpoint at every step boundary.
func (m *Machine) drive(ctx context.Context, cp *Checkpoint, image []byte) (*Outcome, error) {
	log := m.log.WithSession(cp.SessionID)

	for cp.State != StateTerminal {
		// The edge into patient_fetch is the designated interrupt point:
		// suspend once per run and hand extraction back for verification.
		if cp.State == StatePatientFetch && !cp.Interrupted {
			cp.Interrupted = true
			cp.Status = StatusSuspended
			if err := m.save(ctx, cp); err != nil {
				return nil, err
			}
			if m.metrics != nil {
				m.metrics.RunsSuspended.Inc()
			}
			log.Info("run suspended for verification", "intent", cp.Run.Intent)
			return m.outcome(cp), nil
		}

		patch, next := m.step(ctx, cp, image)
		apply(&cp.Run, patch)
		cp.State = next
		cp.UpdatedAt = time.Now()
		if cp.State == StateTerminal {
			cp.Status = StatusCompleted
		}
		if err := m.save(ctx, cp); err != nil {
			return nil, err
		}
	}

	if m.metrics != nil {
		m.metrics.RunsCompleted.WithLabelValues(string(cp.Run.Intent)).Inc()
	}
	if m.auditor != nil {
		m.auditor.LogRun(ctx, &cp.Run, "turn_completed")
	}
	log.Info("run completed", "intent", cp.Run.Intent, "flags", len(cp.Run.SafetyFlags))
	return m.outcome(cp), nil
}

// step executes the node for the current state and picks the next edge.
// The switch is exhaustive over non-terminal states.
func (m *Machine) step(ctx context.Context, cp *Checkpoint, image []byte) (Patch, State) {
	run := &cp.Run
	switch cp.State {
	case StateRoute:
		return m.nodeRoute(ctx, run)
	case StateTextExtract:
		return m.nodeExtract(ctx, run, m.extractor.FromText(ctx, run.RawText))
	case StateVoiceExtract:
		return m.nodeExtract(ctx, run, m.extractor.FromText(ctx, run.RawText))
	case StateImageExtract:
		return m.nodeExtract(ctx, run, m.extractor.FromImage(ctx, image))
	case StatePatientFetch:
		return m.nodePatientFetch(ctx, run)
	case StateAuditor:
		return m.nodeAuditor(run)
	case StateRuleEngine:
		return m.nodeRuleEngine(ctx, run)
	case StateVerdict:
		return m.nodeVerdict(run)
	case StateKnowledgeFetch:
		return m.nodeKnowledgeFetch(ctx, run)
	case StateAction:
		return m.nodeAction(ctx, run)
	case StateDialogue:
		return m.nodeDialogue(ctx, run)
	default:
		return Patch{}, StateTerminal
	}
}

func (m *Machine) nodeRoute(ctx context.Context, run *model.WorkflowRun) (Patch, State) {
	detected := m.router.Classify(ctx, run.RawText, run.HasImage)
	patch := Patch{Intent: intentPtr(detected)}
	if m.metrics != nil {
		m.metrics.RunsStarted.WithLabelValues(string(detected)).Inc()
	}

	switch detected {
	case model.IntentAudit:
		switch {
		case run.HasImage:
			return patch, StateImageExtract
		case run.HasVoice:
			return patch, StateVoiceExtract
		default:
			return patch, StateTextExtract
		}
	case model.IntentSystemAction:
		if run.RawText != "" {
			// Extraction may discover the action payload.
			return patch, StateTextExtract
		}
		return patch, StateAction
	case model.IntentClinicalQuery:
		if run.RawText != "" {
			return patch, StateTextExtract
		}
		// Context is required to answer; always load the snapshot first.
		return patch, StatePatientFetch
	case model.IntentMedicalKnowledge:
		return patch, StateKnowledgeFetch
	default:
		return patch, StateDialogue
	}
}

func (m *Machine) nodeExtract(_ context.Context, run *model.WorkflowRun, res *extract.Result) (Patch, State) {
	patch := Patch{
		Confidence: floatPtr(res.Confidence),
		IsQuery:    boolPtr(res.IsQuery),
	}
	if res.Prescriptions != nil {
		patch.Prescriptions = res.Prescriptions
	}
	if res.PendingAction != nil {
		patch.PendingAction = res.PendingAction
	}
	if res.Note != "" {
		patch.Dialogue = append(patch.Dialogue, model.DialogueTurn{
			Role: model.RoleSystem, Content: res.Note, At: time.Now(),
		})
	}

	if res.PendingAction != nil {
		return patch, StateAction
	}
	// Never advance to the safety engine with nothing to audit.
	if len(res.Prescriptions) == 0 && !res.IsQuery {
		return patch, StateDialogue
	}
	return patch, StatePatientFetch
}

func (m *Machine) nodePatientFetch(ctx context.Context, run *model.WorkflowRun) (Patch, State) {
	patch := Patch{}

	if run.PatientID == nil {
		patch.Dialogue = append(patch.Dialogue, model.DialogueTurn{
			Role: model.RoleSystem, Content: "No patient selected; safety checks were skipped.", At: time.Now(),
		})
		return patch, m.afterPatientFetch(run, false)
	}

	snap, err := m.snapshots.Load(ctx, *run.PatientID)
	if err != nil {
		m.log.WithSession(run.SessionID).Error(err, "patient snapshot unavailable")
		patch.Dialogue = append(patch.Dialogue, model.DialogueTurn{
			Role: model.RoleSystem, Content: "Patient record not found; safety checks were skipped.", At: time.Now(),
		})
		return patch, m.afterPatientFetch(run, false)
	}

	patch.Snapshot = snap
	patch.Title = strPtr("Patient - " + snap.Name)
	return patch, m.afterPatientFetch(run, true)
}

// afterPatientFetch routes the workflow once patient context is settled.
func (m *Machine) afterPatientFetch(run *model.WorkflowRun, loaded bool) State {
	switch run.Intent {
	case model.IntentAudit:
		if !loaded {
			// No snapshot means no safety checks: surface the gap instead.
			return StateDialogue
		}
		return StateAuditor
	case model.IntentClinicalQuery:
		if loaded && len(run.Prescriptions) > 0 {
			// A safety query about a concrete drug still gets audited.
			return StateAuditor
		}
		return StateDialogue
	case model.IntentMedicalKnowledge:
		return StateKnowledgeFetch
	case model.IntentSystemAction:
		return StateAction
	default:
		return StateTerminal
	}
}

func (m *Machine) nodeAuditor(run *model.WorkflowRun) (Patch, State) {
	flags := m.engine.EvaluateHistory(run.Prescriptions, run.Snapshot)
	return Patch{Flags: flags}, StateRuleEngine
}

func (m *Machine) nodeRuleEngine(ctx context.Context, run *model.WorkflowRun) (Patch, State) {
	var flags []model.SafetyFlag
	for _, drug := range run.Prescriptions {
		flags = append(flags, m.engine.EvaluateDrug(ctx, drug, run.Snapshot)...)
	}
	return Patch{Flags: flags}, StateVerdict
}

func (m *Machine) nodeVerdict(run *model.WorkflowRun) (Patch, State) {
	verdict := m.verdict(run.SafetyFlags, run.Confidence)
	return Patch{Verdict: verdict}, StateDialogue
}

func (m *Machine) nodeKnowledgeFetch(ctx context.Context, run *model.WorkflowRun) (Patch, State) {
	name := ""
	if len(run.Prescriptions) > 0 {
		name = run.Prescriptions[0].DrugName
	} else if run.RawText != "" {
		name = run.RawText
	}
	if name == "" || m.knowledge == nil {
		return Patch{}, StateDialogue
	}

	result, err := m.knowledge.GetLabel(ctx, name)
	if err != nil || result == nil {
		m.log.WithSession(run.SessionID).Warn("no reference label found", "drug", name)
		return Patch{Dialogue: []model.DialogueTurn{{
			Role: model.RoleSystem, Content: "No official label found for '" + name + "'.", At: time.Now(),
		}}}, StateDialogue
	}

	label := result.Label
	return Patch{DrugInfo: map[string]model.KnowledgeSummary{
		name: {
			DrugName:          name,
			Indications:       label.IndicationsAndUsage,
			Dosage:            label.DosageAndAdministration,
			Contraindications: label.Contraindications,
			BoxedWarning:      label.BoxedWarning,
			Citation:          label.Citation(),
		},
	}}, StateDialogue
}

func (m *Machine) nodeAction(ctx context.Context, run *model.WorkflowRun) (Patch, State) {
	action := run.PendingAction
	if action == nil {
		return Patch{Dialogue: []model.DialogueTurn{{
			Role: model.RoleSystem, Content: "No action to execute.", At: time.Now(),
		}}}, StateTerminal
	}

	patch := Patch{ClearPending: true}
	switch action.Action {
	case model.ActionOpenSource:
		// The frontend owns window management; we only hand back the URL.
		link := "https://dailymed.nlm.nih.gov/dailymed/search.cfm?query=" + url.QueryEscape(action.Drug)
		patch.ExternalURL = strPtr(link)
		patch.Dialogue = []model.DialogueTurn{{
			Role: model.RoleSystem, Content: "Generated clinical reference link for " + action.Drug + ".", At: time.Now(),
		}}
	case model.ActionGenerateReport:
		if m.auditor != nil {
			m.auditor.LogRun(ctx, run, "report_requested")
		}
		patch.Dialogue = []model.DialogueTurn{{
			Role: model.RoleSystem, Content: "Clinical audit report generation queued.", At: time.Now(),
		}}
	default:
		patch.Dialogue = []model.DialogueTurn{{
			Role: model.RoleSystem, Content: "Action '" + action.Action + "' not recognized.", At: time.Now(),
		}}
	}
	return patch, StateTerminal
}

func (m *Machine) nodeDialogue(ctx context.Context, run *model.WorkflowRun) (Patch, State) {
	reply := m.generateReply(ctx, run)
	return Patch{Dialogue: []model.DialogueTurn{{
		Role: model.RoleAssistant, Content: reply, At: time.Now(),
	}}}, StateTerminal
}

func (m *Machine) save(ctx context.Context, cp *Checkpoint) error {
	if err := m.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}
	return nil
}

func (m *Machine) outcome(cp *Checkpoint) *Outcome {
	out := &Outcome{
		SessionID:     cp.SessionID,
		Awaiting:      cp.Status == StatusSuspended,
		Intent:        cp.Run.Intent,
		Prescriptions: cp.Run.Prescriptions,
		Verdict:       cp.Run.Verdict,
		SafetyFlags:   cp.Run.SafetyFlags,
		ExternalURL:   cp.Run.ExternalURL,
	}
	for i := len(cp.Run.Dialogue) - 1; i >= 0; i-- {
		if cp.Run.Dialogue[i].Role == model.RoleAssistant {
			out.AssistantText = cp.Run.Dialogue[i].Content
			break
		}
	}
	return out
}

func preview(text string) string {
	if text == "" {
		return "New Session"
	}
	if r := []rune(text); len(r) > 40 {
		return string(r[:40]) + "..."
	}
	return text
}
