package workflow

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxguard/audit-api/internal/adapter/openfda"
	"github.com/rxguard/audit-api/internal/model"
	"github.com/rxguard/audit-api/internal/service/extract"
	"github.com/rxguard/audit-api/internal/service/safety"
	apperrors "github.com/rxguard/audit-api/pkg/errors"
)

type stubRouter struct {
	intent model.Intent
}

func (s *stubRouter) Classify(ctx context.Context, text string, hasImage bool) model.Intent {
	return s.intent
}

type stubExtractor struct {
	result *extract.Result
}

func (s *stubExtractor) FromText(ctx context.Context, text string) *extract.Result {
	return s.result
}

func (s *stubExtractor) FromImage(ctx context.Context, image []byte) *extract.Result {
	return s.result
}

type stubSnapshots struct {
	snap *model.PatientSnapshot
	err  error
}

func (s *stubSnapshots) Load(ctx context.Context, patientID uuid.UUID) (*model.PatientSnapshot, error) {
	return s.snap, s.err
}

type stubEngine struct {
	historyFlags []model.SafetyFlag
	drugFlags    []model.SafetyFlag
}

func (s *stubEngine) EvaluateHistory(drugs []model.PrescriptionRecord, snap *model.PatientSnapshot) []model.SafetyFlag {
	return s.historyFlags
}

func (s *stubEngine) EvaluateDrug(ctx context.Context, drug model.PrescriptionRecord, snap *model.PatientSnapshot) []model.SafetyFlag {
	return s.drugFlags
}

type stubKnowledge struct {
	result *openfda.LabelResult
	err    error
}

func (s *stubKnowledge) GetLabel(ctx context.Context, name string) (*openfda.LabelResult, error) {
	return s.result, s.err
}

type stubDialogue struct {
	reply string
	err   error
}

func (s *stubDialogue) Chat(ctx context.Context, systemPrompt, userQuery string, history []string) (string, error) {
	return s.reply, s.err
}

func auditRx() *extract.Result {
	return &extract.Result{
		Confidence: extract.ConfidenceRegex,
		Prescriptions: []model.PrescriptionRecord{{
			DrugName: "Lisinopril", Dose: "10mg", Frequency: "once daily",
		}},
	}
}

func newTestMachine(deps Deps) *Machine {
	if deps.Store == nil {
		deps.Store = NewMemoryStore()
	}
	if deps.Router == nil {
		deps.Router = &stubRouter{intent: model.IntentAudit}
	}
	if deps.Extractor == nil {
		deps.Extractor = &stubExtractor{result: auditRx()}
	}
	if deps.Snapshots == nil {
		deps.Snapshots = &stubSnapshots{snap: &model.PatientSnapshot{Name: "Jane Roe", AgeYears: 40}}
	}
	if deps.Engine == nil {
		deps.Engine = &stubEngine{}
	}
	if deps.Verdict == nil {
		deps.Verdict = safety.Aggregate
	}
	if deps.Dialogue == nil {
		deps.Dialogue = &stubDialogue{reply: "Summary for the pharmacist."}
	}
	return NewMachine(deps)
}

func TestStartRequiresSessionID(t *testing.T) {
	m := newTestMachine(Deps{})
	_, err := m.Start(context.Background(), Input{Text: "Lisinopril 10mg once daily"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))
}

func TestAuditRunSuspendsBeforePatientFetch(t *testing.T) {
	store := NewMemoryStore()
	m := newTestMachine(Deps{Store: store})
	pid := uuid.New()

	out, err := m.Start(context.Background(), Input{
		SessionID: "s1",
		Text:      "Lisinopril 10mg once daily",
		PatientID: &pid,
	})
	require.NoError(t, err)
	assert.True(t, out.Awaiting)
	assert.Equal(t, model.IntentAudit, out.Intent)
	require.Len(t, out.Prescriptions, 1)
	assert.Nil(t, out.Verdict)

	cp, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, cp.Status)
	assert.Equal(t, StatePatientFetch, cp.State)
	assert.True(t, cp.Interrupted)
}

func TestResumeCompletesAuditAndPreservesPrescriptions(t *testing.T) {
	store := NewMemoryStore()
	engine := &stubEngine{
		historyFlags: []model.SafetyFlag{{
			Severity: model.SeverityCritical, Category: model.CategoryAllergy, Source: model.SourcePatientHistory,
		}},
		drugFlags: []model.SafetyFlag{{
			Severity: model.SeverityWarning, Category: model.CategoryWarning, Source: model.SourceDrugLabel,
		}},
	}
	m := newTestMachine(Deps{Store: store, Engine: engine})
	pid := uuid.New()

	started, err := m.Start(context.Background(), Input{
		SessionID: "s2", Text: "Lisinopril 10mg once daily", PatientID: &pid,
	})
	require.NoError(t, err)
	require.True(t, started.Awaiting)

	out, err := m.Resume(context.Background(), "s2")
	require.NoError(t, err)
	assert.False(t, out.Awaiting)

	// The verified extraction survives suspension byte for byte.
	assert.Equal(t, started.Prescriptions, out.Prescriptions)

	require.NotNil(t, out.Verdict)
	assert.Equal(t, model.VerdictRed, out.Verdict.Status)
	assert.Equal(t, extract.ConfidenceRegex, out.Verdict.ConfidenceScore)
	// History flags precede external flags.
	require.Len(t, out.SafetyFlags, 2)
	assert.Equal(t, model.CategoryAllergy, out.SafetyFlags[0].Category)
	assert.Equal(t, model.CategoryWarning, out.SafetyFlags[1].Category)
	assert.Equal(t, "Summary for the pharmacist.", out.AssistantText)

	cp, err := store.Load(context.Background(), "s2")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, cp.Status)
	assert.Equal(t, StateTerminal, cp.State)
}

func TestResumeSuspendsOnlyOncePerRun(t *testing.T) {
	store := NewMemoryStore()
	m := newTestMachine(Deps{Store: store})
	pid := uuid.New()

	_, err := m.Start(context.Background(), Input{SessionID: "s3", Text: "Lisinopril 10mg once daily", PatientID: &pid})
	require.NoError(t, err)

	out, err := m.Resume(context.Background(), "s3")
	require.NoError(t, err)
	assert.False(t, out.Awaiting)
}

func TestResumeUnknownSessionIsNotFound(t *testing.T) {
	m := newTestMachine(Deps{})
	_, err := m.Resume(context.Background(), "nope")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestResumeCompletedSessionIsConflict(t *testing.T) {
	store := NewMemoryStore()
	m := newTestMachine(Deps{Store: store, Router: &stubRouter{intent: model.IntentGeneralChat}})

	_, err := m.Start(context.Background(), Input{SessionID: "s4", Text: "hello"})
	require.NoError(t, err)

	_, err = m.Resume(context.Background(), "s4")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestGeneralChatCompletesWithoutSuspension(t *testing.T) {
	m := newTestMachine(Deps{
		Router:   &stubRouter{intent: model.IntentGeneralChat},
		Dialogue: &stubDialogue{reply: "Hello! How can I help?"},
	})

	out, err := m.Start(context.Background(), Input{SessionID: "s5", Text: "hello"})
	require.NoError(t, err)
	assert.False(t, out.Awaiting)
	assert.Equal(t, "Hello! How can I help?", out.AssistantText)
	assert.Nil(t, out.Verdict)
}

func TestKnowledgePathPopulatesDrugInfo(t *testing.T) {
	store := NewMemoryStore()
	m := newTestMachine(Deps{
		Store:  store,
		Router: &stubRouter{intent: model.IntentMedicalKnowledge},
		Knowledge: &stubKnowledge{result: &openfda.LabelResult{
			Match: openfda.MatchExact,
			Label: &openfda.LabelRecord{
				SetID:               "abc-123",
				IndicationsAndUsage: "Hypertension.",
			},
		}},
	})

	out, err := m.Start(context.Background(), Input{SessionID: "s6", Text: "lisinopril"})
	require.NoError(t, err)
	assert.False(t, out.Awaiting)

	cp, err := store.Load(context.Background(), "s6")
	require.NoError(t, err)
	require.Contains(t, cp.Run.DrugInfo, "lisinopril")
	info := cp.Run.DrugInfo["lisinopril"]
	assert.Equal(t, "Hypertension.", info.Indications)
	assert.Contains(t, info.Citation, "abc-123")
}

func TestSystemActionOpenSourceReturnsURL(t *testing.T) {
	m := newTestMachine(Deps{
		Router: &stubRouter{intent: model.IntentSystemAction},
		Extractor: &stubExtractor{result: &extract.Result{
			Confidence:    extract.ConfidenceRegex,
			PendingAction: &model.SystemAction{Action: model.ActionOpenSource, Drug: "warfarin"},
		}},
	})

	out, err := m.Start(context.Background(), Input{SessionID: "s7", Text: "open the source for warfarin"})
	require.NoError(t, err)
	assert.False(t, out.Awaiting)
	assert.Contains(t, out.ExternalURL, "dailymed.nlm.nih.gov")
	assert.Contains(t, out.ExternalURL, "warfarin")
}

func TestActionClearsPendingState(t *testing.T) {
	store := NewMemoryStore()
	m := newTestMachine(Deps{
		Store:  store,
		Router: &stubRouter{intent: model.IntentSystemAction},
		Extractor: &stubExtractor{result: &extract.Result{
			Confidence:    extract.ConfidenceRegex,
			PendingAction: &model.SystemAction{Action: model.ActionOpenSource, Drug: "warfarin"},
		}},
	})

	_, err := m.Start(context.Background(), Input{SessionID: "s8", Text: "open the source for warfarin"})
	require.NoError(t, err)

	cp, err := store.Load(context.Background(), "s8")
	require.NoError(t, err)
	assert.Nil(t, cp.Run.PendingAction)
	assert.Equal(t, StatusCompleted, cp.Status)
}

func TestEmptyExtractionSkipsSafetyPipeline(t *testing.T) {
	m := newTestMachine(Deps{
		Extractor: &stubExtractor{result: &extract.Result{
			Confidence: extract.ConfidenceUnparseable,
			Note:       "could not parse input as a prescription",
		}},
		Dialogue: &stubDialogue{reply: "I could not read that prescription."},
	})

	out, err := m.Start(context.Background(), Input{SessionID: "s9", Text: "gibberish"})
	require.NoError(t, err)
	assert.False(t, out.Awaiting)
	assert.Nil(t, out.Verdict)
	assert.Equal(t, "I could not read that prescription.", out.AssistantText)
}

func TestAuditWithoutPatientSurfacesGap(t *testing.T) {
	store := NewMemoryStore()
	m := newTestMachine(Deps{Store: store, Dialogue: &stubDialogue{reply: "No patient context available."}})

	started, err := m.Start(context.Background(), Input{SessionID: "s10", Text: "Lisinopril 10mg once daily"})
	require.NoError(t, err)
	require.True(t, started.Awaiting)

	out, err := m.Resume(context.Background(), "s10")
	require.NoError(t, err)
	assert.False(t, out.Awaiting)
	assert.Nil(t, out.Verdict)

	cp, err := store.Load(context.Background(), "s10")
	require.NoError(t, err)
	var sawGapNote bool
	for _, turn := range cp.Run.Dialogue {
		if turn.Role == model.RoleSystem {
			sawGapNote = true
		}
	}
	assert.True(t, sawGapNote)
}

func TestVoiceTranscriptFlowsAsText(t *testing.T) {
	store := NewMemoryStore()
	m := newTestMachine(Deps{Store: store})
	pid := uuid.New()

	out, err := m.Start(context.Background(), Input{
		SessionID:       "s11",
		VoiceTranscript: "Lisinopril 10mg once daily",
		PatientID:       &pid,
	})
	require.NoError(t, err)
	assert.True(t, out.Awaiting)

	cp, err := store.Load(context.Background(), "s11")
	require.NoError(t, err)
	assert.True(t, cp.Run.HasVoice)
	assert.Equal(t, "Lisinopril 10mg once daily", cp.Run.RawText)
}

func TestGetReturnsPersistedState(t *testing.T) {
	m := newTestMachine(Deps{Router: &stubRouter{intent: model.IntentGeneralChat}})

	_, err := m.Start(context.Background(), Input{SessionID: "s12", Text: "hi"})
	require.NoError(t, err)

	cp, err := m.Get(context.Background(), "s12")
	require.NoError(t, err)
	assert.Equal(t, "s12", cp.SessionID)
	assert.Equal(t, StatusCompleted, cp.Status)

	_, err = m.Get(context.Background(), "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestApplyMergeRules(t *testing.T) {
	run := &model.WorkflowRun{}

	apply(run, Patch{
		Intent: intentPtr(model.IntentAudit),
		Flags:  []model.SafetyFlag{{Category: "a"}},
	})
	apply(run, Patch{
		Flags:   []model.SafetyFlag{{Category: "b"}},
		Verdict: &model.SafetyVerdict{Status: model.VerdictYellow},
	})

	assert.Equal(t, model.IntentAudit, run.Intent)
	// Flag lists append across patches.
	require.Len(t, run.SafetyFlags, 2)
	assert.Equal(t, "a", run.SafetyFlags[0].Category)
	assert.Equal(t, "b", run.SafetyFlags[1].Category)
	assert.Equal(t, model.VerdictYellow, run.Verdict.Status)
}

func TestDialogueHistorySurvivesAcrossTurns(t *testing.T) {
	store := NewMemoryStore()
	m := newTestMachine(Deps{
		Store:    store,
		Router:   &stubRouter{intent: model.IntentGeneralChat},
		Dialogue: &stubDialogue{reply: "Hello! How can I help?"},
	})

	_, err := m.Start(context.Background(), Input{SessionID: "s-hist", Text: "hello there"})
	require.NoError(t, err)
	_, err = m.Start(context.Background(), Input{SessionID: "s-hist", Text: "what about ibuprofen"})
	require.NoError(t, err)

	cp, err := store.Load(context.Background(), "s-hist")
	require.NoError(t, err)
	// Two user turns and two assistant replies.
	require.Len(t, cp.Run.Dialogue, 4)
	assert.Equal(t, model.RoleUser, cp.Run.Dialogue[0].Role)
	assert.Equal(t, "hello there", cp.Run.Dialogue[0].Content)
	assert.Equal(t, model.RoleUser, cp.Run.Dialogue[2].Role)
	assert.Equal(t, "what about ibuprofen", cp.Run.Dialogue[2].Content)
	// The title stays pinned to the first turn.
	assert.Equal(t, "hello there", cp.Run.Title)
}

func TestPreviewKeepsRuneBoundaries(t *testing.T) {
	long := strings.Repeat("ü", 60)
	got := preview(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 43, utf8.RuneCountInString(got))
	assert.Equal(t, "hi", preview("hi"))
}
