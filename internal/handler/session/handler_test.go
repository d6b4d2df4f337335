package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxguard/audit-api/internal/middleware"
	"github.com/rxguard/audit-api/internal/model"
	"github.com/rxguard/audit-api/internal/service/extract"
	"github.com/rxguard/audit-api/internal/service/safety"
	"github.com/rxguard/audit-api/internal/workflow"
)

type fixedRouter struct{ intent model.Intent }

func (f *fixedRouter) Classify(ctx context.Context, text string, hasImage bool) model.Intent {
	return f.intent
}

type fixedExtractor struct{}

func (f *fixedExtractor) FromText(ctx context.Context, text string) *extract.Result {
	return &extract.Result{
		Confidence: extract.ConfidenceRegex,
		Prescriptions: []model.PrescriptionRecord{{
			DrugName: "Lisinopril", Dose: "10mg", Frequency: "once daily",
		}},
	}
}

func (f *fixedExtractor) FromImage(ctx context.Context, image []byte) *extract.Result {
	return f.FromText(ctx, "")
}

type fixedSnapshots struct{}

func (f *fixedSnapshots) Load(ctx context.Context, id uuid.UUID) (*model.PatientSnapshot, error) {
	return &model.PatientSnapshot{Name: "Jane Roe", AgeYears: 40}, nil
}

type fixedEngine struct{}

func (f *fixedEngine) EvaluateHistory(drugs []model.PrescriptionRecord, snap *model.PatientSnapshot) []model.SafetyFlag {
	return nil
}

func (f *fixedEngine) EvaluateDrug(ctx context.Context, drug model.PrescriptionRecord, snap *model.PatientSnapshot) []model.SafetyFlag {
	return nil
}

type fixedDialogue struct{}

func (f *fixedDialogue) Chat(ctx context.Context, system, query string, history []string) (string, error) {
	return "All clear.", nil
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	machine := workflow.NewMachine(workflow.Deps{
		Store:     workflow.NewMemoryStore(),
		Router:    &fixedRouter{intent: model.IntentAudit},
		Extractor: &fixedExtractor{},
		Snapshots: &fixedSnapshots{},
		Engine:    &fixedEngine{},
		Verdict:   safety.Aggregate,
		Dialogue:  &fixedDialogue{},
	})

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	NewHandler(machine, nil).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTurnSuspendsAndResumes(t *testing.T) {
	r := newTestRouter()
	pid := uuid.New().String()

	w := doJSON(t, r, http.MethodPost, "/api/v1/sessions/abc/turns",
		`{"text": "Lisinopril 10mg once daily", "patient_id": "`+pid+`"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Data struct {
			Awaiting      bool                       `json:"awaiting_verification"`
			Prescriptions []model.PrescriptionRecord `json:"prescriptions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Awaiting)
	require.Len(t, resp.Data.Prescriptions, 1)

	w = doJSON(t, r, http.MethodPost, "/api/v1/sessions/abc/resume", "")
	require.Equal(t, http.StatusOK, w.Code)

	var done struct {
		Data struct {
			Awaiting bool `json:"awaiting_verification"`
			Verdict  *model.SafetyVerdict `json:"verdict"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &done))
	assert.False(t, done.Data.Awaiting)
	require.NotNil(t, done.Data.Verdict)
	assert.Equal(t, model.VerdictGreen, done.Data.Verdict.Status)
}

func TestResumeUnknownSessionIs404(t *testing.T) {
	r := newTestRouter()
	w := doJSON(t, r, http.MethodPost, "/api/v1/sessions/ghost/resume", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResumeCompletedSessionIs409(t *testing.T) {
	r := newTestRouter()
	pid := uuid.New().String()

	doJSON(t, r, http.MethodPost, "/api/v1/sessions/s/turns",
		`{"text": "Lisinopril 10mg once daily", "patient_id": "`+pid+`"}`)
	doJSON(t, r, http.MethodPost, "/api/v1/sessions/s/resume", "")

	w := doJSON(t, r, http.MethodPost, "/api/v1/sessions/s/resume", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTurnRejectsEmptyPayload(t *testing.T) {
	r := newTestRouter()
	w := doJSON(t, r, http.MethodPost, "/api/v1/sessions/s/turns", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTurnRejectsBadPatientID(t *testing.T) {
	r := newTestRouter()
	w := doJSON(t, r, http.MethodPost, "/api/v1/sessions/s/turns",
		`{"text": "Lisinopril 10mg once daily", "patient_id": "not-a-uuid"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTurnRejectsBadImageEncoding(t *testing.T) {
	r := newTestRouter()
	w := doJSON(t, r, http.MethodPost, "/api/v1/sessions/s/turns",
		`{"image_b64": "%%%not-base64%%%"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSessionState(t *testing.T) {
	r := newTestRouter()
	pid := uuid.New().String()

	doJSON(t, r, http.MethodPost, "/api/v1/sessions/s2/turns",
		`{"text": "Lisinopril 10mg once daily", "patient_id": "`+pid+`"}`)

	w := doJSON(t, r, http.MethodGet, "/api/v1/sessions/s2", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data workflow.Checkpoint `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, workflow.StatusSuspended, resp.Data.Status)
	assert.Equal(t, "s2", resp.Data.SessionID)
}
