// Package session exposes the workflow over HTTP: one endpoint starts a
// turn, one resumes a suspended run, one reads persisted session state.
package session

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rxguard/audit-api/internal/handler"
	"github.com/rxguard/audit-api/internal/service/audit"
	"github.com/rxguard/audit-api/internal/workflow"
	apperrors "github.com/rxguard/audit-api/pkg/errors"
)

type Handler struct {
	machine *workflow.Machine
	auditor *audit.Service
}

func NewHandler(machine *workflow.Machine, auditor *audit.Service) *Handler {
	return &Handler{machine: machine, auditor: auditor}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	sessions := r.Group("/sessions")
	{
		sessions.POST("/:id/turns", h.ProcessTurn)
		sessions.POST("/:id/resume", h.ResumeTurn)
		sessions.GET("/:id", h.GetSession)
		sessions.GET("/:id/audit", h.GetAuditTrail)
	}
}

// TurnRequest carries one user turn. Exactly one of text, image, or voice
// transcript is expected; text wins when several are present.
type TurnRequest struct {
	Text            string `json:"text"`
	ImageB64        string `json:"image_b64"`
	VoiceTranscript string `json:"voice_transcript"`
	PatientID       string `json:"patient_id"`
}

func (h *Handler) ProcessTurn(c *gin.Context) {
	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	if req.Text == "" && req.ImageB64 == "" && req.VoiceTranscript == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("turn requires text, an image, or a voice transcript"))
		return
	}

	in := workflow.Input{
		SessionID:       c.Param("id"),
		Text:            req.Text,
		VoiceTranscript: req.VoiceTranscript,
	}

	if req.ImageB64 != "" {
		image, err := base64.StdEncoding.DecodeString(req.ImageB64)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid image encoding"))
			return
		}
		in.Image = image
	}

	if req.PatientID != "" {
		pid, err := uuid.Parse(req.PatientID)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
			return
		}
		in.PatientID = &pid
	}

	outcome, err := h.machine.Start(c.Request.Context(), in)
	if err != nil {
		c.Error(err)
		return
	}

	status := http.StatusOK
	if outcome.Awaiting {
		// Suspended runs are not complete; the caller must confirm and resume.
		status = http.StatusAccepted
	}
	c.JSON(status, handler.NewSuccessResponse(outcome))
}

func (h *Handler) ResumeTurn(c *gin.Context) {
	outcome, err := h.machine.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(outcome))
}

func (h *Handler) GetSession(c *gin.Context) {
	cp, err := h.machine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cp))
}

func (h *Handler) GetAuditTrail(c *gin.Context) {
	if h.auditor == nil {
		c.Error(apperrors.Unavailable("audit trail", nil))
		return
	}
	entries, err := h.auditor.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}
