package patient

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rxguard/audit-api/internal/handler"
	"github.com/rxguard/audit-api/internal/model"
	"github.com/rxguard/audit-api/internal/repository"
	apperrors "github.com/rxguard/audit-api/pkg/errors"
)

type Handler struct {
	repo repository.PatientRepository
}

func NewHandler(repo repository.PatientRepository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.CreatePatient)
		patients.GET("", h.ListPatients)
		patients.GET("/:id", h.GetPatient)

		patients.POST("/:id/drugs", h.AddDrugHistory)
		patients.GET("/:id/drugs", h.ListDrugHistory)

		patients.POST("/:id/allergies", h.AddAllergy)
		patients.GET("/:id/allergies", h.ListAllergies)

		patients.POST("/:id/reactions", h.AddAdverseReaction)
		patients.GET("/:id/reactions", h.ListAdverseReactions)
	}
}

func (h *Handler) CreatePatient(c *gin.Context) {
	var req model.CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	patient := &model.Patient{
		Name:                req.Name,
		MedicalRecordNumber: req.MedicalRecordNumber,
		DateOfBirth:         req.DateOfBirth,
		IsPregnant:          req.IsPregnant,
		IsNursing:           req.IsNursing,
		EGFR:                req.EGFR,
	}

	if err := h.repo.Create(c.Request.Context(), patient); err != nil {
		c.Error(apperrors.Internal(err))
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(patient))
}

func (h *Handler) GetPatient(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	patient, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		if err == repository.ErrNotFound {
			c.Error(apperrors.NotFound("patient", err))
			return
		}
		c.Error(apperrors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(patient))
}

func (h *Handler) ListPatients(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	patients, err := h.repo.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.Error(apperrors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(patients))
}

func (h *Handler) AddDrugHistory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	var req model.AddDrugHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	entry := &model.DrugHistory{
		PatientID: id,
		DrugName:  req.DrugName,
		Dose:      req.Dose,
		Frequency: req.Frequency,
		IsActive:  req.IsActive,
		Notes:     req.Notes,
	}
	if err := h.repo.AddDrugHistory(c.Request.Context(), entry); err != nil {
		c.Error(apperrors.Internal(err))
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(entry))
}

func (h *Handler) ListDrugHistory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	entries, err := h.repo.DrugHistory(c.Request.Context(), id)
	if err != nil {
		c.Error(apperrors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}

func (h *Handler) AddAllergy(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	var req model.AddAllergyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	entry := &model.Allergy{
		PatientID: id,
		Allergen:  req.Allergen,
		Type:      req.Type,
		Severity:  req.Severity,
		Symptoms:  req.Symptoms,
	}
	if err := h.repo.AddAllergy(c.Request.Context(), entry); err != nil {
		c.Error(apperrors.Internal(err))
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(entry))
}

func (h *Handler) ListAllergies(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	entries, err := h.repo.Allergies(c.Request.Context(), id)
	if err != nil {
		c.Error(apperrors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}

func (h *Handler) AddAdverseReaction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	var req model.AddAdverseReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	entry := &model.AdverseReaction{
		PatientID: id,
		DrugName:  req.DrugName,
		Severity:  req.Severity,
		Symptoms:  req.Symptoms,
	}
	if err := h.repo.AddAdverseReaction(c.Request.Context(), entry); err != nil {
		c.Error(apperrors.Internal(err))
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(entry))
}

func (h *Handler) ListAdverseReactions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	entries, err := h.repo.AdverseReactions(c.Request.Context(), id)
	if err != nil {
		c.Error(apperrors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}
