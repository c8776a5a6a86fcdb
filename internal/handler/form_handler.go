package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edugen-studio/internal/models"
	"github.com/noah-isme/edugen-studio/internal/service"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
	"github.com/noah-isme/edugen-studio/pkg/response"
)

type formService interface {
	Form(ctx context.Context) (models.FormState, error)
	ApplyFieldChange(ctx context.Context, change service.FieldChange) (models.FormState, error)
	ReplaceForm(ctx context.Context, input models.FormInput) (models.FormState, error)
	Generate(ctx context.Context) (*models.Review, models.FormState, error)
	Reset(ctx context.Context) (models.FormState, error)
}

// FormHandler serves the generation form and its submission.
type FormHandler struct {
	service formService
}

// NewFormHandler constructs the handler.
func NewFormHandler(service formService) *FormHandler {
	return &FormHandler{service: service}
}

// generateResponse is returned by a successful generation.
type generateResponse struct {
	Form   models.FormState `json:"form"`
	Review *models.Review   `json:"review"`
}

// Get godoc
// @Summary Current form state
// @Tags Form
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /form [get]
func (h *FormHandler) Get(c *gin.Context) {
	state, err := h.service.Form(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// Patch godoc
// @Summary Change one form field
// @Description Field errors come back in the form state; an unknown field or unparsable value is a 400.
// @Tags Form
// @Accept json
// @Produce json
// @Param payload body service.FieldChange true "Field change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /form [patch]
func (h *FormHandler) Patch(c *gin.Context) {
	var change service.FieldChange
	if err := c.ShouldBindJSON(&change); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid field change payload"))
		return
	}
	state, err := h.service.ApplyFieldChange(c.Request.Context(), change)
	if err != nil {
		response.Error(c, err, state)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// Put godoc
// @Summary Replace the form input
// @Tags Form
// @Accept json
// @Produce json
// @Param payload body models.FormInput true "Form input"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /form [put]
func (h *FormHandler) Put(c *gin.Context) {
	var input models.FormInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid form payload"))
		return
	}
	state, err := h.service.ReplaceForm(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// Generate godoc
// @Summary Submit the form and generate content
// @Description Field errors and the quota warning are returned with the form state; a second submission while one runs is refused.
// @Tags Form
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Failure 504 {object} response.Envelope
// @Router /generate [post]
func (h *FormHandler) Generate(c *gin.Context) {
	review, state, err := h.service.Generate(c.Request.Context())
	if err != nil {
		if appErrors.HasCode(err, appErrors.ErrGenerationInProgress.Code) {
			response.Error(c, err)
			return
		}
		response.Error(c, err, state)
		return
	}
	response.JSON(c, http.StatusOK, generateResponse{Form: state, Review: review}, nil)
}

// Reset godoc
// @Summary Start over
// @Description Drops the stored form and review and returns the pristine form.
// @Tags Form
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /workspace [delete]
func (h *FormHandler) Reset(c *gin.Context) {
	state, err := h.service.Reset(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}
