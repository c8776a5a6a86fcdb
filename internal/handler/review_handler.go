package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edugen-studio/internal/models"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
	"github.com/noah-isme/edugen-studio/pkg/response"
)

type reviewService interface {
	Review(ctx context.Context) (*models.Review, error)
	Save(ctx context.Context) error
	Discard(ctx context.Context) error
}

type exportService interface {
	Export(ctx context.Context, review *models.Review, format models.ExportFormat) (*models.ExportResult, error)
	Resolve(token string) (string, error)
	Open(relPath string) (*os.File, error)
}

// ReviewHandler serves the rendered review and what can be done with it.
type ReviewHandler struct {
	reviews reviewService
	exports exportService
}

// NewReviewHandler constructs the handler. exports may be nil when exports are disabled.
func NewReviewHandler(reviews reviewService, exports exportService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, exports: exports}
}

// Get godoc
// @Summary Current review
// @Description Blocks that failed to decode carry a view-scoped error; the other blocks still render.
// @Tags Review
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /review [get]
func (h *ReviewHandler) Get(c *gin.Context) {
	review, err := h.reviews.Review(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, review, nil)
}

// Discard godoc
// @Summary Discard the review
// @Description A generation still in flight is ignored when it completes.
// @Tags Review
// @Success 204
// @Router /review [delete]
func (h *ReviewHandler) Discard(c *gin.Context) {
	if err := h.reviews.Discard(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Save godoc
// @Summary Save the review on the backend
// @Tags Review
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /review/save [post]
func (h *ReviewHandler) Save(c *gin.Context) {
	if err := h.reviews.Save(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"saved": true}, nil)
}

// Export godoc
// @Summary Export the review to a local file
// @Tags Review
// @Produce json
// @Param format query string false "pdf or csv" default(pdf)
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /review/export [post]
func (h *ReviewHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "exports not configured"))
		return
	}
	review, err := h.reviews.Review(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	format := models.ExportFormat(strings.ToLower(strings.TrimSpace(c.Query("format"))))
	result, err := h.exports.Export(c.Request.Context(), review, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}

// ServeExport godoc
// @Summary Download an export through its signed link
// @Tags Review
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /export/{token} [get]
func (h *ReviewHandler) ServeExport(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "exports not configured"))
		return
	}
	relPath, err := h.exports.Resolve(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.Open(relPath)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	filename := filepath.Base(relPath)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), exportContentType(filename), file, nil)
}

func exportContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
