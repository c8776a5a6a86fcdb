package handler

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edugen-studio/internal/models"
	"github.com/noah-isme/edugen-studio/internal/service"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
	"github.com/noah-isme/edugen-studio/pkg/response"
)

type historyService interface {
	Fetch(ctx context.Context) models.HistoryView
	Current() models.HistoryView
}

type downloadService interface {
	Download(ctx context.Context, id string, sink service.DownloadSink) (*models.DownloadResult, error)
	Journal(ctx context.Context, limit int) ([]models.JournalEntry, error)
}

// HistoryHandler serves past generations and their documents.
type HistoryHandler struct {
	history   historyService
	downloads downloadService
}

// NewHistoryHandler constructs the handler.
func NewHistoryHandler(history historyService, downloads downloadService) *HistoryHandler {
	return &HistoryHandler{history: history, downloads: downloads}
}

// List godoc
// @Summary Fetch generation history
// @Description Backend failures are reported in the view state, not as an HTTP error.
// @Tags History
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	view := h.history.Fetch(c.Request.Context())
	response.JSON(c, http.StatusOK, view, map[string]interface{}{"count": len(view.Records)})
}

// State godoc
// @Summary Current history view without fetching
// @Description Reports "loading" while a fetch is in flight.
// @Tags History
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /history/state [get]
func (h *HistoryHandler) State(c *gin.Context) {
	view := h.history.Current()
	response.JSON(c, http.StatusOK, view, map[string]interface{}{"count": len(view.Records)})
}

// Download godoc
// @Summary Download a past generation's document
// @Tags History
// @Produce application/pdf
// @Param id path string true "Record ID"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /history/{id}/download [get]
func (h *HistoryHandler) Download(c *gin.Context) {
	if _, err := h.downloads.Download(c.Request.Context(), c.Param("id"), attachmentSink{c: c}); err != nil {
		if c.Writer.Written() {
			_ = c.Error(err)
			return
		}
		response.Error(c, err)
	}
}

// Journal godoc
// @Summary List recorded downloads
// @Tags History
// @Produce json
// @Param limit query int false "Maximum entries" default(50)
// @Success 200 {object} response.Envelope
// @Router /downloads [get]
func (h *HistoryHandler) Journal(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a number"))
			return
		}
		limit = parsed
	}
	entries, err := h.downloads.Journal(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, map[string]interface{}{"count": len(entries)})
}

// attachmentSink streams a spooled document to the HTTP client.
type attachmentSink struct {
	c *gin.Context
}

func (s attachmentSink) Deliver(_ context.Context, filename string, file *os.File, size int64) (string, error) {
	s.c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	s.c.Header("Content-Type", "application/pdf")
	s.c.Header("Content-Length", strconv.FormatInt(size, 10))
	s.c.Header("Cache-Control", "no-store")
	s.c.Status(http.StatusOK)
	if _, err := io.Copy(s.c.Writer, file); err != nil {
		return "", fmt.Errorf("stream document: %w", err)
	}
	return "", nil
}
