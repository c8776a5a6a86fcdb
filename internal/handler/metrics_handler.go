package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edugen-studio/internal/service"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
	"github.com/noah-isme/edugen-studio/pkg/response"
)

type backendPinger interface {
	Ping(ctx context.Context) error
}

type generationStatus interface {
	Busy() bool
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics    *service.MetricsService
	backend    backendPinger
	generation generationStatus
}

// NewMetricsHandler constructs a metrics handler. backend may be nil, in which
// case readiness always succeeds; generation may be nil as well.
func NewMetricsHandler(metrics *service.MetricsService, backend backendPinger, generation generationStatus) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, backend: backend, generation: generation}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness checks.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready godoc
// @Summary Readiness probe
// @Description Succeeds when the generation backend answers.
// @Tags Observability
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} response.Envelope
// @Router /ready [get]
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.backend != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := h.backend.Ping(ctx); err != nil {
			response.Error(c, appErrors.Wrap(err, "BACKEND_UNAVAILABLE", http.StatusServiceUnavailable, "generation backend unavailable"))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Stats godoc
// @Summary Studio metrics summary
// @Tags Observability
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stats [get]
func (h *MetricsHandler) Stats(c *gin.Context) {
	snapshot := h.metrics.Snapshot()
	if h.generation != nil {
		snapshot.GenerationInProgress = h.generation.Busy()
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}
