package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edugen-studio/internal/service"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type busyFunc func() bool

func (f busyFunc) Busy() bool { return f() }

func TestMetricsHandlerReady(t *testing.T) {
	handler := NewMetricsHandler(service.NewMetricsService(), pingerFunc(func(context.Context) error { return nil }), nil)
	c, w := newGinContext(http.MethodGet, "/ready", nil)
	handler.Ready(c)
	require.Equal(t, http.StatusOK, w.Code)

	handler = NewMetricsHandler(nil, pingerFunc(func(context.Context) error { return errors.New("connection refused") }), nil)
	c, w = newGinContext(http.MethodGet, "/ready", nil)
	handler.Ready(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "BACKEND_UNAVAILABLE", decodeEnvelope(t, w).Error.Code)
}

func TestMetricsHandlerPrometheusAndStats(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordGeneration("ok")
	handler := NewMetricsHandler(metrics, nil, busyFunc(func() bool { return true }))

	c, w := newGinContext(http.MethodGet, "/metrics", nil)
	handler.Prometheus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "generations_total")

	c, w = newGinContext(http.MethodGet, "/stats", nil)
	handler.Stats(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"generations":1`)
	assert.Contains(t, w.Body.String(), `"generationInProgress":true`)

	handler = NewMetricsHandler(nil, nil, nil)
	c, w = newGinContext(http.MethodGet, "/metrics", nil)
	handler.Prometheus(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
