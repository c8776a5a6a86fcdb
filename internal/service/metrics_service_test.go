package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/form", http.StatusOK, 10*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/generate", http.StatusOK, 30*time.Millisecond)
	m.ObserveBackendCall("generate", "ok", time.Second)
	m.ObserveBackendCall("history", "network", time.Second)
	m.RecordGeneration("ok")
	m.RecordGeneration("format")
	m.RecordDownload(2048)
	m.RecordWorkspaceLoad(true, time.Millisecond)
	m.RecordWorkspaceLoad(false, time.Millisecond)

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap.RequestsTotal)
	assert.InDelta(t, 20, snap.AverageRequestDurationMs, 0.001)
	assert.EqualValues(t, 2, snap.BackendCalls)
	assert.EqualValues(t, 1, snap.BackendFailures)
	assert.EqualValues(t, 1, snap.Generations)
	assert.EqualValues(t, 1, snap.Downloads)
	assert.InDelta(t, 0.5, snap.WorkspaceHitRatio, 0.001)
}

func TestMetricsServiceNilIsSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	m.RecordBlockFailure("qcm")
	m.ObserveDBQuery("journal_list", time.Millisecond)
	assert.Zero(t, m.Snapshot().RequestsTotal)
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.RecordGeneration("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "generations_total")
}
